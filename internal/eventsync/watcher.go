package eventsync

import (
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher nudges the scheduler when files land in the drop directory,
// so new footage is cataloged without waiting for the next tick.
// Writes are debounced: camera uploads arrive in bursts.
type Watcher struct {
	dir      string
	sched    *Scheduler
	debounce time.Duration

	fw       *fsnotify.Watcher
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewWatcher(dir string, sched *Scheduler, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		dir:      dir,
		sched:    sched,
		debounce: debounce,
		fw:       fw,
		stopChan: make(chan struct{}),
	}, nil
}

func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.runLoop()
}

func (w *Watcher) Stop() {
	close(w.stopChan)
	w.fw.Close()
	w.wg.Wait()
}

func (w *Watcher) runLoop() {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.stopChan:
			if timer != nil {
				timer.Stop()
			}
			return
		case evt, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !HasVideoExtension(evt.Name) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				// Drain an already-fired tick before rearming,
				// per the time.Timer contract.
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			log.Printf("[WARN] eventsync: watcher: %v", err)
		case <-timerC:
			timer = nil
			timerC = nil
			w.sched.Kick()
		}
	}
}
