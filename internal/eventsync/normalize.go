package eventsync

import "strings"

// videoExtensions are the container suffixes the cameras and the relay
// drop are known to produce. The camera API reports filenames without
// an extension; the drop directory includes one.
var videoExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".h264", ".265", ".hevc"}

// NormalizeFilename maps a raw filename from either source to the key
// used for cross-source matching: case-folded, one known video
// extension stripped. Pure and total.
func NormalizeFilename(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, ext := range videoExtensions {
		if strings.HasSuffix(key, ext) {
			return strings.TrimSuffix(key, ext)
		}
	}
	return key
}

// HasVideoExtension reports whether name carries one of the known
// container suffixes. The drop-directory scan uses this as its filter.
func HasVideoExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range videoExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
