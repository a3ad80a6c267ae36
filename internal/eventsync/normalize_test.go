package eventsync

import "testing"

func TestNormalizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"EVT_20260114_083012", "evt_20260114_083012"},
		{"EVT_20260114_083012.mp4", "evt_20260114_083012"},
		{"evt_20260114_083012.MP4", "evt_20260114_083012"},
		{"  evt_001.avi  ", "evt_001"},
		{"clip.h264", "clip"},
		{"clip.hevc", "clip"},
		{"report.txt", "report.txt"},
		{"", ""},
		// Only one extension comes off.
		{"evt.mp4.mp4", "evt.mp4"},
	}
	for _, tt := range tests {
		if got := NormalizeFilename(tt.in); got != tt.want {
			t.Errorf("NormalizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeFilenameCrossSource(t *testing.T) {
	// The camera reports without an extension, the drop dir with one.
	// Both must land on the same key.
	cam := NormalizeFilename("EVT_CAM1_20260114")
	drop := NormalizeFilename("evt_cam1_20260114.mp4")
	if cam != drop {
		t.Errorf("camera key %q != drop key %q", cam, drop)
	}
}

func TestHasVideoExtension(t *testing.T) {
	if !HasVideoExtension("a.MKV") {
		t.Error("expected .MKV to match")
	}
	if HasVideoExtension("a.jpg") {
		t.Error("expected .jpg not to match")
	}
	if HasVideoExtension("noext") {
		t.Error("expected bare name not to match")
	}
}
