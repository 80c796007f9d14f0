package utils

import "testing"

func TestIsRasterImage(t *testing.T) {
	tests := []struct {
		filename string
		expected bool
	}{
		{"portrait.jpg", true},
		{"portrait.JPEG", true},
		{"scan.png", true},
		{"scan.tiff", true},
		{"clip.mp4", false},
		{"notes.txt", false},
		{"noextension", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsRasterImage(tt.filename); got != tt.expected {
			t.Errorf("IsRasterImage(%q) = %v, want %v", tt.filename, got, tt.expected)
		}
	}
}
