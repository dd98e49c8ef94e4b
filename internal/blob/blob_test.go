package blob

import "testing"

func TestPhotoPath(t *testing.T) {
	tests := []struct {
		name        string
		workEntryID string
		want        string
	}{
		{"linked entry", "we-1", "proj-1/we-1/ph-1.jpg"},
		{"unlinked photo", "", "proj-1/temp/ph-1.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PhotoPath("proj-1", tt.workEntryID, "ph-1")
			if got != tt.want {
				t.Errorf("PhotoPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPhotoPathDeterministic(t *testing.T) {
	// Retried uploads must land on the same key.
	a := PhotoPath("proj-1", "we-1", "ph-1")
	b := PhotoPath("proj-1", "we-1", "ph-1")
	if a != b {
		t.Errorf("path not stable across calls: %q vs %q", a, b)
	}
}
