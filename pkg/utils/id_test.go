package utils

import (
	"strings"
	"testing"
)

func TestGenerateID(t *testing.T) {
	id1 := GenerateID("test")
	id2 := GenerateID("test")

	if id1 == id2 {
		t.Error("expected different IDs")
	}

	if !strings.HasPrefix(id1, "test_") {
		t.Errorf("expected prefix 'test_', got %s", id1)
	}
}

func TestGenerateRecordingID(t *testing.T) {
	id := GenerateRecordingID()
	if len(id) != 36 {
		t.Errorf("expected UUID string, got %q", id)
	}
	if strings.ContainsAny(id, "/\\ ") {
		t.Errorf("recording ID must be file-name safe, got %q", id)
	}
}

func TestShortID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		n    int
		want string
	}{
		{"longer than n", "abcdefghij", 4, "abcd"},
		{"equal to n", "abcd", 4, "abcd"},
		{"shorter than n", "ab", 4, "ab"},
		{"empty", "", 4, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShortID(tt.id, tt.n); got != tt.want {
				t.Errorf("ShortID(%q, %d) = %q, want %q", tt.id, tt.n, got, tt.want)
			}
		})
	}
}
