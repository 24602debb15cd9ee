package models

import "testing"

func TestMaskKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"sk-proj-abcdefghijklmnop", "sk-pro...mnop"},
		{"short", "***"},
		{"", "***"},
		{"exactly10!", "***"},
	}
	for _, tt := range tests {
		if got := MaskKey(tt.key); got != tt.want {
			t.Errorf("MaskKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
