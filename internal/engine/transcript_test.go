package engine

import "testing"

func TestNormalizeTranscript(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"hello world ", "hello world"},
		{"  hello   world  ", "hello world"},
		{"a    b", "a b"},
		{"", ""},
		{"   ", ""},
		{"already clean", "already clean"},
	}
	for _, tc := range cases {
		if got := NormalizeTranscript(tc.in); got != tc.want {
			t.Errorf("NormalizeTranscript(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWordCount(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"hello", 1},
		{"hello world", 2},
		{"turn on the lights", 4},
	}
	for _, tc := range cases {
		if got := WordCount(tc.in); got != tc.want {
			t.Errorf("WordCount(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
