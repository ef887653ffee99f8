package engine

import "strings"

// Utterance is a finalized session transcript with derived statistics.
type Utterance struct {
	// Text is the assembled transcript after whitespace normalization.
	Text string

	// Samples is the total number of PCM samples recorded during the session.
	Samples int

	// Duration is the recorded audio length in seconds.
	Duration float64

	// Words is the space-delimited token count of Text.
	Words int

	// Chunks is the number of chunks that were accepted for recognition.
	Chunks int
}

// NormalizeTranscript collapses runs of spaces left by fragment concatenation
// down to single spaces and trims the ends.
func NormalizeTranscript(text string) string {
	for strings.Contains(text, "  ") {
		text = strings.ReplaceAll(text, "  ", " ")
	}
	return strings.Trim(text, " ")
}

// WordCount counts space-delimited tokens in normalized text.
func WordCount(text string) int {
	if text == "" {
		return 0
	}
	return strings.Count(text, " ") + 1
}
