package engine

import "testing"

func TestFilterPassesRealSpeech(t *testing.T) {
	f := NewHallucinationFilter()
	text, ok := f.Apply("  turn on the kitchen lights  ")
	if !ok {
		t.Fatalf("real speech must pass")
	}
	if text != "turn on the kitchen lights" {
		t.Fatalf("expected trimmed text, got %q", text)
	}
}

func TestFilterRejectsEmpty(t *testing.T) {
	f := NewHallucinationFilter()
	if _, ok := f.Apply(""); ok {
		t.Fatalf("empty text must be rejected")
	}
	if _, ok := f.Apply("   \t "); ok {
		t.Fatalf("whitespace-only text must be rejected")
	}
}

func TestFilterRejectsSubstringMatches(t *testing.T) {
	f := NewHallucinationFilter()
	rejected := []string{
		"Thanks for watching!",
		"please SUBSCRIBE to my channel",
		"[Music]",
		"soft music playing",
		"the audio cuts out here",
		"visit www.example.org",
		"Subtitles by the Amara.org community",
		"sous-titres fournis",
	}
	for _, text := range rejected {
		if _, ok := f.Apply(text); ok {
			t.Errorf("%q should be rejected", text)
		}
	}
}

func TestFilterRejectsStandalonePhrases(t *testing.T) {
	f := NewHallucinationFilter()
	// Standalone phrases match the whole text with punctuation stripped.
	rejected := []string{"Thank you.", "thank you", "Thanks!", "THANK YOU!!"}
	for _, text := range rejected {
		if _, ok := f.Apply(text); ok {
			t.Errorf("%q should be rejected as standalone", text)
		}
	}

	// The phrase embedded in real speech is only caught by the substring
	// list, so something unrelated must pass.
	if _, ok := f.Apply("thanks to the rain we stayed inside"); !ok {
		t.Errorf("standalone list must not match partial content")
	}
}

func TestFilterExtraPhrases(t *testing.T) {
	f := NewHallucinationFilter("copyright fox")
	if _, ok := f.Apply("Copyright FOX broadcasting"); ok {
		t.Fatalf("extra phrase must be matched case-insensitively")
	}
	plain := NewHallucinationFilter()
	if _, ok := plain.Apply("Copyright FOX broadcasting"); !ok {
		t.Fatalf("without the extra phrase the text must pass")
	}
}

func TestFilterIdempotent(t *testing.T) {
	f := NewHallucinationFilter()
	text, ok := f.Apply(" open the door ")
	if !ok {
		t.Fatalf("expected pass")
	}
	again, ok := f.Apply(text)
	if !ok || again != text {
		t.Fatalf("second application must be a no-op, got %q ok=%v", again, ok)
	}
}

func TestStripPunctuation(t *testing.T) {
	if got := stripPunctuation("thank you."); got != "thankyou" {
		t.Fatalf("unexpected strip result %q", got)
	}
	if got := stripPunctuation("like, and subscribe!?"); got != "likeandsubscribe" {
		t.Fatalf("unexpected strip result %q", got)
	}
}
