package engine

import "strings"

// Recognizers trained on captioned video emit boilerplate when fed silence or
// noise: subtitle credits, channel promos, bare URLs. The two lists below are
// a data asset, not an algorithm — substrings are matched anywhere in the
// lower-cased text, standalone phrases must equal the whole utterance once
// punctuation and whitespace are stripped.
var defaultHallucinationSubstrings = []string{
	"υπότιτλοι", "authorwave", "subtitles", "subtitle", "closed captions",
	"captioning", "transcription", "transcript", "audio", "music",
	"[music]", "[sound]", "[noise]", "[silence]", "[inaudible]",
	"thank you", "thanks for watching", "subscribe", "like and subscribe",
	"www.", ".com", "http", "https",
	"undertekster", "ai-media", "ai media", "undertekst", "tekster",
	"untertitel", "sous-titres", "legendas", "sottotitoli",
}

var defaultHallucinationStandalone = []string{
	"thankyou", "thankyouforwatching", "thanks", "thanksforwatching",
	"subscribe", "likeandsubscribe", "pleasesubscribe",
}

// HallucinationFilter rejects recognizer output that matches known spurious
// phrases. It holds no mutable state and is safe for concurrent use.
type HallucinationFilter struct {
	substrings []string
	standalone map[string]struct{}
}

// NewHallucinationFilter builds a filter from the built-in phrase lists plus
// any extra substrings supplied by configuration. Extra phrases are matched
// at substring granularity.
func NewHallucinationFilter(extra ...string) *HallucinationFilter {
	f := &HallucinationFilter{
		substrings: make([]string, 0, len(defaultHallucinationSubstrings)+len(extra)),
		standalone: make(map[string]struct{}, len(defaultHallucinationStandalone)),
	}
	f.substrings = append(f.substrings, defaultHallucinationSubstrings...)
	for _, phrase := range extra {
		if p := strings.ToLower(strings.TrimSpace(phrase)); p != "" {
			f.substrings = append(f.substrings, p)
		}
	}
	for _, phrase := range defaultHallucinationStandalone {
		f.standalone[phrase] = struct{}{}
	}
	return f
}

// Apply returns the trimmed fragment and true when text survives filtering,
// or ("", false) when it is empty or a known hallucination. Applying the
// result again yields the same outcome.
func (f *HallucinationFilter) Apply(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}

	lower := strings.ToLower(trimmed)
	for _, phrase := range f.substrings {
		if strings.Contains(lower, phrase) {
			return "", false
		}
	}

	if _, ok := f.standalone[stripPunctuation(lower)]; ok {
		return "", false
	}
	return trimmed, true
}

// stripPunctuation removes the punctuation and whitespace characters that
// recognizers attach to boilerplate, so "Thank you." compares as "thankyou".
func stripPunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '.', ',', '!', '?', ' ', '\t', '\n', '\r':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
