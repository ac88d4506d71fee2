package midtier

import (
	"strings"
	"unicode/utf8"
)

// Verdict classifies one transcribed user utterance.
type Verdict int

const (
	VerdictAccept Verdict = iota
	// VerdictRejectNoise marks content too degenerate to respond to; it
	// is dropped without a trace.
	VerdictRejectNoise
	// VerdictLowConfidence marks content that is probably real speech but
	// too unreliable to act on; the user is asked to repeat themselves.
	VerdictLowConfidence
)

func (v Verdict) String() string {
	switch v {
	case VerdictAccept:
		return "accept"
	case VerdictRejectNoise:
		return "reject-noise"
	case VerdictLowConfidence:
		return "reject-low-confidence"
	default:
		return "unknown"
	}
}

// Exact matches only. Keeping this list small avoids discarding
// legitimate short answers.
var fillerWords = map[string]struct{}{
	"hmm": {},
	"um":  {},
	"uh":  {},
	"mm":  {},
	"hm":  {},
}

var repeatMarkers = []string{"repeat", "again", "didn't hear", "say that again"}

// EvaluateTranscript is a pure, deterministic classification of one
// transcribed input given its transcription confidence.
func EvaluateTranscript(content string, confidence float64) Verdict {
	c := strings.ToLower(strings.TrimSpace(content))

	if utf8.RuneCountInString(c) < 3 {
		return VerdictRejectNoise
	}
	if _, ok := fillerWords[c]; ok {
		return VerdictRejectNoise
	}
	if allSameRune(c) {
		return VerdictRejectNoise
	}

	if confidence < 0.35 {
		return VerdictLowConfidence
	}
	if confidence < 0.5 && utf8.RuneCountInString(c) < 8 {
		return VerdictLowConfidence
	}
	for _, marker := range repeatMarkers {
		if strings.Contains(c, marker) {
			return VerdictLowConfidence
		}
	}

	return VerdictAccept
}

func allSameRune(s string) bool {
	var first rune
	for i, r := range s {
		if i == 0 {
			first = r
			continue
		}
		if r != first {
			return false
		}
	}
	return true
}
