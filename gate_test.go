package midtier

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateTranscript(t *testing.T) {
	tests := []struct {
		content    string
		confidence float64
		want       Verdict
	}{
		// noise
		{"", 1.0, VerdictRejectNoise},
		{"a", 1.0, VerdictRejectNoise},
		{"ok", 0.9, VerdictRejectNoise}, // under three characters
		{"um", 0.9, VerdictRejectNoise},
		{"hmm", 0.99, VerdictRejectNoise},
		{"  UH  ", 1.0, VerdictRejectNoise},
		{"mmmm", 1.0, VerdictRejectNoise},
		{"hhhhhhhh", 1.0, VerdictRejectNoise},
		// low confidence
		{"yes", 0.2, VerdictLowConfidence},
		{"yes sir", 0.4, VerdictLowConfidence},
		{"can you say that again please", 0.9, VerdictLowConfidence},
		{"i didn't hear you", 0.95, VerdictLowConfidence},
		// accepted
		{"yes please", 0.4, VerdictAccept}, // long enough despite middling confidence
		{"what is my balance", 0.9, VerdictAccept},
		{"reset my password", 0.5, VerdictAccept},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q@%.2f", tt.content, tt.confidence), func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateTranscript(tt.content, tt.confidence))
		})
	}
}

func TestEvaluateTranscriptDeterministic(t *testing.T) {
	for i := 0; i < 10; i++ {
		assert.Equal(t, VerdictAccept, EvaluateTranscript("hello there friend", 0.7))
	}
}

// Confidence at or above 0.5 with at least eight characters never
// classifies as low confidence unless the content explicitly asks for a
// repeat.
func TestLowConfidenceMonotonic(t *testing.T) {
	inputs := []string{"reset my password", "what is the weather", "tell me my account status"}
	for _, content := range inputs {
		for conf := 0.5; conf <= 1.0; conf += 0.05 {
			v := EvaluateTranscript(content, conf)
			assert.NotEqual(t, VerdictLowConfidence, v,
				"content %q at confidence %.2f", content, conf)
		}
	}
}

// Noise rejection depends only on the content, never on confidence.
func TestNoiseRejectionIgnoresConfidence(t *testing.T) {
	for _, content := range []string{"um", "x", "aaaa"} {
		for _, conf := range []float64{0.0, 0.35, 0.5, 1.0} {
			assert.Equal(t, VerdictRejectNoise, EvaluateTranscript(content, conf),
				"content %q at confidence %.2f", content, conf)
		}
	}

	// And the converse: trimmed length >= 3, no filler match, mixed
	// characters is never classified as noise.
	for _, content := range []string{"yes", "umm hello", "abc"} {
		v := EvaluateTranscript(content, 1.0)
		assert.NotEqual(t, VerdictRejectNoise, v, "content %q", content)

		trimmed := strings.ToLower(strings.TrimSpace(content))
		assert.GreaterOrEqual(t, utf8.RuneCountInString(trimmed), 3)
	}
}
