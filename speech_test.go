package midtier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpeechMarkup(t *testing.T) {
	got := SpeechMarkup("hello")
	assert.Equal(t, `<speak><lang xml:lang="en-US"><prosody rate="fast">hello</prosody></lang></speak>`, got)
}

func TestSpeechMarkupIdempotent(t *testing.T) {
	once := SpeechMarkup("please repeat that")
	assert.Equal(t, once, SpeechMarkup(once))
	assert.Equal(t, once, SpeechMarkup(SpeechMarkup(once)))
}

func TestSpeechMarkupEmpty(t *testing.T) {
	assert.Equal(t, "", SpeechMarkup(""))
}
