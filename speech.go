package midtier

import (
	"fmt"
	"strings"
)

// speechMarker is the envelope marker used for the idempotence check.
const speechMarker = "<speak>"

// repeatRequestText is spoken to the user when a transcript is classified
// as low confidence.
const repeatRequestText = "I'm sorry, I didn't quite catch that. Could you please repeat what you said?"

// SpeechMarkup wraps plain text in the deployment's fixed spoken-language
// and rate envelope. Already-wrapped text is returned unchanged, so the
// function is idempotent.
func SpeechMarkup(text string) string {
	if text == "" || strings.Contains(text, speechMarker) {
		return text
	}

	return fmt.Sprintf(`<speak><lang xml:lang="en-US"><prosody rate="fast">%s</prosody></lang></speak>`, text)
}
