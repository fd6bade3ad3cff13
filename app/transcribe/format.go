package transcribe

import (
	"fmt"
	"strings"
)

// FormatTranscript renders provider utterances into the readable form stored
// as a content item's full text: "[MM:SS] Speaker X: text", blank-line
// separated. Returns the transcript and the number of distinct speakers.
func FormatTranscript(utterances []Utterance) (string, int) {
	if len(utterances) == 0 {
		return "", 0
	}

	speakers := make(map[string]bool)
	lines := make([]string, 0, len(utterances))

	for _, u := range utterances {
		text := strings.TrimSpace(u.Text)
		if text == "" {
			continue
		}
		speakers[u.Speaker] = true

		totalSeconds := u.StartMs / 1000
		lines = append(lines, fmt.Sprintf("[%02d:%02d] Speaker %s: %s",
			totalSeconds/60, totalSeconds%60, u.Speaker, text))
	}

	return strings.Join(lines, "\n\n"), len(speakers)
}
