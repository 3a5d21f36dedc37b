package conversions

import (
	"fmt"
	"strings"
	"time"
)

// WordsPerMinute is the speaking rate used for duration estimates.
const WordsPerMinute = 150

// EstimateDuration approximates the spoken length of text in whole seconds
// as ceil(words / WordsPerMinute).
func EstimateDuration(text string) int {
	words := len(strings.Fields(text))
	return (words + WordsPerMinute - 1) / WordsPerMinute
}

// DownloadFilename names a downloaded artifact.
func DownloadFilename(languageCode, voiceID string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%d.mp3", languageCode, voiceID, at.UnixMilli())
}
