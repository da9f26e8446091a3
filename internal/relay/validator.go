package relay

import (
	"strings"
	"unicode/utf8"
)

// MaxTextChars is the bot network's sendMessage text limit.
const MaxTextChars = 4096

// ValidateMessage checks visitor text before anything leaves the process.
func ValidateMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return ErrMessageTooLong
	}
	return nil
}
