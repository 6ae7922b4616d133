package models

import (
	"strings"
)

// NormalizeEmoji brings unicode and custom emoji to one comparable
// representation: the raw rune(s) for unicode emoji, "name:id" for
// custom emoji. Accepts the message-format wrapper (<:name:id> /
// <a:name:id>) operators tend to paste in.
func NormalizeEmoji(emoji string) string {
	emoji = strings.TrimSpace(emoji)
	if strings.HasPrefix(emoji, "<") && strings.HasSuffix(emoji, ">") {
		emoji = strings.TrimSuffix(strings.TrimPrefix(emoji, "<"), ">")
		emoji = strings.TrimPrefix(emoji, "a")
		emoji = strings.TrimPrefix(emoji, ":")
	}
	return emoji
}
