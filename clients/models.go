package clients

import (
	"time"
)

// DiscordGuild represents Discord guild information
type DiscordGuild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DiscordMessage is one message from a channel history fetch
type DiscordMessage struct {
	ID             string    `json:"id"`
	ChannelID      string    `json:"channel_id"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	AuthorIsBot    bool      `json:"author_is_bot"`
	Content        string    `json:"content"`
	MentionCount   int       `json:"mention_count"`
	Timestamp      time.Time `json:"timestamp"`
}
