package models

import (
	"time"
)

type PatternIndicator string

const (
	PatternIndicatorRepeatedMessage PatternIndicator = "repeated_message"
	PatternIndicatorLinkSpam        PatternIndicator = "link_spam"
	PatternIndicatorMentionSpam     PatternIndicator = "mention_spam"
	PatternIndicatorCapsSpam        PatternIndicator = "caps_spam"
)

// ChannelMessage is the analyzer's view of one message in a channel
// window, ordered newest first as the platform returns history.
type ChannelMessage struct {
	ID             string    `json:"id"`
	ChannelID      string    `json:"channel_id"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	Content        string    `json:"content"`
	MentionCount   int       `json:"mention_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// AuthorPattern is the per-author breakdown of a channel analysis.
type AuthorPattern struct {
	AuthorID     string             `json:"author_id"`
	Score        float64            `json:"score"`
	Indicators   []PatternIndicator `json:"indicators"`
	MessageIDs   []string           `json:"message_ids"`
	MessageCount int                `json:"message_count"`
}

// PatternAnalysisResult is ephemeral - consumed immediately by the
// auto-moderator or reported over the admin API, never persisted.
type PatternAnalysisResult struct {
	ChannelID       string                    `json:"channel_id"`
	MessagesScanned int                       `json:"messages_scanned"`
	Score           float64                   `json:"score"`
	Indicators      []PatternIndicator        `json:"indicators"`
	Authors         map[string]*AuthorPattern `json:"authors"`
}
