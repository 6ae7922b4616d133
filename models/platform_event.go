package models

// PlatformEvent is the ephemeral, normalized form of a gateway event.
// It is consumed once by the trigger matcher and then discarded.
//
// ID is derived from stable platform identifiers (message ID, member ID)
// so a redelivered event produces the same ID and the dispatch ledger
// can absorb the duplicate.
type PlatformEvent struct {
	ID        string      `json:"id"`
	Type      TriggerType `json:"type"`
	GuildID   string      `json:"guild_id"`
	ChannelID string      `json:"channel_id"`
	UserID    string      `json:"user_id"`
	Username  string      `json:"username"`
	GuildName string      `json:"guild_name"`

	// message_contains fields
	MessageID   string `json:"message_id,omitempty"`
	MessageText string `json:"message_text,omitempty"`

	// reaction_added fields - Emoji holds the normalized representation
	Emoji string `json:"emoji,omitempty"`
}
