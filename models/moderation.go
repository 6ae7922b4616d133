package models

type ModerationMode string

const (
	ModerationModeEnforce ModerationMode = "enforce"
	ModerationModeDryRun  ModerationMode = "dry_run"
)

type ModerationActionKind string

const (
	ModerationActionDeleteMessages ModerationActionKind = "delete_messages"
	ModerationActionTimeout        ModerationActionKind = "timeout"
)

// ModerationAction is one per-author action the auto-moderator proposed.
// In dry_run mode Enforced stays false and no platform call is made.
type ModerationAction struct {
	ChannelID  string               `json:"channel_id"`
	AuthorID   string               `json:"author_id"`
	Kind       ModerationActionKind `json:"kind"`
	Score      float64              `json:"score"`
	Indicators []PatternIndicator   `json:"indicators"`
	MessageIDs []string             `json:"message_ids"`
	Enforced   bool                 `json:"enforced"`
	Error      string               `json:"error,omitempty"`
}
