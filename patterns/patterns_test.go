package patterns

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discordautomation/config"
	"discordautomation/models"
)

func testAutoModConfig() config.AutoModConfig {
	return config.AutoModConfig{
		RepeatedMessageRatio: 0.5,
		LinkRatio:            0.5,
		MentionThreshold:     5,
		CapsRatio:            0.7,
		CapsMinLength:        15,
	}
}

func message(id, author, content string, mentions int) models.ChannelMessage {
	return models.ChannelMessage{
		ID:           id,
		ChannelID:    "chan-1",
		AuthorID:     author,
		Content:      content,
		MentionCount: mentions,
		CreatedAt:    time.Now(),
	}
}

func TestAnalyzeRepeatedMessages(t *testing.T) {
	var messages []models.ChannelMessage
	for i := 0; i < 6; i++ {
		messages = append(messages, message(fmt.Sprintf("dup-%d", i), "spammer", "buy my thing", 0))
	}
	for i := 0; i < 4; i++ {
		messages = append(messages, message(fmt.Sprintf("ok-%d", i), "spammer", fmt.Sprintf("unique %d", i), 0))
	}

	result := Analyze("chan-1", messages, testAutoModConfig())

	assert.Equal(t, 10, result.MessagesScanned)
	require.Contains(t, result.Authors, "spammer")
	author := result.Authors["spammer"]
	assert.Contains(t, author.Indicators, models.PatternIndicatorRepeatedMessage)
	assert.InDelta(t, 0.4, author.Score, 0.001)
	assert.Len(t, author.MessageIDs, 6)
}

func TestAnalyzeRepeatedMessagesBelowRatio(t *testing.T) {
	messages := []models.ChannelMessage{
		message("m1", "user", "hello", 0),
		message("m2", "user", "hello", 0),
		message("m3", "user", "one", 0),
		message("m4", "user", "two", 0),
		message("m5", "user", "three", 0),
	}

	result := Analyze("chan-1", messages, testAutoModConfig())
	assert.Empty(t, result.Authors)
	assert.Zero(t, result.Score)
}

func TestAnalyzeLinkSpamByRatio(t *testing.T) {
	messages := []models.ChannelMessage{
		message("m1", "user", "check https://a.example/1", 0),
		message("m2", "user", "and https://a.example/2", 0),
		message("m3", "user", "no link here", 0),
	}

	result := Analyze("chan-1", messages, testAutoModConfig())
	require.Contains(t, result.Authors, "user")
	assert.Contains(t, result.Authors["user"].Indicators, models.PatternIndicatorLinkSpam)
}

func TestAnalyzeLinkSpamByRepeatedURL(t *testing.T) {
	messages := []models.ChannelMessage{
		message("m1", "user", "look https://scam.example/x", 0),
		message("m2", "user", "a", 0),
		message("m3", "user", "b", 0),
		message("m4", "user", "c", 0),
		message("m5", "user", "again https://scam.example/x", 0),
	}

	result := Analyze("chan-1", messages, testAutoModConfig())
	require.Contains(t, result.Authors, "user")
	assert.Contains(t, result.Authors["user"].Indicators, models.PatternIndicatorLinkSpam)
	assert.ElementsMatch(t, []string{"m1", "m5"}, result.Authors["user"].MessageIDs)
}

func TestAnalyzeMentionSpam(t *testing.T) {
	messages := []models.ChannelMessage{
		message("m1", "user", "hey @everyone look", 6),
		message("m2", "user", "normal", 1),
	}

	result := Analyze("chan-1", messages, testAutoModConfig())
	require.Contains(t, result.Authors, "user")
	author := result.Authors["user"]
	assert.Contains(t, author.Indicators, models.PatternIndicatorMentionSpam)
	assert.Equal(t, []string{"m1"}, author.MessageIDs)
}

func TestAnalyzeCapsSpam(t *testing.T) {
	messages := []models.ChannelMessage{
		message("m1", "user", "THIS IS VERY IMPORTANT NEWS", 0),
		message("m2", "user", "OK", 0), // too short to judge
	}

	result := Analyze("chan-1", messages, testAutoModConfig())
	require.Contains(t, result.Authors, "user")
	author := result.Authors["user"]
	assert.Contains(t, author.Indicators, models.PatternIndicatorCapsSpam)
	assert.InDelta(t, 0.15, author.Score, 0.001)
	assert.Equal(t, []string{"m1"}, author.MessageIDs)
}

func TestAnalyzeScoreCap(t *testing.T) {
	var messages []models.ChannelMessage
	for i := 0; i < 4; i++ {
		messages = append(messages,
			message(fmt.Sprintf("m-%d", i), "user", "SPAM SPAM https://x.example SPAM @all", 8))
	}

	result := Analyze("chan-1", messages, testAutoModConfig())
	require.Contains(t, result.Authors, "user")
	assert.InDelta(t, 1.0, result.Authors["user"].Score, 0.001)
	assert.LessOrEqual(t, result.Score, 1.0)
}

func TestAnalyzeAuthorsAreIndependent(t *testing.T) {
	messages := []models.ChannelMessage{
		message("m1", "spammer", "same", 0),
		message("m2", "spammer", "same", 0),
		message("m3", "bystander", "hello there", 0),
		message("m4", "bystander", "how are you", 0),
	}

	result := Analyze("chan-1", messages, testAutoModConfig())
	assert.Contains(t, result.Authors, "spammer")
	assert.NotContains(t, result.Authors, "bystander")
}

func TestAnalyzeEmptyWindow(t *testing.T) {
	result := Analyze("chan-1", nil, testAutoModConfig())
	assert.Zero(t, result.MessagesScanned)
	assert.Empty(t, result.Authors)
	assert.Zero(t, result.Score)
}
