// Package patterns scores recent channel history for spam indicators.
// The analyzer is pure: it takes a message window and thresholds and
// returns per-author findings, leaving fetching and enforcement to the
// callers.
package patterns

import (
	"regexp"
	"strings"
	"unicode"

	"discordautomation/config"
	"discordautomation/models"
)

var linkPattern = regexp.MustCompile(`https?://\S+`)

// Indicator weights. The per-author score is the sum of the weights of
// the indicators that fired, capped at 1.0.
const (
	weightRepeatedMessage = 0.4
	weightLinkSpam        = 0.3
	weightMentionSpam     = 0.3
	weightCapsSpam        = 0.15
)

// Analyze scans a window of channel messages and scores each author.
// Messages by bots should be filtered out by the caller before analysis.
func Analyze(channelID string, messages []models.ChannelMessage, cfg config.AutoModConfig) *models.PatternAnalysisResult {
	result := &models.PatternAnalysisResult{
		ChannelID:       channelID,
		MessagesScanned: len(messages),
		Authors:         make(map[string]*models.AuthorPattern),
	}

	byAuthor := make(map[string][]models.ChannelMessage)
	for _, msg := range messages {
		byAuthor[msg.AuthorID] = append(byAuthor[msg.AuthorID], msg)
	}

	seenIndicators := make(map[models.PatternIndicator]bool)
	for authorID, authorMessages := range byAuthor {
		pattern := analyzeAuthor(authorID, authorMessages, cfg)
		if pattern.Score == 0 {
			continue
		}
		result.Authors[authorID] = pattern
		if pattern.Score > result.Score {
			result.Score = pattern.Score
		}
		for _, indicator := range pattern.Indicators {
			if !seenIndicators[indicator] {
				seenIndicators[indicator] = true
				result.Indicators = append(result.Indicators, indicator)
			}
		}
	}
	return result
}

func analyzeAuthor(authorID string, messages []models.ChannelMessage, cfg config.AutoModConfig) *models.AuthorPattern {
	pattern := &models.AuthorPattern{
		AuthorID:     authorID,
		MessageCount: len(messages),
	}
	flagged := make(map[string]bool)

	addIndicator := func(indicator models.PatternIndicator, weight float64, messageIDs []string) {
		pattern.Indicators = append(pattern.Indicators, indicator)
		pattern.Score += weight
		for _, id := range messageIDs {
			if !flagged[id] {
				flagged[id] = true
				pattern.MessageIDs = append(pattern.MessageIDs, id)
			}
		}
	}

	if ids := repeatedMessages(messages, cfg.RepeatedMessageRatio); len(ids) > 0 {
		addIndicator(models.PatternIndicatorRepeatedMessage, weightRepeatedMessage, ids)
	}
	if ids := linkSpam(messages, cfg.LinkRatio); len(ids) > 0 {
		addIndicator(models.PatternIndicatorLinkSpam, weightLinkSpam, ids)
	}
	if ids := mentionSpam(messages, cfg.MentionThreshold); len(ids) > 0 {
		addIndicator(models.PatternIndicatorMentionSpam, weightMentionSpam, ids)
	}
	if ids := capsSpam(messages, cfg.CapsRatio, cfg.CapsMinLength); len(ids) > 0 {
		addIndicator(models.PatternIndicatorCapsSpam, weightCapsSpam, ids)
	}

	if pattern.Score > 1.0 {
		pattern.Score = 1.0
	}
	return pattern
}

// repeatedMessages flags an author whose duplicate share of the window
// meets the configured ratio. Content is compared case-insensitively
// after trimming so trivial edits do not dodge the check.
func repeatedMessages(messages []models.ChannelMessage, ratio float64) []string {
	if len(messages) < 2 {
		return nil
	}
	byContent := make(map[string][]string)
	for _, msg := range messages {
		normalized := strings.ToLower(strings.TrimSpace(msg.Content))
		if normalized == "" {
			continue
		}
		byContent[normalized] = append(byContent[normalized], msg.ID)
	}

	var duplicates []string
	duplicateCount := 0
	for _, ids := range byContent {
		if len(ids) >= 2 {
			duplicateCount += len(ids)
			duplicates = append(duplicates, ids...)
		}
	}
	if duplicateCount == 0 || float64(duplicateCount)/float64(len(messages)) < ratio {
		return nil
	}
	return duplicates
}

// linkSpam flags an author posting links in a large share of their
// messages, or the exact same URL more than once.
func linkSpam(messages []models.ChannelMessage, ratio float64) []string {
	if len(messages) == 0 {
		return nil
	}
	var withLinks []string
	urlCounts := make(map[string]int)
	repeatedURL := false
	for _, msg := range messages {
		urls := linkPattern.FindAllString(msg.Content, -1)
		if len(urls) == 0 {
			continue
		}
		withLinks = append(withLinks, msg.ID)
		for _, url := range urls {
			urlCounts[url]++
			if urlCounts[url] >= 2 {
				repeatedURL = true
			}
		}
	}
	if len(withLinks) == 0 {
		return nil
	}
	if repeatedURL || float64(len(withLinks))/float64(len(messages)) >= ratio {
		return withLinks
	}
	return nil
}

// mentionSpam flags any single message mentioning more users than the
// threshold allows.
func mentionSpam(messages []models.ChannelMessage, threshold int) []string {
	var flagged []string
	for _, msg := range messages {
		if msg.MentionCount > threshold {
			flagged = append(flagged, msg.ID)
		}
	}
	return flagged
}

// capsSpam flags messages long enough to judge whose letters are mostly
// uppercase.
func capsSpam(messages []models.ChannelMessage, ratio float64, minLength int) []string {
	var flagged []string
	for _, msg := range messages {
		if len(msg.Content) < minLength {
			continue
		}
		upper, letters := 0, 0
		for _, r := range msg.Content {
			if !unicode.IsLetter(r) {
				continue
			}
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
		if letters == 0 {
			continue
		}
		if float64(upper)/float64(letters) >= ratio {
			flagged = append(flagged, msg.ID)
		}
	}
	return flagged
}
