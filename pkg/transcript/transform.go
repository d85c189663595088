package transcript

import (
	"sort"
	"strings"
	"time"

	"github.com/ccdeck/ccdeck/internal/core/models"
)

// DefaultPreviewLength is the preview budget used when callers pass a
// non-positive max length.
const DefaultPreviewLength = 100

// previewSeparator replaces line breaks in single-line previews.
const previewSeparator = " · "

// TransformToMessages filters eligible records and converts them into a
// fresh, timestamp-ordered message list. The sort is stable: records with
// equal timestamps keep their original file order, so re-parsing the same
// transcript always yields identical output.
func TransformToMessages(records []Record, sessionID string) []models.Message {
	var messages []models.Message
	for i := range records {
		rec := &records[i]
		if !rec.Eligible() {
			continue
		}

		msg := models.Message{
			ID:        rec.ID,
			SessionID: sessionID,
			Author:    authorOf(rec.Kind),
			Content:   flattenText(rec.Body),
			Timestamp: rec.Timestamp,
		}
		if rec.Body != nil && rec.Body.BlockForm {
			for _, b := range rec.Body.Blocks {
				if b.Type != BlockToolUse {
					continue
				}
				// The record was written after the action happened, so the
				// invocation is always terminal here.
				msg.ToolInvocations = append(msg.ToolInvocations, models.ToolInvocation{
					Tool:   b.Name,
					Input:  b.Input,
					Status: models.ToolComplete,
				})
			}
		}
		messages = append(messages, msg)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages
}

func authorOf(k Kind) models.Author {
	if k == KindAssistant {
		return models.AuthorAgent
	}
	return models.AuthorUser
}

// flattenText extracts the displayable text of a message body. Plain-string
// content passes through unchanged; block content concatenates all text
// blocks with a blank-line separator.
func flattenText(body *MessageBody) string {
	if body == nil {
		return ""
	}
	if !body.BlockForm {
		return body.Text
	}
	var parts []string
	for _, b := range body.Blocks {
		if b.Type == BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Metadata summarizes the eligible records of one transcript.
type Metadata struct {
	StartedAt      time.Time
	LastActivityAt time.Time
	MessageCount   int
}

// SessionMetadata computes timestamps and message count over the same
// eligible-record filter TransformToMessages uses. An empty or fully
// filtered input yields the zero Metadata.
func SessionMetadata(records []Record) Metadata {
	var meta Metadata
	for i := range records {
		rec := &records[i]
		if !rec.Eligible() {
			continue
		}
		meta.MessageCount++
		if !rec.Timestamp.IsZero() {
			if meta.StartedAt.IsZero() {
				meta.StartedAt = rec.Timestamp
			}
			meta.LastActivityAt = rec.Timestamp
		}
	}
	return meta
}

// WorkingDirectory returns the working directory of the first record that
// carries one, or "".
func WorkingDirectory(records []Record) string {
	for i := range records {
		if records[i].CWD != "" {
			return records[i].CWD
		}
	}
	return ""
}

// FirstMessagePreview returns a single-line preview of the chronologically
// first user message with non-blank content, or "" if none exists.
// Internal whitespace collapses to single spaces, line breaks become the
// " · " separator, and the result is truncated to exactly maxLen runes
// (ending in an ellipsis) only when the cleaned text is longer than maxLen.
func FirstMessagePreview(records []Record, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultPreviewLength
	}

	var eligible []*Record
	for i := range records {
		rec := &records[i]
		if rec.Eligible() && rec.Kind == KindUser {
			eligible = append(eligible, rec)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Timestamp.Before(eligible[j].Timestamp)
	})

	for _, rec := range eligible {
		cleaned := cleanPreview(flattenText(rec.Body))
		if cleaned == "" {
			continue
		}
		return truncatePreview(cleaned, maxLen)
	}
	return ""
}

// cleanPreview collapses whitespace within each line and joins non-empty
// lines with the preview separator.
func cleanPreview(s string) string {
	var segments []string
	for _, line := range strings.Split(s, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 {
			segments = append(segments, strings.Join(fields, " "))
		}
	}
	return strings.Join(segments, previewSeparator)
}

func truncatePreview(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}
