// Package transcript parses the append-only JSONL transcript files written
// by a coding agent. The record shape is dictated by the agent and treated
// as a stable external contract, so parsing is defensive: one malformed
// line is skipped and logged, never fatal.
package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// maxLineSize is the maximum JSONL line size (10 MB). Tool results with
// embedded file contents or base64 images blow past the default 64 KB
// bufio.Scanner buffer.
const maxLineSize = 10 * 1024 * 1024

// Kind is the tagged variant of a transcript record.
type Kind string

const (
	KindUser                Kind = "user"
	KindAssistant           Kind = "assistant"
	KindFileHistorySnapshot Kind = "file-history-snapshot"
	KindOther               Kind = "other"
)

// kindOf normalizes the wire-level type tag. This is the single point
// where unknown record types collapse into KindOther.
func kindOf(s string) Kind {
	switch Kind(s) {
	case KindUser, KindAssistant, KindFileHistorySnapshot:
		return Kind(s)
	default:
		return KindOther
	}
}

// Block is one typed content block inside a message body.
type Block struct {
	Type      string
	Text      string         // text block
	Name      string         // tool-invocation block: tool name
	Input     map[string]any // tool-invocation block: arguments
	ToolUseID string
	IsError   bool
}

// Block type tags as they appear on the wire.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// MessageBody is the role+content payload of a user or assistant record.
// Content arrives either as a plain string (older transcripts) or as an
// ordered list of typed blocks; exactly one of Text/Blocks is populated.
type MessageBody struct {
	Role      string
	Text      string
	Blocks    []Block
	BlockForm bool
}

// Record is one line of a transcript file.
type Record struct {
	ID         string
	ParentID   string
	SessionID  string
	Kind       Kind
	Timestamp  time.Time
	CWD        string
	Body       *MessageBody
	IsMeta     bool
	IsAPIError bool
}

// Eligible reports whether the record can become a user-facing Message:
// only user/assistant records with neither meta nor API-error flags set.
func (r *Record) Eligible() bool {
	if r.IsMeta || r.IsAPIError {
		return false
	}
	return r.Kind == KindUser || r.Kind == KindAssistant
}

// Raw deserialization types mirroring the JSONL structure on disk.

type rawRecord struct {
	Type       string   `json:"type"`
	UUID       string   `json:"uuid"`
	ParentUUID string   `json:"parentUuid"`
	SessionID  string   `json:"sessionId"`
	Timestamp  string   `json:"timestamp"`
	CWD        string   `json:"cwd"`
	Message    *rawBody `json:"message"`
	IsMeta     bool     `json:"isMeta"`
	IsAPIError bool     `json:"isApiErrorMessage"`
}

type rawBody struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type rawBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
	ToolUseID string         `json:"tool_use_id"`
	IsError   bool           `json:"is_error"`
}

// ParseFile reads a transcript file and parses each non-empty line as an
// independent record. A missing file is zero records, not an error.
// Malformed lines are skipped and logged with their index and a truncated
// preview; parsing never aborts because of one bad line.
func ParseFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var records []Record
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		rec, err := decodeRecord(line)
		if err != nil {
			log.Warn("skipping malformed transcript line",
				"path", path, "line", lineNum, "preview", preview(line, 80), "err", err)
			continue
		}
		records = append(records, rec)
	}

	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("read transcript: %w", err)
	}
	return records, nil
}

// DecodeRecords parses a JSON array of transcript records, as returned by
// the remote backend. Individual bad elements are skipped and logged the
// same way ParseFile skips bad lines.
func DecodeRecords(data []byte) ([]Record, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode record array: %w", err)
	}

	var records []Record
	for i, raw := range raws {
		rec, err := decodeRecord(raw)
		if err != nil {
			log.Warn("skipping malformed remote record",
				"index", i, "preview", preview(raw, 80), "err", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodeRecord(data []byte) (Record, error) {
	var raw rawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, err
	}

	rec := Record{
		ID:         raw.UUID,
		ParentID:   raw.ParentUUID,
		SessionID:  raw.SessionID,
		Kind:       kindOf(raw.Type),
		CWD:        raw.CWD,
		IsMeta:     raw.IsMeta,
		IsAPIError: raw.IsAPIError,
	}

	if raw.Timestamp != "" {
		t, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
		if err != nil {
			t, err = time.Parse(time.RFC3339, raw.Timestamp)
			if err != nil {
				return Record{}, fmt.Errorf("invalid timestamp %q: %w", raw.Timestamp, err)
			}
		}
		rec.Timestamp = t
	}

	if raw.Message != nil {
		body, err := decodeBody(raw.Message)
		if err != nil {
			return Record{}, err
		}
		rec.Body = body
	}

	return rec, nil
}

// decodeBody handles the string-or-blocks content union.
func decodeBody(raw *rawBody) (*MessageBody, error) {
	body := &MessageBody{Role: raw.Role}
	if len(raw.Content) == 0 {
		return body, nil
	}

	var text string
	if err := json.Unmarshal(raw.Content, &text); err == nil {
		body.Text = text
		return body, nil
	}

	var rawBlocks []rawBlock
	if err := json.Unmarshal(raw.Content, &rawBlocks); err != nil {
		return nil, fmt.Errorf("message content is neither string nor block list: %w", err)
	}

	body.BlockForm = true
	for _, b := range rawBlocks {
		body.Blocks = append(body.Blocks, Block{
			Type:      b.Type,
			Text:      b.Text,
			Name:      b.Name,
			Input:     b.Input,
			ToolUseID: b.ToolUseID,
			IsError:   b.IsError,
		})
	}
	return body, nil
}

func preview(line []byte, n int) string {
	if len(line) <= n {
		return string(line)
	}
	return string(line[:n]) + "..."
}
