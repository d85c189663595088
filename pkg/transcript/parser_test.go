package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccdeck/ccdeck/internal/core/models"
)

const sampleTranscript = `{"type":"user","uuid":"u1","sessionId":"s1","timestamp":"2025-06-01T10:00:00Z","cwd":"/home/dev/proj","message":{"role":"user","content":"fix the login bug"}}
{"type":"assistant","uuid":"a1","parentUuid":"u1","sessionId":"s1","timestamp":"2025-06-01T10:00:05Z","message":{"role":"assistant","content":[{"type":"text","text":"Looking at it now."},{"type":"tool_use","name":"read_file","input":{"path":"auth.go"}},{"type":"text","text":"Found the issue."}]}}
{"type":"user","uuid":"m1","sessionId":"s1","timestamp":"2025-06-01T10:00:06Z","isMeta":true,"message":{"role":"user","content":"<meta>"}}
{"type":"file-history-snapshot","uuid":"f1","sessionId":"s1","timestamp":"2025-06-01T10:00:07Z"}
{"type":"assistant","uuid":"e1","sessionId":"s1","timestamp":"2025-06-01T10:00:08Z","isApiErrorMessage":true,"message":{"role":"assistant","content":"rate limited"}}
not valid json at all
{"type":"user","uuid":"u2","sessionId":"s1","timestamp":"2025-06-01T10:01:00Z","message":{"role":"user","content":[{"type":"text","text":"thanks"},{"type":"text","text":"ship it"}]}}
`

func writeTranscript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "s1.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseFile(t *testing.T) {
	records, err := ParseFile(writeTranscript(t, sampleTranscript))
	require.NoError(t, err)

	// Malformed line is skipped, everything else survives.
	require.Len(t, records, 6)

	assert.Equal(t, KindUser, records[0].Kind)
	assert.Equal(t, "u1", records[0].ID)
	assert.Equal(t, "/home/dev/proj", records[0].CWD)
	assert.Equal(t, "fix the login bug", records[0].Body.Text)
	assert.False(t, records[0].Body.BlockForm)

	assert.Equal(t, KindAssistant, records[1].Kind)
	assert.Equal(t, "u1", records[1].ParentID)
	require.True(t, records[1].Body.BlockForm)
	require.Len(t, records[1].Body.Blocks, 3)
	assert.Equal(t, BlockToolUse, records[1].Body.Blocks[1].Type)
	assert.Equal(t, "read_file", records[1].Body.Blocks[1].Name)

	assert.True(t, records[2].IsMeta)
	assert.Equal(t, KindFileHistorySnapshot, records[3].Kind)
	assert.True(t, records[4].IsAPIError)
}

func TestParseFileMissing(t *testing.T) {
	records, err := ParseFile(filepath.Join(t.TempDir(), "nope.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseFileUnknownKind(t *testing.T) {
	records, err := ParseFile(writeTranscript(t,
		`{"type":"queue-operation","uuid":"q1","sessionId":"s1","timestamp":"2025-06-01T10:00:00Z"}`+"\n"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, KindOther, records[0].Kind)
	assert.False(t, records[0].Eligible())
}

func TestDecodeRecords(t *testing.T) {
	data := `[
		{"type":"user","uuid":"u1","timestamp":"2025-06-01T10:00:00Z","message":{"role":"user","content":"hello"}},
		{"type":"assistant","uuid":"a1","timestamp":"not-a-time"},
		{"type":"assistant","uuid":"a2","timestamp":"2025-06-01T10:00:05Z","message":{"role":"assistant","content":[{"type":"text","text":"hi"}]}}
	]`
	records, err := DecodeRecords([]byte(data))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "u1", records[0].ID)
	assert.Equal(t, "a2", records[1].ID)

	_, err = DecodeRecords([]byte(`{"not":"an array"}`))
	assert.Error(t, err)
}

func TestTransformToMessages(t *testing.T) {
	records, err := ParseFile(writeTranscript(t, sampleTranscript))
	require.NoError(t, err)

	messages := TransformToMessages(records, "s1")
	require.Len(t, messages, 3)

	assert.Equal(t, "u1", messages[0].ID)
	assert.Equal(t, models.AuthorUser, messages[0].Author)
	assert.Equal(t, "fix the login bug", messages[0].Content)
	assert.Equal(t, "s1", messages[0].SessionID)

	assert.Equal(t, models.AuthorAgent, messages[1].Author)
	assert.Equal(t, "Looking at it now.\n\nFound the issue.", messages[1].Content)
	require.Len(t, messages[1].ToolInvocations, 1)
	assert.Equal(t, "read_file", messages[1].ToolInvocations[0].Tool)
	assert.Equal(t, models.ToolComplete, messages[1].ToolInvocations[0].Status)

	assert.Equal(t, "thanks\n\nship it", messages[2].Content)
}

func TestTransformDeterministic(t *testing.T) {
	path := writeTranscript(t, sampleTranscript)

	first, err := ParseFile(path)
	require.NoError(t, err)
	second, err := ParseFile(path)
	require.NoError(t, err)

	assert.Equal(t, TransformToMessages(first, "s1"), TransformToMessages(second, "s1"))
}

func TestTransformSortsByTimestamp(t *testing.T) {
	out := `{"type":"assistant","uuid":"a1","timestamp":"2025-06-01T10:00:05Z","message":{"role":"assistant","content":"later"}}
{"type":"user","uuid":"u1","timestamp":"2025-06-01T10:00:00Z","message":{"role":"user","content":"earlier"}}
`
	records, err := ParseFile(writeTranscript(t, out))
	require.NoError(t, err)

	messages := TransformToMessages(records, "s1")
	require.Len(t, messages, 2)
	assert.Equal(t, "u1", messages[0].ID)
	assert.Equal(t, "a1", messages[1].ID)
}

func TestSessionMetadata(t *testing.T) {
	records, err := ParseFile(writeTranscript(t, sampleTranscript))
	require.NoError(t, err)

	meta := SessionMetadata(records)
	assert.Equal(t, 3, meta.MessageCount)
	assert.Equal(t, "2025-06-01T10:00:00Z", meta.StartedAt.Format("2006-01-02T15:04:05Z"))
	assert.Equal(t, "2025-06-01T10:01:00Z", meta.LastActivityAt.Format("2006-01-02T15:04:05Z"))

	assert.Equal(t, Metadata{}, SessionMetadata(nil))
}

func TestWorkingDirectory(t *testing.T) {
	records, err := ParseFile(writeTranscript(t, sampleTranscript))
	require.NoError(t, err)
	assert.Equal(t, "/home/dev/proj", WorkingDirectory(records))
	assert.Equal(t, "", WorkingDirectory(nil))
}

func TestFirstMessagePreview(t *testing.T) {
	records := []Record{
		{
			Kind: KindUser,
			Body: &MessageBody{Role: "user", Text: "  Hello    World  \n\n  Test  "},
		},
	}
	assert.Equal(t, "Hello World · Test", FirstMessagePreview(records, 0))
}

func TestFirstMessagePreviewTruncates(t *testing.T) {
	long := strings.Repeat("x", 150)
	records := []Record{
		{Kind: KindUser, Body: &MessageBody{Role: "user", Text: long}},
	}
	got := FirstMessagePreview(records, 100)
	assert.Equal(t, 100, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestFirstMessagePreviewSkipsBlankAndAgent(t *testing.T) {
	records := []Record{
		{Kind: KindAssistant, Body: &MessageBody{Role: "assistant", Text: "agent text"}},
		{Kind: KindUser, Body: &MessageBody{Role: "user", Text: "   \n  "}},
		{Kind: KindUser, IsMeta: true, Body: &MessageBody{Role: "user", Text: "meta"}},
		{Kind: KindUser, Body: &MessageBody{Role: "user", Text: "real question"}},
	}
	assert.Equal(t, "real question", FirstMessagePreview(records, 0))

	assert.Equal(t, "", FirstMessagePreview(nil, 0))
}

func TestFilterInvariant(t *testing.T) {
	records, err := ParseFile(writeTranscript(t, sampleTranscript))
	require.NoError(t, err)

	byID := make(map[string]*Record)
	for i := range records {
		byID[records[i].ID] = &records[i]
	}
	for _, msg := range TransformToMessages(records, "s1") {
		src := byID[msg.ID]
		require.NotNil(t, src)
		assert.False(t, src.IsMeta)
		assert.False(t, src.IsAPIError)
		assert.NotEqual(t, KindFileHistorySnapshot, src.Kind)
	}
}
