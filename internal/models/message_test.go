package models

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageID_TimeOrdered(t *testing.T) {
	// ids allocated in sequence must sort in allocation order, since the
	// message tables order by primary key
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = NewMessageID().String()
	}

	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)
	assert.Equal(t, sorted, ids)
}

func TestPartsJSON_RoundTrip(t *testing.T) {
	parts := []Part{
		{Type: PartTypeReasoning, Text: "step one"},
		{Type: PartTypeText, Text: "answer"},
		{Type: PartTypeToolInvocation, ToolName: "search", ToolArgs: `{"q":"go"}`},
		{Type: PartTypeSource, URL: "https://example.com", Title: "Example"},
	}

	m := Message{Parts: PartsJSON(parts)}
	got, err := m.DecodeParts()
	require.NoError(t, err)
	assert.Equal(t, parts, got)
}

func TestPartsJSON_EmptyIsNil(t *testing.T) {
	assert.Nil(t, PartsJSON(nil))
	assert.Nil(t, PartsJSON([]Part{}))

	m := Message{}
	got, err := m.DecodeParts()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAttachmentsJSON_RoundTrip(t *testing.T) {
	attachments := []Attachment{
		{Name: "a.png", ContentType: "image/png", URL: "https://storage.example/a.png"},
	}

	m := Message{Attachments: AttachmentsJSON(attachments)}
	got, err := m.DecodeAttachments()
	require.NoError(t, err)
	assert.Equal(t, attachments, got)

	assert.Nil(t, AttachmentsJSON(nil))
}

func TestDecodeParts_CorruptedPayload(t *testing.T) {
	m := Message{Parts: []byte("{broken")}
	_, err := m.DecodeParts()
	assert.Error(t, err)
}
