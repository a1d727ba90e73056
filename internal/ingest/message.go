package ingest

import (
	"encoding/json"
	"strings"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/store"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

// TraceMessage is the record value published to the traces topic.
type TraceMessage struct {
	UserID   *uint           `json:"user_id,omitempty"`
	FileName string          `json:"file_name,omitempty"`
	Duration *float64        `json:"duration,omitempty"`
	Content  json.RawMessage `json:"content"`
}

// decode parses a record value into a trace row and its content type.
func decode(value []byte) (*store.Trace, types.TraceType, error) {
	var msg TraceMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return nil, "", types.NewError(types.ErrMalformedTrace, "record is not a trace message").WithCause(err)
	}
	content, err := types.DecodeTraceContent(msg.Content)
	if err != nil {
		return nil, "", err
	}
	return &store.Trace{
		UserID:   msg.UserID,
		Content:  store.JSON(msg.Content),
		FileName: strings.TrimSpace(msg.FileName),
		FileSize: len(msg.Content),
		Duration: msg.Duration,
	}, content.Type, nil
}

// ParseBrokers splits a comma-separated broker list.
func ParseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
