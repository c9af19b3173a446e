package amqp

import (
	"encoding/json"
	"time"

	"gastos/internal/feed"
)

// SnapshotMessage carries a full collection snapshot, or the error that
// ended the source subscription. Sequence grows per Source.
type SnapshotMessage struct {
	Source     string          `json:"source"`
	Collection string          `json:"collection"`
	Sequence   int64           `json:"sequence"`
	Documents  []feed.Document `json:"documents,omitempty"`
	Error      string          `json:"error,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

func NewSnapshotMessage(collection string, seq int64, docs []feed.Document) *SnapshotMessage {
	if docs == nil {
		docs = []feed.Document{}
	}
	return &SnapshotMessage{
		Collection: collection,
		Sequence:   seq,
		Documents:  docs,
		Timestamp:  time.Now(),
	}
}

func NewErrorMessage(collection string, seq int64, err error) *SnapshotMessage {
	return &SnapshotMessage{
		Collection: collection,
		Sequence:   seq,
		Error:      err.Error(),
		Timestamp:  time.Now(),
	}
}

func (m *SnapshotMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SnapshotMessageFromJSON(data []byte) (*SnapshotMessage, error) {
	var msg SnapshotMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
