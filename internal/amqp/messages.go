package amqp

import (
	"encoding/json"
	"time"
)

// GroupMutationMessage tells the snapshot worker that a group's ledger
// changed. It carries only the group id and the new version; the worker
// loads the full group from the database.
type GroupMutationMessage struct {
	GroupID   string    `json:"group_id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewGroupMutationMessage(groupID string, version int64) *GroupMutationMessage {
	return &GroupMutationMessage{
		GroupID:   groupID,
		Version:   version,
		Timestamp: time.Now(),
	}
}

func (m *GroupMutationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func GroupMutationMessageFromJSON(data []byte) (*GroupMutationMessage, error) {
	var msg GroupMutationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
