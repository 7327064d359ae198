package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Veraticus/ledgerline/internal/model"
)

// ChangeMessage announces that an owner's transaction list changed.
// It carries no transaction data; receivers reload from their own store.
type ChangeMessage struct {
	Timestamp time.Time `json:"timestamp"`
	OwnerKind string    `json:"owner_kind"`
	OwnerID   string    `json:"owner_id"`
	Origin    string    `json:"origin"`
}

// NewChangeMessage creates a message for owner sent by origin.
func NewChangeMessage(owner model.Owner, origin string) *ChangeMessage {
	return &ChangeMessage{
		OwnerKind: string(owner.Kind),
		OwnerID:   owner.ID,
		Origin:    origin,
		Timestamp: time.Now().UTC(),
	}
}

// Owner returns the validated owner the message refers to.
func (m *ChangeMessage) Owner() (model.Owner, error) {
	owner := model.Owner{Kind: model.OwnerKind(m.OwnerKind), ID: m.OwnerID}
	if err := owner.Validate(); err != nil {
		return model.Owner{}, err
	}
	return owner, nil
}

// ToJSON converts the message to JSON bytes.
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON decodes a message from JSON bytes.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode change message: %w", err)
	}
	return &msg, nil
}
