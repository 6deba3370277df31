package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SaleRecordedMessage announces that a client has a new or changed sale.
// The worker refetches the whole client snapshot, so only identifiers travel.
type SaleRecordedMessage struct {
	MessageID string    `json:"message_id"`
	ClientID  string    `json:"client_id"`
	SaleID    string    `json:"sale_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSaleRecordedMessage creates a message with a fresh id.
func NewSaleRecordedMessage(clientID, saleID string) *SaleRecordedMessage {
	return &SaleRecordedMessage{
		MessageID: uuid.NewString(),
		ClientID:  strings.TrimSpace(clientID),
		SaleID:    strings.TrimSpace(saleID),
		Timestamp: time.Now().UTC(),
	}
}

// Validate checks the fields a consumer depends on.
func (m *SaleRecordedMessage) Validate() error {
	if strings.TrimSpace(m.ClientID) == "" {
		return errors.New("missing client_id")
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *SaleRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SaleRecordedMessageFromJSON decodes and validates a message.
func SaleRecordedMessageFromJSON(data []byte) (*SaleRecordedMessage, error) {
	var msg SaleRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
