package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageStatus only ever moves forward: Sent -> Delivered -> Read.
type MessageStatus int

const (
	StatusSent MessageStatus = iota
	StatusDelivered
	StatusRead
)

func (s MessageStatus) String() string {
	switch s {
	case StatusSent:
		return "Sent"
	case StatusDelivered:
		return "Delivered"
	case StatusRead:
		return "Read"
	}
	return fmt.Sprintf("MessageStatus(%d)", int(s))
}

// Advances reports whether moving from s to next is a forward transition.
func (s MessageStatus) Advances(next MessageStatus) bool {
	return next > s && next <= StatusRead
}

func ParseMessageStatus(v string) (MessageStatus, error) {
	switch v {
	case "Sent":
		return StatusSent, nil
	case "Delivered":
		return StatusDelivered, nil
	case "Read":
		return StatusRead, nil
	}
	return 0, fmt.Errorf("unknown message status %q", v)
}

func (s MessageStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *MessageStatus) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := ParseMessageStatus(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Message is owned by the message store; the hub only advances its status.
type Message struct {
	ID             string        `json:"id"`
	SenderID       string        `json:"senderId"`
	ReceiverID     string        `json:"receiverId"`
	Content        string        `json:"content"`
	Status         MessageStatus `json:"status"`
	SentAt         time.Time     `json:"sentAt"`
	DeliveredAt    *time.Time    `json:"deliveredAt,omitempty"`
	ReadAt         *time.Time    `json:"readAt,omitempty"`
	ConversationID string        `json:"conversationId"`
}
