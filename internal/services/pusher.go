package services

import (
	"errors"

	"github.com/careline/realtime/internal/models"
)

var (
	ErrNotSender      = errors.New("caller is not the message sender")
	ErrNotReceiver    = errors.New("caller is not the message receiver")
	ErrNotMember      = errors.New("connection is not a member of the group")
	ErrNotParticipant = errors.New("user is not a participant of the room")
	ErrInvalidArgs    = errors.New("invalid arguments")
)

// Pusher delivers one outbound event to one live connection. It must not
// block; it reports false when the connection is gone or not accepting.
type Pusher interface {
	Push(connectionID string, event models.Event) bool
}

// Broadcaster is implemented by pushers that can encode an event once for
// many connections.
type Broadcaster interface {
	PushMany(connectionIDs []string, event models.Event) int
}

// pushAll sends ev to every connection and returns how many accepted it.
func pushAll(p Pusher, conns []string, ev models.Event) int {
	if b, ok := p.(Broadcaster); ok {
		return b.PushMany(conns, ev)
	}
	n := 0
	for _, c := range conns {
		if p.Push(c, ev) {
			n++
		}
	}
	return n
}
