package database

import (
	"context"
	"errors"
	"time"

	"github.com/careline/realtime/internal/models"
)

var ErrNotFound = errors.New("not found")

// MessageStore owns message records. The hub reads them and advances their
// status; it never creates or deletes them.
type MessageStore interface {
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	// SetStatus applies a forward transition and stamps the matching
	// timestamp. It reports false, without error, when the stored status is
	// already at or past the requested one.
	SetStatus(ctx context.Context, id string, status models.MessageStatus, at time.Time) (bool, error)
	// BulkSetRead marks every unread message addressed to userID in the
	// conversation as read and returns the messages it transitioned.
	BulkSetRead(ctx context.Context, conversationID, userID string, at time.Time) ([]*models.Message, error)
	ListDistinctPartners(ctx context.Context, userID string) ([]string, error)
}

type ProfileLookup interface {
	GetDisplayInfo(ctx context.Context, userID string) (*models.DisplayInfo, error)
}

type Database interface {
	MessageStore
	ProfileLookup
	Ping(ctx context.Context) error
	Close() error
}
