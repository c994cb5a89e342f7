package redis

import (
	"context"

	"github.com/framelens/promptforge/internal/db"
)

// Publish sends a message to a channel. Delivery is fire-and-forget; the
// subscriber count is not inspected.
func (s *Store) Publish(ctx context.Context, channel string, message []byte) error {
	cmd := s.b().Publish().Channel(channel).Message(string(message)).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpPublish, Err: err}
	}
	return nil
}
