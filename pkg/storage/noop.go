package storage

import (
	"context"

	"github.com/TryMightyAI/decoy/pkg/session"
)

// NoopArchiver discards all writes and never finds anything. Handy in tests
// and when a deployment runs without Postgres.
type NoopArchiver struct{}

func (NoopArchiver) CreateConversation(context.Context, *session.Conversation) error { return nil }
func (NoopArchiver) AppendMessage(context.Context, string, session.Turn) error       { return nil }
func (NoopArchiver) SaveSnapshot(context.Context, *session.Conversation) error       { return nil }
func (NoopArchiver) MarkCompleted(context.Context, string) error                     { return nil }
func (NoopArchiver) LoadConversation(context.Context, string) (*session.Conversation, error) {
	return nil, nil
}
