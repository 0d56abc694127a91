package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"civicsync-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newBoltStore(t *testing.T) *BoltConversationStore {
	t.Helper()
	s, err := NewBoltConversationStore(filepath.Join(t.TempDir(), "conversations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltGetOrCreateActiveReturnsSameConversation(t *testing.T) {
	ctx := context.Background()
	s := newBoltStore(t)

	first, err := s.GetOrCreateActive(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, first, models.Message{Role: models.RoleUser, Content: "hello"}))
	first.Context.CreatingIssue = true
	require.NoError(t, s.Save(ctx, first))

	second, err := s.GetOrCreateActive(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	require.Len(t, second.Messages, 1)
	assert.Equal(t, "hello", second.Messages[0].Content)
	assert.True(t, second.Context.CreatingIssue)

	other, err := s.GetOrCreateActive(ctx, "u2")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestBoltSaveTrimsHistory(t *testing.T) {
	ctx := context.Background()
	s := newBoltStore(t)

	conv, err := s.GetOrCreateActive(ctx, "u1")
	require.NoError(t, err)
	for i := range 55 {
		conv.Messages = append(conv.Messages, models.Message{Role: models.RoleUser, Content: fmt.Sprint(i)})
	}
	require.NoError(t, s.Save(ctx, conv))

	got, err := s.GetOrCreateActive(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got.Messages, models.MaxConversationMessages)
	assert.Equal(t, "5", got.Messages[0].Content)
}

func TestBoltDeactivate(t *testing.T) {
	ctx := context.Background()
	s := newBoltStore(t)

	first, err := s.GetOrCreateActive(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, s.Deactivate(ctx, "u1"))

	second, err := s.GetOrCreateActive(ctx, "u1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestBoltSweepPurgesExpired(t *testing.T) {
	ctx := context.Background()
	s := newBoltStore(t)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now.Add(-8 * 24 * time.Hour) }
	stale, err := s.GetOrCreateActive(ctx, "stale")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, stale))

	s.now = func() time.Time { return now.Add(-time.Hour) }
	fresh, err := s.GetOrCreateActive(ctx, "fresh")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, fresh))

	n, err := Sweep(ctx, s, models.ConversationTTL, now, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	s.now = func() time.Time { return now }
	replacement, err := s.GetOrCreateActive(ctx, "stale")
	require.NoError(t, err)
	assert.NotEqual(t, stale.ID, replacement.ID)

	kept, err := s.GetOrCreateActive(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, kept.ID)
}
