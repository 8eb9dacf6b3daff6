package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSessions_Lifecycle(t *testing.T) {
	sessions := NewSessions(newFakeCatalog(), zaptest.NewLogger(t), 30)
	t.Cleanup(sessions.CloseAll)

	id, c := sessions.Create()
	require.NotEmpty(t, id)
	settle(t, c)

	got, err := sessions.Get(id)
	require.NoError(t, err)
	assert.Same(t, c, got)
	assert.Equal(t, []string{"Laptops", "Phones"}, got.Snapshot().Categories)
	assert.Equal(t, 1, sessions.Len())

	require.NoError(t, sessions.Delete(id))
	_, err = sessions.Get(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, sessions.Delete(id), ErrSessionNotFound)
	settle(t, c)
}

func TestSessions_SweepRemovesIdle(t *testing.T) {
	sessions := NewSessions(newFakeCatalog(), zaptest.NewLogger(t), 30)
	t.Cleanup(sessions.CloseAll)

	staleID, stale := sessions.Create()
	_, fresh := sessions.Create()
	settle(t, stale)
	settle(t, fresh)

	stale.mu.Lock()
	stale.lastSeen = time.Now().Add(-time.Hour)
	stale.mu.Unlock()

	assert.Equal(t, 1, sessions.Sweep(30*time.Minute))
	assert.Equal(t, 1, sessions.Len())

	_, err := sessions.Get(staleID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
