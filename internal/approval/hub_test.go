package approval_test

import (
	"context"
	"testing"
	"time"

	"github.com/rongwang/shinobu-server/internal/approval"
	"github.com/rongwang/shinobu-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type answer struct {
	ok  bool
	err error
}

// ask runs AskYesNo in the background and waits until the request is visible to the first approver
func ask(t *testing.T, hub *approval.Hub, approvers []models.ActorID, timeout time.Duration) (string, <-chan answer) {
	t.Helper()
	done := make(chan answer, 1)
	go func() {
		ok, err := hub.AskYesNo(context.Background(), "Do you accept?", approvers, timeout)
		done <- answer{ok, err}
	}()

	var id string
	require.Eventually(t, func() bool {
		pending := hub.Pending(approvers[0])
		if len(pending) == 0 {
			return false
		}
		id = pending[0].ID
		return true
	}, time.Second, time.Millisecond)
	return id, done
}

func TestAskYesNoAllApprove(t *testing.T) {
	hub := approval.NewHub()
	id, done := ask(t, hub, []models.ActorID{2, 3, 2}, time.Minute)

	pending := hub.Pending(3)
	require.Len(t, pending, 1)
	assert.Equal(t, []models.ActorID{2, 3}, pending[0].Approvers)
	assert.Empty(t, pending[0].Approved)

	require.NoError(t, hub.Vote(2, id, true))
	assert.Empty(t, hub.Pending(2))
	require.Len(t, hub.Pending(3), 1)
	assert.Equal(t, []models.ActorID{2}, hub.Pending(3)[0].Approved)

	require.NoError(t, hub.Vote(3, id, true))

	got := <-done
	assert.NoError(t, got.err)
	assert.True(t, got.ok)
	assert.Empty(t, hub.Pending(3))
}

func TestAskYesNoOneDecline(t *testing.T) {
	hub := approval.NewHub()
	id, done := ask(t, hub, []models.ActorID{2, 3}, time.Minute)

	require.NoError(t, hub.Vote(3, id, false))

	got := <-done
	assert.NoError(t, got.err)
	assert.False(t, got.ok)

	// Decided requests take no more votes
	assert.ErrorIs(t, hub.Vote(2, id, true), approval.ErrUnknownRequest)
}

func TestAskYesNoTimeout(t *testing.T) {
	hub := approval.NewHub()
	_, done := ask(t, hub, []models.ActorID{2}, 50*time.Millisecond)

	got := <-done
	assert.NoError(t, got.err)
	assert.False(t, got.ok)
	assert.Empty(t, hub.Pending(2))
}

func TestAskYesNoContextCancelled(t *testing.T) {
	hub := approval.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := hub.AskYesNo(ctx, "Do you accept?", []models.ActorID{2}, time.Minute)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAskYesNoWithoutApprovers(t *testing.T) {
	hub := approval.NewHub()
	ok, err := hub.AskYesNo(context.Background(), "Do you accept?", nil, time.Minute)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestVoteErrors(t *testing.T) {
	hub := approval.NewHub()
	assert.ErrorIs(t, hub.Vote(2, "missing", true), approval.ErrUnknownRequest)

	id, done := ask(t, hub, []models.ActorID{2}, time.Minute)
	assert.ErrorIs(t, hub.Vote(9, id, true), approval.ErrNotAnApprover)

	require.NoError(t, hub.Vote(2, id, true))
	assert.True(t, (<-done).ok)
}
