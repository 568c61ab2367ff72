package trade_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rongwang/shinobu-server/internal/approval"
	"github.com/rongwang/shinobu-server/internal/models"
	"github.com/rongwang/shinobu-server/internal/ownership"
	"github.com/rongwang/shinobu-server/internal/repository"
	"github.com/rongwang/shinobu-server/internal/repository/repotest"
	"github.com/rongwang/shinobu-server/internal/trade"
	"github.com/rongwang/shinobu-server/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type confirmerFunc func(ctx context.Context, prompt string, approvers []models.ActorID) (bool, error)

func (f confirmerFunc) AskYesNo(ctx context.Context, prompt string, approvers []models.ActorID, _ time.Duration) (bool, error) {
	return f(ctx, prompt, approvers)
}

func approveAll() confirmerFunc {
	return func(context.Context, string, []models.ActorID) (bool, error) { return true, nil }
}

type fixture struct {
	repo   *repository.SQLRepository
	ledger *trade.Ledger
	alice  models.ActorID
	bob    models.ActorID
	carol  models.ActorID
	rem    models.Waifu
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := repotest.NewSQLite(t)
	repotest.SeedCatalog(t, repo, rem)

	f := &fixture{
		repo:   repo,
		ledger: trade.NewLedger(),
		alice:  repotest.CreateUser(t, repo, "alice", 100),
		bob:    repotest.CreateUser(t, repo, "bob", 50),
		carol:  repotest.CreateUser(t, repo, "carol", 0),
	}
	f.rem = repotest.GiveWaifu(t, repo, f.bob, rem.ID, 1)
	return f
}

func (f *fixture) signer(confirmer trade.Confirmer) *trade.Signer {
	return trade.NewSigner(f.ledger, f.repo, confirmer, time.Minute, utils.NewDiscardLogger())
}

func (f *fixture) queue(t *testing.T, actor models.ActorID, changes ...trade.Change) {
	t.Helper()
	held, err := f.ledger.Lock(context.Background(), actor)
	require.NoError(t, err)
	defer held.Unlock()
	for _, c := range changes {
		held.Append(c)
	}
}

func (f *fixture) giveRem(t *testing.T, to models.ActorID) trade.Change {
	t.Helper()
	w, err := trade.NewWaifuTransfer(f.rem, to)
	require.NoError(t, err)
	return w
}

func (f *fixture) owner(t *testing.T, waifuID int64) models.ActorID {
	t.Helper()
	w, err := f.repo.GetWaifu(context.Background(), waifuID)
	require.NoError(t, err)
	return w.Owner
}

func TestSignExecutesEveryChange(t *testing.T) {
	f := newFixture(t)
	f.queue(t, f.alice, money(t, f.alice, f.bob, 30))
	f.queue(t, f.bob, f.giveRem(t, f.alice))

	var asked []models.ActorID
	var prompt string
	signer := f.signer(confirmerFunc(func(_ context.Context, p string, approvers []models.ActorID) (bool, error) {
		prompt, asked = p, approvers
		return true, nil
	}))

	executed, err := signer.Sign(context.Background(), f.alice, f.bob)
	require.NoError(t, err)

	assert.Equal(t, []models.ActorID{f.alice, f.bob}, executed.Participants)
	assert.Len(t, executed.Changes, 2)
	assert.Equal(t, []models.ActorID{f.bob}, asked)
	assert.Contains(t, prompt, "gives 30")
	assert.Contains(t, prompt, "Rem")

	assert.Equal(t, int64(70), repotest.Balance(t, f.repo, f.alice))
	assert.Equal(t, int64(80), repotest.Balance(t, f.repo, f.bob))
	assert.Equal(t, f.alice, f.owner(t, f.rem.ID))

	assert.False(t, f.ledger.HasPending(f.alice))
	assert.False(t, f.ledger.HasPending(f.bob))
}

func TestSignAloneSkipsApproval(t *testing.T) {
	f := newFixture(t)
	f.queue(t, f.alice, money(t, f.alice, f.carol, 10))

	signer := f.signer(confirmerFunc(func(context.Context, string, []models.ActorID) (bool, error) {
		t.Error("nobody should be asked")
		return false, nil
	}))

	_, err := signer.Sign(context.Background(), f.alice)
	require.NoError(t, err)
	assert.Equal(t, int64(10), repotest.Balance(t, f.repo, f.carol))
}

func TestSignIsAllOrNothing(t *testing.T) {
	tests := []struct {
		name    string
		changes func(f *fixture) []trade.Change
		wantErr error
	}{
		{
			name: "second payment overdraws",
			changes: func(f *fixture) []trade.Change {
				return []trade.Change{money(t, f.alice, f.carol, 60), money(t, f.alice, f.carol, 60)}
			},
			wantErr: repository.ErrInsufficientFunds,
		},
		{
			name: "recipient already owns the character",
			changes: func(f *fixture) []trade.Change {
				repotest.GiveWaifu(t, f.repo, f.carol, rem.ID, 1)
				return []trade.Change{money(t, f.bob, f.carol, 20), f.giveRem(t, f.carol)}
			},
			wantErr: repository.ErrAlreadyOwned,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			changes := tt.changes(f)
			f.queue(t, changes[0].From(), changes...)

			_, err := f.signer(approveAll()).Sign(context.Background(), changes[0].From(), f.carol)
			require.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, int64(100), repotest.Balance(t, f.repo, f.alice))
			assert.Equal(t, int64(50), repotest.Balance(t, f.repo, f.bob))
			assert.Equal(t, int64(0), repotest.Balance(t, f.repo, f.carol))
			assert.Equal(t, f.bob, f.owner(t, f.rem.ID))

			// Failed executions keep the queue for a retry or cancel
			assert.True(t, f.ledger.HasPending(changes[0].From()))
		})
	}
}

func TestSignDeclinedKeepsChanges(t *testing.T) {
	f := newFixture(t)
	f.queue(t, f.alice, money(t, f.alice, f.bob, 30))

	signer := f.signer(confirmerFunc(func(context.Context, string, []models.ActorID) (bool, error) {
		return false, nil
	}))

	_, err := signer.Sign(context.Background(), f.alice, f.bob)
	assert.ErrorIs(t, err, trade.ErrTransactionDeclined)
	assert.True(t, f.ledger.HasPending(f.alice))
	assert.Equal(t, int64(100), repotest.Balance(t, f.repo, f.alice))

	// Every lock was released
	set, err := f.ledger.LockAll(context.Background(), f.alice, f.bob)
	require.NoError(t, err)
	assert.Len(t, set.Changes(), 1)
	set.Unlock()
}

func TestSignConfirmerError(t *testing.T) {
	f := newFixture(t)
	f.queue(t, f.alice, money(t, f.alice, f.bob, 30))

	boom := errors.New("boom")
	signer := f.signer(confirmerFunc(func(context.Context, string, []models.ActorID) (bool, error) {
		return false, boom
	}))

	_, err := signer.Sign(context.Background(), f.alice, f.bob)
	assert.ErrorIs(t, err, boom)
	assert.True(t, f.ledger.HasPending(f.alice))
}

func TestSignWithoutChanges(t *testing.T) {
	f := newFixture(t)
	f.queue(t, f.bob, money(t, f.bob, f.alice, 5))

	_, err := f.signer(approveAll()).Sign(context.Background(), f.alice, f.bob)
	assert.ErrorIs(t, err, trade.ErrNoTransactionInProgress)
	assert.True(t, f.ledger.HasPending(f.bob))
}

func TestSignRevalidatesOwnership(t *testing.T) {
	f := newFixture(t)
	f.queue(t, f.bob, f.giveRem(t, f.alice))

	// Bob gives Rem away outside the transaction
	require.NoError(t, f.repo.SetWaifuOwner(context.Background(), f.rem.ID, f.carol))

	var asked atomic.Bool
	signer := f.signer(confirmerFunc(func(context.Context, string, []models.ActorID) (bool, error) {
		asked.Store(true)
		return true, nil
	}))

	_, err := signer.Sign(context.Background(), f.bob, f.alice)
	assert.ErrorIs(t, err, ownership.ErrOwnershipChanged)
	assert.False(t, asked.Load())
	assert.Equal(t, f.carol, f.owner(t, f.rem.ID))
}

func TestSignHoldsLocksWhileWaiting(t *testing.T) {
	f := newFixture(t)
	f.queue(t, f.alice, money(t, f.alice, f.bob, 30))

	waiting := make(chan struct{})
	release := make(chan struct{})
	signer := f.signer(confirmerFunc(func(context.Context, string, []models.ActorID) (bool, error) {
		close(waiting)
		<-release
		return true, nil
	}))

	done := make(chan error, 1)
	go func() {
		_, err := signer.Sign(context.Background(), f.alice, f.bob)
		done <- err
	}()
	<-waiting

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.ledger.Lock(ctx, f.bob)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int64(80), repotest.Balance(t, f.repo, f.bob))
}

func TestConcurrentSignsDoNotDeadlock(t *testing.T) {
	f := newFixture(t)
	f.queue(t, f.alice, money(t, f.alice, f.bob, 10))
	f.queue(t, f.bob, money(t, f.bob, f.alice, 5))
	f.queue(t, f.carol, money(t, f.carol, f.alice, 1))
	require.NoError(t, f.repo.AdjustBalance(context.Background(), f.carol, 1))

	// Slow approval widens the window in which both signers hold locks
	signer := f.signer(confirmerFunc(func(context.Context, string, []models.ActorID) (bool, error) {
		time.Sleep(20 * time.Millisecond)
		return true, nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs [2]error
	var g errgroup.Group
	g.Go(func() error {
		_, errs[0] = signer.Sign(ctx, f.alice, f.bob, f.carol)
		return nil
	})
	g.Go(func() error {
		_, errs[1] = signer.Sign(ctx, f.carol, f.bob, f.alice)
		return nil
	})
	require.NoError(t, g.Wait())

	// Whoever locked first executed everyone's changes; the other found nothing left to sign
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, trade.ErrNoTransactionInProgress)
	}
	assert.Equal(t, 1, succeeded)

	assert.Equal(t, int64(96), repotest.Balance(t, f.repo, f.alice))
	assert.Equal(t, int64(55), repotest.Balance(t, f.repo, f.bob))
	assert.Equal(t, int64(0), repotest.Balance(t, f.repo, f.carol))
}

func TestSignWithApprovalHub(t *testing.T) {
	f := newFixture(t)
	f.queue(t, f.alice, money(t, f.alice, f.bob, 30))
	hub := approval.NewHub()
	signer := f.signer(hub)

	done := make(chan error, 1)
	go func() {
		_, err := signer.Sign(context.Background(), f.alice, f.bob)
		done <- err
	}()

	var pending []approval.Request
	require.Eventually(t, func() bool {
		pending = hub.Pending(f.bob)
		return len(pending) == 1
	}, time.Second, time.Millisecond)
	assert.Contains(t, pending[0].Prompt, "gives 30")
	assert.Empty(t, hub.Pending(f.alice))

	require.NoError(t, hub.Vote(f.bob, pending[0].ID, true))
	require.NoError(t, <-done)
	assert.Equal(t, int64(80), repotest.Balance(t, f.repo, f.bob))
}

func TestPrompt(t *testing.T) {
	prompt := trade.Prompt([]models.ActorID{1, 2}, []trade.Change{money(t, 1, 2, 5)})
	assert.Equal(t, "user 1, user 2: Do you accept the following changes?\nuser 1 gives 5 to user 2", prompt)
}
