// Package trade stages changes per actor and executes them once every party signs.
package trade

import (
	"context"
	"errors"
	"fmt"

	"github.com/rongwang/shinobu-server/internal/models"
	"github.com/rongwang/shinobu-server/internal/ownership"
	"github.com/rongwang/shinobu-server/internal/repository"
)

var (
	ErrSelfTransfer            = errors.New("you can't give something to yourself")
	ErrNonPositiveAmount       = errors.New("you can only transfer positive amounts")
	ErrAlreadyInTransaction    = errors.New("you can't do this while you're in a transaction")
	ErrNoTransactionInProgress = errors.New("you can only do this while you're in a transaction")
	ErrTransactionDeclined     = errors.New("transaction declined, its contents are kept")
)

const (
	KindMoney = "money"
	KindWaifu = "waifu"
)

// Change is a validated intent to move money or a waifu from one actor to another
type Change interface {
	From() models.ActorID
	To() models.ActorID
	// Validate checks the change against current storage without mutating it
	Validate(ctx context.Context, q repository.Queries) error
	// Execute applies the change; callers run it inside an atomic unit
	Execute(ctx context.Context, q repository.Queries) error
	View() models.ChangeView
	String() string
}

// MoneyTransfer moves a positive amount between two actors
type MoneyTransfer struct {
	from, to models.ActorID
	amount   int64
}

// NewMoneyTransfer validates and builds a money transfer
func NewMoneyTransfer(from, to models.ActorID, amount int64) (MoneyTransfer, error) {
	if from == to {
		return MoneyTransfer{}, ErrSelfTransfer
	}
	if amount <= 0 {
		return MoneyTransfer{}, ErrNonPositiveAmount
	}
	return MoneyTransfer{from: from, to: to, amount: amount}, nil
}

func (m MoneyTransfer) From() models.ActorID { return m.from }
func (m MoneyTransfer) To() models.ActorID   { return m.to }
func (m MoneyTransfer) Amount() int64        { return m.amount }

// Validate is a no-op: the balance is checked by the store when the transfer executes
func (m MoneyTransfer) Validate(context.Context, repository.Queries) error { return nil }

func (m MoneyTransfer) Execute(ctx context.Context, q repository.Queries) error {
	if err := q.AdjustBalance(ctx, m.from, -m.amount); err != nil {
		return err
	}
	return q.AdjustBalance(ctx, m.to, m.amount)
}

func (m MoneyTransfer) View() models.ChangeView {
	return models.ChangeView{
		Kind:        KindMoney,
		From:        m.from,
		To:          m.to,
		Amount:      m.amount,
		Description: m.String(),
	}
}

func (m MoneyTransfer) String() string {
	return fmt.Sprintf("user %d gives %d to user %d", m.from, m.amount, m.to)
}

// WaifuTransfer hands a single owned waifu to another actor
type WaifuTransfer struct {
	to    models.ActorID
	waifu models.Waifu
	snap  ownership.Snapshot
}

// NewWaifuTransfer builds a transfer of waifu from its current owner to to.
// The waifu's state is captured and re-checked before execution.
func NewWaifuTransfer(waifu models.Waifu, to models.ActorID) (WaifuTransfer, error) {
	if waifu.Owner == to {
		return WaifuTransfer{}, ErrSelfTransfer
	}
	return WaifuTransfer{to: to, waifu: waifu, snap: ownership.Capture(waifu)}, nil
}

func (w WaifuTransfer) From() models.ActorID { return w.waifu.Owner }
func (w WaifuTransfer) To() models.ActorID   { return w.to }
func (w WaifuTransfer) Waifu() models.Waifu  { return w.waifu }

func (w WaifuTransfer) Validate(ctx context.Context, q repository.Queries) error {
	_, err := ownership.Verify(ctx, q, w.snap)
	return err
}

func (w WaifuTransfer) Execute(ctx context.Context, q repository.Queries) error {
	if _, err := ownership.Verify(ctx, q, w.snap); err != nil {
		return err
	}
	if err := q.SetWaifuOwner(ctx, w.waifu.ID, w.to); err != nil {
		if errors.Is(err, repository.ErrAlreadyOwned) {
			return fmt.Errorf("user %d already owns %s: %w", w.to, w.waifu.Character.Name, err)
		}
		return err
	}
	return nil
}

func (w WaifuTransfer) View() models.ChangeView {
	return models.ChangeView{
		Kind:        KindWaifu,
		From:        w.waifu.Owner,
		To:          w.to,
		WaifuID:     w.waifu.ID,
		Description: w.String(),
	}
}

func (w WaifuTransfer) String() string {
	return fmt.Sprintf("user %d gives %s %s [%s] to user %d",
		w.waifu.Owner, w.waifu.Rarity.Name, w.waifu.Character.Name, w.waifu.Character.Series, w.to)
}
