// Package ownership re-checks a waifu's live state right before acting on it.
//
// A user decides on what they saw; by the time they confirm, the waifu may have been
// traded away, upgraded or refunded. Flows capture a Snapshot when they start and call
// Verify again immediately before their final mutating statement.
package ownership

import (
	"context"
	"errors"
	"fmt"

	"github.com/rongwang/shinobu-server/internal/models"
	"github.com/rongwang/shinobu-server/internal/repository"
)

var (
	// ErrOwnershipChanged reports that a waifu no longer matches the captured snapshot
	ErrOwnershipChanged = errors.New("ownership changed")
	// ErrNoLongerOwned is the ErrOwnershipChanged case where the owner differs or the waifu is gone
	ErrNoLongerOwned = fmt.Errorf("no longer owned: %w", ErrOwnershipChanged)
)

// Reader fetches a waifu by id
type Reader interface {
	GetWaifu(ctx context.Context, id int64) (*models.Waifu, error)
}

// Snapshot is what a flow saw of a waifu when it started
type Snapshot struct {
	WaifuID       int64
	Owner         models.ActorID
	CharacterID   int64
	Rarity        int
	CharacterName string
}

// Capture records the current state of w
func Capture(w models.Waifu) Snapshot {
	return Snapshot{
		WaifuID:       w.ID,
		Owner:         w.Owner,
		CharacterID:   w.Character.ID,
		Rarity:        w.Rarity.Value,
		CharacterName: w.Character.Name,
	}
}

// Load fetches a waifu owned by owner and captures it
func Load(ctx context.Context, r Reader, id int64, owner models.ActorID) (*models.Waifu, Snapshot, error) {
	waifu, err := r.GetWaifu(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, Snapshot{}, fmt.Errorf("you don't own waifu %d: %w", id, ErrNoLongerOwned)
		}
		return nil, Snapshot{}, err
	}
	if waifu.Owner != owner {
		return nil, Snapshot{}, fmt.Errorf("you don't own waifu %d: %w", id, ErrNoLongerOwned)
	}
	return waifu, Capture(*waifu), nil
}

// Verify re-fetches the waifu and fails with ErrOwnershipChanged if its owner, character
// or rarity differ from the snapshot. It returns the fresh waifu on success.
func Verify(ctx context.Context, r Reader, snap Snapshot) (*models.Waifu, error) {
	current, err := r.GetWaifu(ctx, snap.WaifuID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("you no longer own %s: %w", snap.label(), ErrNoLongerOwned)
		}
		return nil, err
	}

	if current.Owner != snap.Owner {
		return nil, fmt.Errorf("you no longer own %s: %w", snap.label(), ErrNoLongerOwned)
	}
	if current.Character.ID != snap.CharacterID || current.Rarity.Value != snap.Rarity {
		return nil, fmt.Errorf("your %s has changed: %w", snap.label(), ErrOwnershipChanged)
	}
	return current, nil
}

func (s Snapshot) label() string {
	if s.CharacterName != "" {
		return s.CharacterName
	}
	return fmt.Sprintf("waifu %d", s.WaifuID)
}
