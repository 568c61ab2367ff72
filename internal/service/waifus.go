package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rongwang/shinobu-server/internal/draft"
	"github.com/rongwang/shinobu-server/internal/models"
	"github.com/rongwang/shinobu-server/internal/ownership"
	"github.com/rongwang/shinobu-server/internal/repository"
)

// ListPacks returns the packs on sale today
func (s *DefaultService) ListPacks(ctx context.Context) (*models.PacksResponse, error) {
	packs, err := s.repo.ListActivePacks(ctx, s.engine.Today())
	if err != nil {
		return nil, fmt.Errorf("error listing packs: %w", err)
	}
	if packs == nil {
		packs = []models.Pack{}
	}
	return &models.PacksResponse{Status: "success", Packs: packs}, nil
}

// BuyPack draws a waifu for the actor. Not allowed while the actor has pending changes.
func (s *DefaultService) BuyPack(ctx context.Context, actor models.ActorID, req models.BuyPackRequest) (*models.BuyPackResponse, error) {
	if err := s.ledger.RequireNoPending(actor); err != nil {
		return nil, err
	}

	waifu, outcome, err := s.engine.BuyPack(ctx, actor, req.Pack)
	if err != nil {
		if errors.Is(err, draft.ErrEmptyDraftPool) {
			s.logger.Error("pack %q has an empty draft pool", req.Pack)
		}
		return nil, err
	}

	s.logger.Info("user %d bought a %s and got %s %s (%s)",
		actor, req.Pack, waifu.Rarity.Name, waifu.Character.Name, outcome.Kind)

	return &models.BuyPackResponse{
		Status:         "success",
		Waifu:          *waifu,
		Duplicate:      string(outcome.Kind),
		Refund:         outcome.Refund,
		UpgradedRarity: outcome.Upgraded,
	}, nil
}

// ListWaifus returns the actor's collection, rarest first
func (s *DefaultService) ListWaifus(ctx context.Context, actor models.ActorID) (*models.WaifusResponse, error) {
	waifus, err := s.repo.ListWaifus(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("error listing waifus: %w", err)
	}
	if waifus == nil {
		waifus = []models.Waifu{}
	}
	return &models.WaifusResponse{Status: "success", Waifus: waifus}, nil
}

// FindWaifu returns the actor's waifu whose "name [series]" best matches query.
// As long as the actor owns any waifu, the closest one is returned.
func (s *DefaultService) FindWaifu(ctx context.Context, actor models.ActorID, query string) (*models.WaifuResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty search: %w", repository.ErrNotFound)
	}

	waifus, err := s.repo.ListWaifus(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("error listing waifus: %w", err)
	}

	labels := make([]string, len(waifus))
	for i, w := range waifus {
		labels[i] = fmt.Sprintf("%s [%s]", w.Character.Name, w.Character.Series)
	}

	i := bestMatch(query, labels)
	if i < 0 {
		return nil, fmt.Errorf("user %d has no waifus: %w", actor, repository.ErrNotFound)
	}
	return &models.WaifuResponse{Status: "success", Waifu: waifus[i]}, nil
}

// RefundWaifu deletes one of the actor's waifus and credits its rarity's refund
func (s *DefaultService) RefundWaifu(ctx context.Context, actor models.ActorID, waifuID int64, seen models.WaifuRef) (*models.RefundResponse, error) {
	if err := s.ledger.RequireNoPending(actor); err != nil {
		return nil, err
	}

	snap, err := s.checkSeen(ctx, actor, waifuID, seen)
	if err != nil {
		return nil, err
	}

	var refunded models.Waifu
	err = s.repo.WithTx(ctx, func(q repository.Queries) error {
		current, err := ownership.Verify(ctx, q, snap)
		if err != nil {
			return err
		}
		if err := q.DeleteWaifu(ctx, current.ID); err != nil {
			return err
		}
		refunded = *current
		return q.AdjustBalance(ctx, actor, current.Rarity.Refund)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user %d refunded %s %s for %d", actor, refunded.Rarity.Name, refunded.Character.Name, refunded.Rarity.Refund)

	return &models.RefundResponse{
		Status:  "success",
		Message: fmt.Sprintf("%s was refunded for %d", refunded.Character.Name, refunded.Rarity.Refund),
		Amount:  refunded.Rarity.Refund,
	}, nil
}

// UpgradeWaifu pays the rarity's upgrade cost and raises the waifu by one rarity
func (s *DefaultService) UpgradeWaifu(ctx context.Context, actor models.ActorID, waifuID int64, seen models.WaifuRef) (*models.WaifuResponse, error) {
	if err := s.ledger.RequireNoPending(actor); err != nil {
		return nil, err
	}

	snap, err := s.checkSeen(ctx, actor, waifuID, seen)
	if err != nil {
		return nil, err
	}

	var upgraded models.Waifu
	err = s.repo.WithTx(ctx, func(q repository.Queries) error {
		current, err := ownership.Verify(ctx, q, snap)
		if err != nil {
			return err
		}
		if current.Rarity.UpgradeCost == nil {
			return ErrNotUpgradable
		}
		next, err := q.GetRarity(ctx, current.Rarity.Value+1)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotUpgradable
		}
		if err != nil {
			return err
		}
		if err := q.AdjustBalance(ctx, actor, -*current.Rarity.UpgradeCost); err != nil {
			return err
		}
		if err := q.SetWaifuRarity(ctx, current.ID, next.Value); err != nil {
			return err
		}
		upgraded = *current
		upgraded.Rarity = *next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user %d upgraded %s to %s", actor, upgraded.Character.Name, upgraded.Rarity.Name)

	return &models.WaifuResponse{
		Status:  "success",
		Message: fmt.Sprintf("%s is now %s", upgraded.Character.Name, upgraded.Rarity.Name),
		Waifu:   upgraded,
	}, nil
}

// checkSeen verifies that the waifu is still what the actor saw and returns its snapshot
func (s *DefaultService) checkSeen(ctx context.Context, actor models.ActorID, waifuID int64, seen models.WaifuRef) (ownership.Snapshot, error) {
	snap := ownership.Snapshot{
		WaifuID:     waifuID,
		Owner:       actor,
		CharacterID: seen.CharacterID,
		Rarity:      seen.Rarity,
	}
	waifu, err := ownership.Verify(ctx, s.repo, snap)
	if err != nil {
		return ownership.Snapshot{}, err
	}
	return ownership.Capture(*waifu), nil
}
