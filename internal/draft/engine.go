// Package draft resolves pack purchases into owned waifus.
package draft

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rongwang/shinobu-server/internal/models"
	"github.com/rongwang/shinobu-server/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
)

var (
	ErrNoSuchPack     = errors.New("no such pack")
	ErrEmptyDraftPool = errors.New("empty draft pool")
)

// OutcomeKind tells how a draw of an already owned character was resolved
type OutcomeKind string

const (
	OutcomeNone    OutcomeKind = "none"
	OutcomeUpgrade OutcomeKind = "upgrade"
	OutcomeRefund  OutcomeKind = "refund"
)

// Outcome is the duplicate resolution of a purchase
type Outcome struct {
	Kind OutcomeKind `json:"kind"`
	// Upgraded is set for OutcomeUpgrade
	Upgraded *models.Rarity `json:"upgradedRarity,omitempty"`
	// Refund is set for OutcomeRefund
	Refund int64 `json:"refund,omitempty"`
}

// Engine draws waifus from packs
type Engine struct {
	repo   repository.Repository
	now    func() time.Time
	tracer trace.Tracer

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures an Engine
type Option func(*Engine)

// WithRand sets the random source used for draws
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// WithClock sets the clock used to decide which packs are current
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a draft engine over the repository
func NewEngine(repo repository.Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:   repo,
		now:    time.Now,
		tracer: otel.Tracer("github.com/rongwang/shinobu-server/internal/draft"),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Today returns the engine's current date as YYYY-MM-DD
func (e *Engine) Today() string {
	return e.now().Format(time.DateOnly)
}

// BuyPack debits the pack cost, draws a rarity and a character and hands the result to the actor.
// Everything runs in one atomic unit.
func (e *Engine) BuyPack(ctx context.Context, actor models.ActorID, packName string) (*models.Waifu, Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "draft.BuyPack", trace.WithAttributes(
		attribute.Int64("actor.id", actor),
		attribute.String("pack.name", packName),
	))
	defer span.End()

	var (
		waifu   *models.Waifu
		outcome Outcome
	)
	err := e.repo.WithTx(ctx, func(q repository.Queries) error {
		if _, err := q.GetUserByID(ctx, actor); err != nil {
			return err
		}

		pack, err := e.findPack(ctx, q, packName)
		if err != nil {
			return err
		}

		if err := q.AdjustBalance(ctx, actor, -pack.Cost); err != nil {
			return err
		}

		character, rarity, err := e.draw(ctx, q, pack.Name)
		if err != nil {
			return err
		}

		waifu, outcome, err = e.give(ctx, q, actor, character, rarity)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, Outcome{}, err
	}

	span.SetAttributes(
		attribute.Int64("waifu.id", waifu.ID),
		attribute.String("draft.outcome", string(outcome.Kind)),
	)
	return waifu, outcome, nil
}

// findPack returns the current pack whose name matches ignoring case and surrounding or repeated whitespace
func (e *Engine) findPack(ctx context.Context, q repository.Queries, name string) (*models.Pack, error) {
	packs, err := q.ListActivePacks(ctx, e.Today())
	if err != nil {
		return nil, err
	}

	want := NormalizePackName(name)
	for i := range packs {
		if NormalizePackName(packs[i].Name) == want {
			return &packs[i], nil
		}
	}
	return nil, fmt.Errorf("there's no pack named %q: %w", strings.TrimSpace(name), ErrNoSuchPack)
}

// NormalizePackName folds case and collapses whitespace
func NormalizePackName(name string) string {
	return cases.Fold().String(strings.Join(strings.Fields(name), " "))
}

// draw picks a rarity over all rarities, then a character from the pack's pool for that rarity.
// The rarity draw never looks at the pool, so pool sizes do not skew rarity odds.
func (e *Engine) draw(ctx context.Context, q repository.Queries, packName string) (models.Character, models.Rarity, error) {
	rarities, err := q.GetRarities(ctx)
	if err != nil {
		return models.Character{}, models.Rarity{}, err
	}

	weights := make([]float64, len(rarities))
	for i, r := range rarities {
		weights[i] = r.Weight
	}
	ri, err := e.pick(weights)
	if err != nil {
		return models.Character{}, models.Rarity{}, fmt.Errorf("no rarity can be drawn: %w", err)
	}
	rarity := rarities[ri]

	pool, err := q.GetDraftPool(ctx, packName, rarity.Value)
	if err != nil {
		return models.Character{}, models.Rarity{}, err
	}

	weights = make([]float64, len(pool))
	for i, c := range pool {
		weights[i] = c.Weight
	}
	ci, err := e.pick(weights)
	if err != nil {
		return models.Character{}, models.Rarity{}, fmt.Errorf("pack %q has no character for rarity %s: %w",
			packName, rarity.Name, err)
	}

	return pool[ci].Character, rarity, nil
}

func (e *Engine) pick(weights []float64) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Pick(e.rng, weights)
}

// give resolves the drawn character against what the actor already owns
func (e *Engine) give(
	ctx context.Context,
	q repository.Queries,
	actor models.ActorID,
	character models.Character,
	drawn models.Rarity,
) (*models.Waifu, Outcome, error) {
	existing, err := q.GetOwnedWaifu(ctx, actor, character.ID)
	if errors.Is(err, repository.ErrNotFound) {
		id, err := q.CreateWaifu(ctx, actor, character.ID, drawn.Value)
		if err != nil {
			return nil, Outcome{}, err
		}
		return &models.Waifu{ID: id, Owner: actor, Character: character, Rarity: drawn},
			Outcome{Kind: OutcomeNone}, nil
	}
	if err != nil {
		return nil, Outcome{}, err
	}

	if existing.Rarity.Value == drawn.Value && drawn.AutoUpgrade {
		next, err := q.GetRarity(ctx, existing.Rarity.Value+1)
		switch {
		case err == nil:
			if err := q.SetWaifuRarity(ctx, existing.ID, next.Value); err != nil {
				return nil, Outcome{}, err
			}
			existing.Rarity = *next
			return existing, Outcome{Kind: OutcomeUpgrade, Upgraded: next}, nil
		case errors.Is(err, repository.ErrNotFound):
			// Top rarity cannot be upgraded further, refund instead
		default:
			return nil, Outcome{}, err
		}
	}

	lower, higher := drawn, existing.Rarity
	if lower.Value > higher.Value {
		lower, higher = higher, lower
	}
	if higher.Value != existing.Rarity.Value {
		if err := q.SetWaifuRarity(ctx, existing.ID, higher.Value); err != nil {
			return nil, Outcome{}, err
		}
	}
	if lower.Refund > 0 {
		if err := q.AdjustBalance(ctx, actor, lower.Refund); err != nil {
			return nil, Outcome{}, err
		}
	}
	existing.Rarity = higher
	return existing, Outcome{Kind: OutcomeRefund, Refund: lower.Refund}, nil
}
