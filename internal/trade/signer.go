package trade

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rongwang/shinobu-server/internal/models"
	"github.com/rongwang/shinobu-server/internal/repository"
	"github.com/rongwang/shinobu-server/internal/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultApprovalTimeout is how long participants have to answer a signing prompt
const DefaultApprovalTimeout = 300 * time.Second

// Confirmer asks a set of actors to approve a prompt. It returns false when anyone
// declines or the timeout expires; an error means the question itself could not be asked.
type Confirmer interface {
	AskYesNo(ctx context.Context, prompt string, approvers []models.ActorID, timeout time.Duration) (bool, error)
}

// Executed is the result of a successful signing
type Executed struct {
	Participants []models.ActorID
	Changes      []Change
}

// Signer runs the multi-party signing protocol over a ledger
type Signer struct {
	ledger    *Ledger
	repo      repository.Repository
	confirmer Confirmer
	timeout   time.Duration
	logger    *utils.Logger
	tracer    trace.Tracer
}

// NewSigner creates a signer. A non-positive timeout selects DefaultApprovalTimeout.
func NewSigner(
	ledger *Ledger,
	repo repository.Repository,
	confirmer Confirmer,
	timeout time.Duration,
	logger *utils.Logger,
) *Signer {
	if timeout <= 0 {
		timeout = DefaultApprovalTimeout
	}
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}
	return &Signer{
		ledger:    ledger,
		repo:      repo,
		confirmer: confirmer,
		timeout:   timeout,
		logger:    logger,
		tracer:    otel.Tracer("github.com/rongwang/shinobu-server/internal/trade"),
	}
}

// Sign locks the ledgers of the initiator and every co-signer, asks the co-signers to approve the
// merged changes and executes them as one atomic unit. The initiator's request counts as their approval.
// On decline or timeout the changes stay queued and ErrTransactionDeclined is returned.
func (s *Signer) Sign(ctx context.Context, initiator models.ActorID, coSigners ...models.ActorID) (*Executed, error) {
	participants := SortedActors(append([]models.ActorID{initiator}, coSigners...)...)

	ctx, span := s.tracer.Start(ctx, "trade.Sign", trace.WithAttributes(
		attribute.Int64("initiator.id", initiator),
		attribute.Int64Slice("participants", participants),
	))
	defer span.End()

	executed, err := s.sign(ctx, initiator, participants)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return executed, nil
}

func (s *Signer) sign(ctx context.Context, initiator models.ActorID, participants []models.ActorID) (*Executed, error) {
	locks, err := s.ledger.LockAll(ctx, participants...)
	if err != nil {
		return nil, fmt.Errorf("error locking ledgers: %w", err)
	}
	defer locks.Unlock()

	// The unlocked gate at the command boundary may be stale
	if !locks.Has(initiator) {
		return nil, ErrNoTransactionInProgress
	}

	changes := locks.Changes()
	for _, c := range changes {
		if err := c.Validate(ctx, s.repo); err != nil {
			return nil, err
		}
	}

	approvers := make([]models.ActorID, 0, len(participants))
	for _, p := range participants {
		if p != initiator {
			approvers = append(approvers, p)
		}
	}

	if len(approvers) > 0 {
		approved, err := s.confirmer.AskYesNo(ctx, Prompt(participants, changes), approvers, s.timeout)
		if err != nil {
			return nil, fmt.Errorf("error asking for approval: %w", err)
		}
		if !approved {
			s.logger.Info("transaction of %v declined, %d changes kept", participants, len(changes))
			return nil, ErrTransactionDeclined
		}
	}

	err = s.repo.WithTx(ctx, func(q repository.Queries) error {
		for _, c := range changes {
			if err := c.Execute(ctx, q); err != nil {
				return fmt.Errorf("%s: %w", c, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	locks.Clear()
	s.logger.Info("executed transaction of %v with %d changes", participants, len(changes))

	return &Executed{Participants: participants, Changes: changes}, nil
}

// Prompt renders the confirmation question for a merged change list
func Prompt(participants []models.ActorID, changes []Change) string {
	names := make([]string, len(participants))
	for i, p := range participants {
		names[i] = fmt.Sprintf("user %d", p)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: Do you accept the following changes?", strings.Join(names, ", "))
	for _, c := range changes {
		b.WriteString("\n")
		b.WriteString(c.String())
	}
	return b.String()
}
