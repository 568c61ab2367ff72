package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rongwang/shinobu-server/internal/approval"
	"github.com/rongwang/shinobu-server/internal/models"
	"github.com/rongwang/shinobu-server/internal/ownership"
	"github.com/rongwang/shinobu-server/internal/trade"
)

// ErrAlreadyQueued is returned when a waifu is queued twice in the same ledger
var ErrAlreadyQueued = errors.New("this waifu is already part of your transaction")

// EnqueueMoneyTransfer queues a payment from the actor to another user
func (s *DefaultService) EnqueueMoneyTransfer(ctx context.Context, actor models.ActorID, req models.MoneyTransferRequest) (*models.ChangeResponse, error) {
	change, err := trade.NewMoneyTransfer(actor, req.To, req.Amount)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetUserByID(ctx, req.To); err != nil {
		return nil, fmt.Errorf("recipient %d: %w", req.To, err)
	}

	held, err := s.ledger.Lock(ctx, actor)
	if err != nil {
		return nil, err
	}
	defer held.Unlock()
	held.Append(change)

	return &models.ChangeResponse{
		Status:  "success",
		Message: "Change added to your transaction",
		Change:  change.View(),
	}, nil
}

// EnqueueWaifuTransfer queues handing one of the actor's waifus to another user.
// The waifu must still match what the actor saw.
func (s *DefaultService) EnqueueWaifuTransfer(ctx context.Context, actor models.ActorID, req models.WaifuTransferRequest) (*models.ChangeResponse, error) {
	if req.To == actor {
		return nil, trade.ErrSelfTransfer
	}
	if _, err := s.repo.GetUserByID(ctx, req.To); err != nil {
		return nil, fmt.Errorf("recipient %d: %w", req.To, err)
	}

	snap, err := s.checkSeen(ctx, actor, req.WaifuID, req.Seen)
	if err != nil {
		return nil, err
	}

	held, err := s.ledger.Lock(ctx, actor)
	if err != nil {
		return nil, err
	}
	defer held.Unlock()

	for _, c := range held.Peek() {
		if w, ok := c.(trade.WaifuTransfer); ok && w.Waifu().ID == req.WaifuID {
			return nil, ErrAlreadyQueued
		}
	}

	// Re-read under the lock; the waifu may have moved while we waited
	waifu, err := ownership.Verify(ctx, s.repo, snap)
	if err != nil {
		return nil, err
	}
	change, err := trade.NewWaifuTransfer(*waifu, req.To)
	if err != nil {
		return nil, err
	}
	held.Append(change)

	return &models.ChangeResponse{
		Status:  "success",
		Message: "Change added to your transaction",
		Change:  change.View(),
	}, nil
}

// PendingChanges lists the actor's queued changes in order
func (s *DefaultService) PendingChanges(ctx context.Context, actor models.ActorID) (*models.ChangesResponse, error) {
	held, err := s.ledger.Lock(ctx, actor)
	if err != nil {
		return nil, err
	}
	defer held.Unlock()

	return &models.ChangesResponse{Status: "success", Changes: views(held.Peek())}, nil
}

// Sign asks the co-signers to approve the merged changes of everyone involved and executes them
func (s *DefaultService) Sign(ctx context.Context, actor models.ActorID, req models.SignRequest) (*models.SignResponse, error) {
	if err := s.ledger.RequirePending(actor); err != nil {
		return nil, err
	}
	for _, co := range req.CoSigners {
		if _, err := s.repo.GetUserByID(ctx, co); err != nil {
			return nil, fmt.Errorf("co-signer %d: %w", co, err)
		}
	}

	executed, err := s.signer.Sign(ctx, actor, req.CoSigners...)
	if err != nil {
		return nil, err
	}

	return &models.SignResponse{
		Status:       "success",
		Message:      "Transaction executed",
		Participants: executed.Participants,
		Changes:      views(executed.Changes),
	}, nil
}

// Cancel drops all of the actor's queued changes
func (s *DefaultService) Cancel(ctx context.Context, actor models.ActorID) (*models.MessageResponse, error) {
	if err := s.ledger.RequirePending(actor); err != nil {
		return nil, err
	}

	held, err := s.ledger.Lock(ctx, actor)
	if err != nil {
		return nil, err
	}
	defer held.Unlock()
	held.Clear()

	return &models.MessageResponse{Status: "success", Message: "Transaction cancelled"}, nil
}

// ListApprovals returns the signing requests waiting on the actor
func (s *DefaultService) ListApprovals(_ context.Context, actor models.ActorID) []approval.Request {
	pending := s.hub.Pending(actor)
	if pending == nil {
		pending = []approval.Request{}
	}
	return pending
}

// Vote answers a signing request
func (s *DefaultService) Vote(_ context.Context, actor models.ActorID, requestID string, approve bool) (*models.MessageResponse, error) {
	if err := s.hub.Vote(actor, requestID, approve); err != nil {
		return nil, err
	}
	message := "Declined"
	if approve {
		message = "Approved"
	}
	return &models.MessageResponse{Status: "success", Message: message}, nil
}

func views(changes []trade.Change) []models.ChangeView {
	out := make([]models.ChangeView, len(changes))
	for i, c := range changes {
		out[i] = c.View()
	}
	return out
}
