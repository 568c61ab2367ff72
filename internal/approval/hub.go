// Package approval collects timed yes/no answers from a set of actors.
package approval

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rongwang/shinobu-server/internal/models"
)

var (
	ErrUnknownRequest = errors.New("approval request not found or already decided")
	ErrNotAnApprover  = errors.New("you are not asked to approve this request")
)

// Request is an open question as seen by an approver
type Request struct {
	ID        string           `json:"id"`
	Prompt    string           `json:"prompt"`
	Approvers []models.ActorID `json:"approvers"`
	Approved  []models.ActorID `json:"approved"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

type request struct {
	Request
	votes   map[models.ActorID]bool
	result  chan bool
	decided bool
}

// Hub keeps the open requests. It implements trade.Confirmer.
type Hub struct {
	mu       sync.Mutex
	requests map[string]*request
	now      func() time.Time
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		requests: make(map[string]*request),
		now:      time.Now,
	}
}

// AskYesNo opens a request and waits until every approver agreed, any approver declined,
// the timeout expired or ctx is done. Expiry is a plain "no", not an error.
func (h *Hub) AskYesNo(
	ctx context.Context,
	prompt string,
	approvers []models.ActorID,
	timeout time.Duration,
) (bool, error) {
	approvers = slices.Compact(slices.Sorted(slices.Values(approvers)))
	if len(approvers) == 0 {
		return true, nil
	}

	req := &request{
		Request: Request{
			ID:        uuid.New().String(),
			Prompt:    prompt,
			Approvers: approvers,
			ExpiresAt: h.now().Add(timeout),
		},
		votes:  make(map[models.ActorID]bool, len(approvers)),
		result: make(chan bool, 1),
	}

	h.mu.Lock()
	h.requests[req.ID] = req
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.requests, req.ID)
		h.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ok := <-req.result:
		return ok, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Vote records actor's answer. A single "no" decides the request.
func (h *Hub) Vote(actor models.ActorID, id string, approve bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	req, ok := h.requests[id]
	if !ok || req.decided {
		return ErrUnknownRequest
	}
	if !slices.Contains(req.Approvers, actor) {
		return ErrNotAnApprover
	}

	if !approve {
		req.decided = true
		req.result <- false
		return nil
	}

	req.votes[actor] = true
	if len(req.votes) == len(req.Approvers) {
		req.decided = true
		req.result <- true
	}
	return nil
}

// Pending lists the open requests that still wait on actor, soonest expiry first
func (h *Hub) Pending(actor models.ActorID) []Request {
	h.mu.Lock()
	defer h.mu.Unlock()

	var pending []Request
	for _, req := range h.requests {
		if req.decided || req.votes[actor] || !slices.Contains(req.Approvers, actor) {
			continue
		}
		view := req.Request
		view.Approvers = slices.Clone(req.Approvers)
		view.Approved = []models.ActorID{}
		for _, a := range req.Approvers {
			if req.votes[a] {
				view.Approved = append(view.Approved, a)
			}
		}
		pending = append(pending, view)
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].ExpiresAt.Before(pending[j].ExpiresAt)
	})
	return pending
}
