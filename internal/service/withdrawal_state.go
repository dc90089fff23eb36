package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ayo6706/withdrawal-engine/internal/domain"
	"github.com/ayo6706/withdrawal-engine/internal/models"
	"github.com/ayo6706/withdrawal-engine/internal/observability"
	"github.com/ayo6706/withdrawal-engine/internal/repository"
	"github.com/google/uuid"
)

// withdrawalTransitions is the legal state graph. "pending" is an alias
// entry point equivalent to "pending_confirmation".
var withdrawalTransitions = map[string]map[string]struct{}{
	domain.StatusPending: {
		domain.StatusUnderReview: {},
		domain.StatusRejected:    {},
	},
	domain.StatusPendingConfirmation: {
		domain.StatusUnderReview: {},
		domain.StatusRejected:    {},
	},
	domain.StatusUnderReview: {
		domain.StatusApproved: {},
		domain.StatusRejected: {},
	},
	domain.StatusApproved: {
		domain.StatusProcessing: {},
	},
	domain.StatusProcessing: {
		domain.StatusCompleted: {},
	},
	domain.StatusCompleted: {},
	domain.StatusRejected:  {},
}

func normalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

func canTransition(current, next string) bool {
	current = normalizeStatus(current)
	next = normalizeStatus(next)
	nextStates, ok := withdrawalTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// transitionWithdrawalState moves a withdrawal to nextState under a row lock,
// recording the hop in the audit log. A repeated call with the same target is
// a no-op; an illegal hop fails with ErrInvalidStateTransition so a caller
// never re-applies side effects against a terminal row.
func transitionWithdrawalState(ctx context.Context, qtx *repository.Queries, audit *AuditService, withdrawalID uuid.UUID, nextState string, actorID *uuid.UUID, action string, metadata []byte) error {
	currentState, err := qtx.GetWithdrawalStatusForUpdate(ctx, repository.ToPgUUID(withdrawalID))
	if err != nil {
		return fmt.Errorf("get current withdrawal state: %w", err)
	}

	if normalizeStatus(currentState) == normalizeStatus(nextState) {
		return nil
	}
	if !canTransition(currentState, nextState) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidStateTransition, currentState, nextState)
	}

	rows, err := qtx.UpdateWithdrawalStatus(ctx, repository.UpdateWithdrawalStatusParams{
		Status: nextState,
		ID:     repository.ToPgUUID(withdrawalID),
	})
	if err != nil {
		return fmt.Errorf("update withdrawal state: %w", err)
	}
	if err := requireExactlyOne(rows, "update withdrawal state"); err != nil {
		return err
	}

	if err := audit.Write(ctx, qtx, "withdrawal", withdrawalID, actorID, action, currentState, nextState, metadata); err != nil {
		return err
	}

	observability.IncrementWithdrawalTransition(nextState)
	return nil
}
