package service

import (
	"testing"

	"github.com/ayo6706/withdrawal-engine/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{domain.StatusPendingConfirmation, domain.StatusUnderReview, true},
		{domain.StatusPendingConfirmation, domain.StatusRejected, true},
		{domain.StatusPending, domain.StatusUnderReview, true},
		{domain.StatusPending, domain.StatusRejected, true},
		{domain.StatusUnderReview, domain.StatusApproved, true},
		{domain.StatusUnderReview, domain.StatusRejected, true},
		{domain.StatusApproved, domain.StatusProcessing, true},
		{domain.StatusProcessing, domain.StatusCompleted, true},

		{domain.StatusPendingConfirmation, domain.StatusApproved, false},
		{domain.StatusPendingConfirmation, domain.StatusCompleted, false},
		{domain.StatusUnderReview, domain.StatusCompleted, false},
		{domain.StatusApproved, domain.StatusRejected, false},
		{domain.StatusApproved, domain.StatusCompleted, false},
		{domain.StatusProcessing, domain.StatusRejected, false},
		{domain.StatusCompleted, domain.StatusRejected, false},
		{domain.StatusRejected, domain.StatusUnderReview, false},
		{domain.StatusCompleted, domain.StatusProcessing, false},
		{"limbo", domain.StatusUnderReview, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.ok, canTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	// Comparison is case and whitespace insensitive, matching values read
	// back from external writers.
	assert.True(t, canTransition(" Under_Review ", "APPROVED"))
}
