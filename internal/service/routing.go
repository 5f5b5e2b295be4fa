package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
	"github.com/pesio-ai/be-ap-procurement/internal/repository"
)

// ── Threshold routing ────────────────────────────────────────────────────────
//
// Withdrawal decisions: a validation above the threshold is escalated to the
// Director (status APPROVED, awaiting); at or below it, the validation is
// final. Payment orders: below the threshold only the Responsible validates;
// at or above it only the Director approves. No active threshold means the
// default single-approver path.

func routeWithdrawal(action Action, amount decimal.Decimal, th *repository.Threshold, step Step) (Step, error) {
	if action != ActionValidate {
		return step, nil
	}
	if th != nil && amount.GreaterThan(th.Amount) {
		step.To = repository.StatusApproved
		step.Outcome = repository.OutcomeEscalated
	}
	return step, nil
}

func routePayment(action Action, amount decimal.Decimal, th *repository.Threshold, step Step) (Step, error) {
	directorPath := th != nil && amount.GreaterThanOrEqual(th.Amount)

	switch action {
	case ActionValidate:
		if directorPath {
			return Step{}, errors.Unauthorized(fmt.Sprintf(
				"payment order of %s is at or above the threshold of %s and requires DIRECTOR approval",
				amount.StringFixed(2), th.Amount.StringFixed(2)))
		}
	case ActionApprove:
		if !directorPath {
			return Step{}, errors.InvalidState(fmt.Sprintf(
				"payment order of %s is below the approval threshold and is validated by RESPONSIBLE",
				amount.StringFixed(2)))
		}
	}
	return step, nil
}
