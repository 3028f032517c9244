package reports

import (
	"errors"
	"fmt"
	"strings"

	"lungsod-rms/core/store"
)

// Action is a lifecycle verb applied to a report through Transition.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionReview  Action = "review"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrValidation        = errors.New("validation failed")
)

func ParseAction(raw string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionApprove:
		return ActionApprove, nil
	case ActionReject:
		return ActionReject, nil
	case ActionReview:
		return ActionReview, nil
	case ActionUpdate:
		return ActionUpdate, nil
	case ActionDelete:
		return ActionDelete, nil
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, raw)
}

// Payload carries the optional transition fields. Empty strings and nil
// pointers mean "leave unchanged".
type Payload struct {
	Status     string   `json:"status,omitempty"`
	Priority   string   `json:"priority,omitempty"`
	AssignedTo *string  `json:"assigned_to,omitempty"`
	Estimation *float64 `json:"estimation,omitempty"`
	Notes      *string  `json:"notes,omitempty"`
}

type stateAction struct {
	from   string
	action Action
}

// transitionTable is the closed state machine: a (state, action) pair absent
// here is rejected with ErrInvalidTransition. Terminal states admit only
// delete, which bypasses the machine below.
var transitionTable = map[stateAction]string{
	{store.StatusPending, ActionApprove}:    store.StatusCompleted,
	{store.StatusPending, ActionReject}:     store.StatusCancelled,
	{store.StatusPending, ActionReview}:     store.StatusInProgress,
	{store.StatusInProgress, ActionReview}:  store.StatusInProgress,
	{store.StatusPending, ActionUpdate}:     "",
	{store.StatusInProgress, ActionUpdate}:  "",
}

// nextStatus resolves the target canonical state for an action, or an error
// when the pair is undefined. Update returns "" meaning "status from payload,
// or unchanged".
func nextStatus(current string, action Action) (string, error) {
	canonical := store.CanonicalStatus(current)
	if canonical == "" {
		return "", fmt.Errorf("%w: report has unknown status %q", ErrInvalidTransition, current)
	}
	if action == ActionDelete {
		return canonical, nil
	}
	to, ok := transitionTable[stateAction{canonical, action}]
	if !ok {
		return "", fmt.Errorf("%w: %s not allowed from %s", ErrInvalidTransition, action, canonical)
	}
	return to, nil
}

// auditOutcome is the label recorded in the audit trail for each action.
func auditOutcome(action Action, newStatus string) string {
	switch action {
	case ActionApprove:
		return "approved"
	case ActionReject:
		return "rejected"
	case ActionReview:
		return store.StatusPending
	case ActionDelete:
		return "deleted"
	}
	if newStatus != "" {
		return newStatus
	}
	return "updated"
}

// buildEffect turns a validated transition into the single atomic unit the
// store applies: row mutation, optional derived inspection, audit entry.
func buildEffect(r *store.Report, action Action, actor Actor, p Payload) (store.TransitionEffect, error) {
	var eff store.TransitionEffect
	newStatus, err := nextStatus(r.Status, action)
	if err != nil {
		return eff, err
	}

	switch action {
	case ActionDelete:
		eff.Delete = true
	case ActionUpdate:
		if p.Status != "" {
			canonical := store.CanonicalStatus(p.Status)
			if canonical == "" {
				return eff, fmt.Errorf("%w: unknown status %q", ErrValidation, p.Status)
			}
			eff.Mutation.Status = canonical
		}
	default:
		eff.Mutation.Status = newStatus
	}

	if action != ActionDelete {
		if p.Priority != "" {
			if !store.ValidSeverity(p.Priority) {
				return eff, fmt.Errorf("%w: unknown priority %q", ErrValidation, p.Priority)
			}
			sev := strings.ToLower(p.Priority)
			eff.Mutation.Severity = &sev
		}
		if p.Estimation != nil && *p.Estimation < 0 {
			return eff, fmt.Errorf("%w: estimation must be non-negative", ErrValidation)
		}
		eff.Mutation.AssignedTo = p.AssignedTo
		eff.Mutation.Estimation = p.Estimation
		eff.Mutation.Notes = p.Notes
	}

	if action == ActionApprove && r.Source == store.DomainDamage {
		eff.Inspection = &store.Inspection{
			SourceReportID: r.ReportID,
			SourceDomain:   r.Source,
			Severity:       r.Severity,
			Status:         store.StatusPending,
			Title:          "Inspection for " + r.ReportID,
			Description:    r.Description,
			Location:       r.Location,
		}
	}

	statusChanged := eff.Mutation.Status != "" && eff.Mutation.Status != store.CanonicalStatus(r.Status)
	if action != ActionUpdate || statusChanged {
		eff.Audit = &store.AuditEntry{
			Title:  fmt.Sprintf("Report %s %s", r.ReportID, auditOutcome(action, eff.Mutation.Status)),
			Status: auditOutcome(action, eff.Mutation.Status),
			Actor:  actor.Name(),
			Details: fmt.Sprintf("%s on %s report #%d (%s) by %s",
				action, r.Source, r.ID, r.ReportID, actor.Name()),
		}
	}
	return eff, nil
}
