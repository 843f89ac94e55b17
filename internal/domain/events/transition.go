package events

import (
	"strings"

	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
)

type StateAction string

const (
	ActionSendToReview StateAction = "SEND_TO_REVIEW"
	ActionCancelReview StateAction = "CANCEL_REVIEW"
	ActionPublish      StateAction = "PUBLISH_EVENT"
	ActionReject       StateAction = "REJECT_EVENT"
)

func ParseStateAction(value string) (StateAction, error) {
	switch action := StateAction(strings.ToUpper(strings.TrimSpace(value))); action {
	case ActionSendToReview, ActionCancelReview, ActionPublish, ActionReject:
		return action, nil
	}
	return "", apperr.Invalid("stateAction", "unsupported state action %q", value)
}

// OwnerAction reports whether the initiator of an event may request action.
func (a StateAction) OwnerAction() bool {
	return a == ActionSendToReview || a == ActionCancelReview
}

// AdminAction reports whether a moderator may request action.
func (a StateAction) AdminAction() bool {
	return a == ActionPublish || a == ActionReject
}

// Transition applies action to from and returns the resulting state.
//
//	PENDING   --SEND_TO_REVIEW--> PENDING
//	PENDING   --CANCEL_REVIEW---> CANCELED
//	PENDING   --PUBLISH_EVENT---> PUBLISHED
//	PENDING   --REJECT_EVENT----> CANCELED
//	CANCELED  --SEND_TO_REVIEW--> PENDING
//	CANCELED  --REJECT_EVENT----> CANCELED
//
// PUBLISHED is terminal. Anything else is a conflict. Date guards and the
// owner/admin split are enforced by the caller.
func Transition(from State, action StateAction) (State, error) {
	if from == StatePublished {
		switch action {
		case ActionPublish:
			return from, apperr.Conflict("cannot publish the event because it's not in the right state: %s", from)
		case ActionReject:
			return from, apperr.Conflict("cannot reject the event because it has already been published")
		}
		return from, apperr.Conflict("published events cannot be changed")
	}

	switch action {
	case ActionSendToReview:
		return StatePending, nil
	case ActionCancelReview:
		if from == StatePending {
			return StateCanceled, nil
		}
		return from, apperr.Conflict("only pending events can be withdrawn from review, event is %s", from)
	case ActionPublish:
		if from == StatePending {
			return StatePublished, nil
		}
		return from, apperr.Conflict("cannot publish the event because it's not in the right state: %s", from)
	case ActionReject:
		return StateCanceled, nil
	}
	return from, apperr.Conflict("unsupported state action %q", action)
}
