package events

import (
	"time"
)

// NewEvent is the organizer's draft. Nil optional fields take their defaults:
// free, unlimited and moderated.
type NewEvent struct {
	Title             string    `validate:"required,min=3,max=120"`
	Annotation        string    `validate:"required,min=20,max=2000"`
	Description       string    `validate:"required,min=20,max=7000"`
	CategoryID        string    `validate:"required"`
	Location          *Location `validate:"required"`
	EventDate         time.Time `validate:"required"`
	Paid              *bool
	ParticipantLimit  *int `validate:"omitempty,min=0"`
	RequestModeration *bool
}

// EventPatch carries the editable fields. A nil field is left untouched.
type EventPatch struct {
	Title             *string   `validate:"omitempty,min=3,max=120"`
	Annotation        *string   `validate:"omitempty,min=20,max=2000"`
	Description       *string   `validate:"omitempty,min=20,max=7000"`
	CategoryID        *string   `validate:"omitempty,min=1"`
	Location          *Location `validate:"omitempty"`
	EventDate         *time.Time
	Paid              *bool
	ParticipantLimit  *int `validate:"omitempty,min=0"`
	RequestModeration *bool
}

// OwnerPatch is the organizer's update. StateAction is limited to
// SEND_TO_REVIEW and CANCEL_REVIEW.
type OwnerPatch struct {
	EventPatch
	StateAction *StateAction
}

// AdminPatch is the moderator's update. StateAction is limited to
// PUBLISH_EVENT and REJECT_EVENT.
type AdminPatch struct {
	EventPatch
	StateAction *StateAction
}

// Empty reports whether the patch changes no field.
func (p EventPatch) Empty() bool {
	return p.Title == nil && p.Annotation == nil && p.Description == nil &&
		p.CategoryID == nil && p.Location == nil && p.EventDate == nil &&
		p.Paid == nil && p.ParticipantLimit == nil && p.RequestModeration == nil
}

// applyTo copies the set fields onto event.
func (p EventPatch) applyTo(event *Event) {
	if p.Title != nil {
		event.Title = *p.Title
	}
	if p.Annotation != nil {
		event.Annotation = *p.Annotation
	}
	if p.Description != nil {
		event.Description = *p.Description
	}
	if p.CategoryID != nil {
		event.CategoryID = *p.CategoryID
	}
	if p.Location != nil {
		event.Location = *p.Location
	}
	if p.EventDate != nil {
		event.EventDate = p.EventDate.UTC()
	}
	if p.Paid != nil {
		event.Paid = *p.Paid
	}
	if p.ParticipantLimit != nil {
		event.ParticipantLimit = *p.ParticipantLimit
	}
	if p.RequestModeration != nil {
		event.RequestModeration = *p.RequestModeration
	}
}
