package events

import (
	"strings"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
)

type RequestStatus string

const (
	StatusPending   RequestStatus = "PENDING"
	StatusConfirmed RequestStatus = "CONFIRMED"
	StatusRejected  RequestStatus = "REJECTED"
	StatusCanceled  RequestStatus = "CANCELED"
)

func ParseRequestStatus(value string) (RequestStatus, error) {
	switch status := RequestStatus(strings.ToUpper(strings.TrimSpace(value))); status {
	case StatusPending, StatusConfirmed, StatusRejected, StatusCanceled:
		return status, nil
	}
	return "", apperr.Invalid("status", "unsupported request status %q", value)
}

// ParticipationRequest is a user's request to attend an event.
type ParticipationRequest struct {
	ID          string
	EventID     string
	RequesterID string
	Created     time.Time
	Status      RequestStatus
}

// Live reports whether the request still occupies the (event, requester) slot.
func (r ParticipationRequest) Live() bool {
	return r.Status != StatusCanceled
}

// StatusUpdate is an organizer's decision on a batch of pending requests.
type StatusUpdate struct {
	RequestIDs []string
	Status     RequestStatus
}

// StatusUpdateResult splits the batch by outcome. Cascaded holds the pending
// requests outside the batch that were rejected because the batch filled the
// event.
type StatusUpdateResult struct {
	Confirmed []ParticipationRequest
	Rejected  []ParticipationRequest
	Cascaded  []ParticipationRequest
}
