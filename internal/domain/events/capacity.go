package events

import (
	"context"
	"fmt"
)

// Availability is the remaining room on an event at the time it was read.
type Availability struct {
	Unlimited bool
	Remaining int
}

func (a Availability) Exhausted() bool {
	return !a.Unlimited && a.Remaining <= 0
}

// CapacityAccountant derives the confirmed count of an event from the
// request table. The count is never stored on the event, so callers that act
// on it must pass the repository of the transaction holding the event lock.
type CapacityAccountant struct{}

func (CapacityAccountant) ConfirmedCount(ctx context.Context, requests RequestRepository, eventID string) (int, error) {
	count, err := requests.CountByEventAndStatus(ctx, eventID, StatusConfirmed)
	if err != nil {
		return 0, fmt.Errorf("count confirmed requests for event %s: %w", eventID, err)
	}
	return count, nil
}

func (c CapacityAccountant) Available(ctx context.Context, requests RequestRepository, event *Event) (Availability, error) {
	if event.Unlimited() {
		return Availability{Unlimited: true}, nil
	}
	confirmed, err := c.ConfirmedCount(ctx, requests, event.ID)
	if err != nil {
		return Availability{}, err
	}
	return Availability{Remaining: event.ParticipantLimit - confirmed}, nil
}

// ConfirmedCounts is the batch form used by read projections. Events with no
// confirmed requests map to zero.
func (CapacityAccountant) ConfirmedCounts(ctx context.Context, requests RequestRepository, eventIDs []string) (map[string]int, error) {
	if len(eventIDs) == 0 {
		return map[string]int{}, nil
	}
	counts, err := requests.CountConfirmedByEvents(ctx, eventIDs)
	if err != nil {
		return nil, fmt.Errorf("count confirmed requests: %w", err)
	}
	out := make(map[string]int, len(eventIDs))
	for _, id := range eventIDs {
		out[id] = counts[id]
	}
	return out, nil
}
