package stats

import (
	"context"

	"github.com/Togather-Foundation/gatherings/internal/domain/events"
)

// Noop stands in when no statistics service is configured.
type Noop struct{}

func (Noop) ViewsFor(_ context.Context, eventIDs []string) (map[string]int64, error) {
	views := make(map[string]int64, len(eventIDs))
	for _, id := range eventIDs {
		views[id] = 0
	}
	return views, nil
}

func (Noop) RecordHit(context.Context, events.Hit) error { return nil }
