package events

import (
	"strings"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
)

// DateTimeLayout is the wire and query-string format for event dates.
const DateTimeLayout = "2006-01-02 15:04:05"

const (
	// MinLeadTimeOnCreate is how far ahead of now an organizer must schedule an event.
	MinLeadTimeOnCreate = 2 * time.Hour
	// MinLeadTimeOnPublish is how far ahead of publication the event must start.
	MinLeadTimeOnPublish = 1 * time.Hour
)

type State string

const (
	StatePending   State = "PENDING"
	StatePublished State = "PUBLISHED"
	StateCanceled  State = "CANCELED"
)

func ParseState(value string) (State, error) {
	switch state := State(strings.ToUpper(strings.TrimSpace(value))); state {
	case StatePending, StatePublished, StateCanceled:
		return state, nil
	}
	return "", apperr.Invalid("state", "unsupported event state %q", value)
}

type Location struct {
	Lat float64 `validate:"gte=-90,lte=90"`
	Lon float64 `validate:"gte=-180,lte=180"`
}

// Event is the aggregate moderated by LifecycleService. The number of
// confirmed participants is deliberately not part of it: it is always derived
// from the participation request table.
type Event struct {
	ID                string
	Title             string
	Annotation        string
	Description       string
	CategoryID        string
	InitiatorID       string
	Location          Location
	EventDate         time.Time
	Paid              bool
	ParticipantLimit  int
	RequestModeration bool
	State             State
	CreatedOn         time.Time
	PublishedOn       *time.Time
}

// Unlimited reports whether the event accepts any number of participants.
func (e *Event) Unlimited() bool {
	return e.ParticipantLimit == 0
}

// AutoConfirms reports whether new participation requests skip the organizer.
func (e *Event) AutoConfirms() bool {
	return !e.RequestModeration || e.Unlimited()
}

// Category is the minimal view of a category the core needs.
type Category struct {
	ID   string
	Name string
}

// User is the minimal view of a user the core needs.
type User struct {
	ID    string
	Name  string
	Email string
}

// EventView is the read projection returned to callers: the event plus the
// values derived from other sources.
type EventView struct {
	Event
	Category          Category
	Initiator         User
	ConfirmedRequests int
	Views             int64
}
