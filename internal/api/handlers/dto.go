package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/domain/events"
)

// WireTime is a UTC timestamp in the "2006-01-02 15:04:05" wire format.
type WireTime struct {
	time.Time
}

type wireTimeError struct {
	value string
}

func (e *wireTimeError) Error() string {
	return fmt.Sprintf("must match %q, got %q", events.DateTimeLayout, e.value)
}

func (e *wireTimeError) field() string { return "eventDate" }

func (t WireTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(events.DateTimeLayout))
}

func (t *WireTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return &wireTimeError{value: string(data)}
	}
	parsed, err := time.ParseInLocation(events.DateTimeLayout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return &wireTimeError{value: raw}
	}
	t.Time = parsed
	return nil
}

func wire(t *time.Time) *WireTime {
	if t == nil {
		return nil
	}
	return &WireTime{Time: *t}
}

type LocationDto struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (l *LocationDto) domain() *events.Location {
	if l == nil {
		return nil
	}
	return &events.Location{Lat: l.Lat, Lon: l.Lon}
}

type NewEventDto struct {
	Title             string       `json:"title"`
	Annotation        string       `json:"annotation"`
	Description       string       `json:"description"`
	Category          string       `json:"category"`
	Location          *LocationDto `json:"location"`
	EventDate         *WireTime    `json:"eventDate"`
	Paid              *bool        `json:"paid"`
	ParticipantLimit  *int         `json:"participantLimit"`
	RequestModeration *bool        `json:"requestModeration"`
}

func (d NewEventDto) domain() events.NewEvent {
	in := events.NewEvent{
		Title:             strings.TrimSpace(d.Title),
		Annotation:        strings.TrimSpace(d.Annotation),
		Description:       strings.TrimSpace(d.Description),
		CategoryID:        d.Category,
		Location:          d.Location.domain(),
		Paid:              d.Paid,
		ParticipantLimit:  d.ParticipantLimit,
		RequestModeration: d.RequestModeration,
	}
	if d.EventDate != nil {
		in.EventDate = d.EventDate.Time
	}
	return in
}

// UpdateEventDto is shared by the organizer and moderator updates. Absent
// fields are left unchanged.
type UpdateEventDto struct {
	Title             *string      `json:"title"`
	Annotation        *string      `json:"annotation"`
	Description       *string      `json:"description"`
	Category          *string      `json:"category"`
	Location          *LocationDto `json:"location"`
	EventDate         *WireTime    `json:"eventDate"`
	Paid              *bool        `json:"paid"`
	ParticipantLimit  *int         `json:"participantLimit"`
	RequestModeration *bool        `json:"requestModeration"`
	StateAction       *string      `json:"stateAction"`
}

func (d UpdateEventDto) patch() (events.EventPatch, *events.StateAction, error) {
	patch := events.EventPatch{
		Title:             trimmed(d.Title),
		Annotation:        trimmed(d.Annotation),
		Description:       trimmed(d.Description),
		CategoryID:        d.Category,
		Location:          d.Location.domain(),
		Paid:              d.Paid,
		ParticipantLimit:  d.ParticipantLimit,
		RequestModeration: d.RequestModeration,
	}
	if d.EventDate != nil {
		date := d.EventDate.Time
		patch.EventDate = &date
	}
	if d.StateAction == nil {
		return patch, nil, nil
	}
	action, err := events.ParseStateAction(*d.StateAction)
	if err != nil {
		return events.EventPatch{}, nil, err
	}
	return patch, &action, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

type CategoryDto struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type UserShortDto struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type UserDto struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type EventFullDto struct {
	ID                string       `json:"id"`
	Title             string       `json:"title"`
	Annotation        string       `json:"annotation"`
	Description       string       `json:"description"`
	Category          CategoryDto  `json:"category"`
	Initiator         UserShortDto `json:"initiator"`
	Location          LocationDto  `json:"location"`
	EventDate         WireTime     `json:"eventDate"`
	Paid              bool         `json:"paid"`
	ParticipantLimit  int          `json:"participantLimit"`
	RequestModeration bool         `json:"requestModeration"`
	State             string       `json:"state"`
	CreatedOn         WireTime     `json:"createdOn"`
	PublishedOn       *WireTime    `json:"publishedOn"`
	ConfirmedRequests int          `json:"confirmedRequests"`
	Views             int64        `json:"views"`
}

type EventShortDto struct {
	ID                string       `json:"id"`
	Title             string       `json:"title"`
	Annotation        string       `json:"annotation"`
	Category          CategoryDto  `json:"category"`
	Initiator         UserShortDto `json:"initiator"`
	EventDate         WireTime     `json:"eventDate"`
	Paid              bool         `json:"paid"`
	ConfirmedRequests int          `json:"confirmedRequests"`
	Views             int64        `json:"views"`
}

func toEventFull(v events.EventView) EventFullDto {
	return EventFullDto{
		ID:                v.ID,
		Title:             v.Title,
		Annotation:        v.Annotation,
		Description:       v.Description,
		Category:          CategoryDto{ID: v.Category.ID, Name: v.Category.Name},
		Initiator:         UserShortDto{ID: v.Initiator.ID, Name: v.Initiator.Name},
		Location:          LocationDto{Lat: v.Location.Lat, Lon: v.Location.Lon},
		EventDate:         WireTime{Time: v.EventDate},
		Paid:              v.Paid,
		ParticipantLimit:  v.ParticipantLimit,
		RequestModeration: v.RequestModeration,
		State:             string(v.State),
		CreatedOn:         WireTime{Time: v.CreatedOn},
		PublishedOn:       wire(v.PublishedOn),
		ConfirmedRequests: v.ConfirmedRequests,
		Views:             v.Views,
	}
}

func toEventShort(v events.EventView) EventShortDto {
	return EventShortDto{
		ID:                v.ID,
		Title:             v.Title,
		Annotation:        v.Annotation,
		Category:          CategoryDto{ID: v.Category.ID, Name: v.Category.Name},
		Initiator:         UserShortDto{ID: v.Initiator.ID, Name: v.Initiator.Name},
		EventDate:         WireTime{Time: v.EventDate},
		Paid:              v.Paid,
		ConfirmedRequests: v.ConfirmedRequests,
		Views:             v.Views,
	}
}

func mapSlice[T, R any](items []T, fn func(T) R) []R {
	out := make([]R, 0, len(items))
	for _, item := range items {
		out = append(out, fn(item))
	}
	return out
}

type ParticipationRequestDto struct {
	ID        string   `json:"id"`
	Event     string   `json:"event"`
	Requester string   `json:"requester"`
	Created   WireTime `json:"created"`
	Status    string   `json:"status"`
}

func toRequestDto(r events.ParticipationRequest) ParticipationRequestDto {
	return ParticipationRequestDto{
		ID:        r.ID,
		Event:     r.EventID,
		Requester: r.RequesterID,
		Created:   WireTime{Time: r.Created},
		Status:    string(r.Status),
	}
}

type StatusUpdateDto struct {
	RequestIDs []string `json:"requestIds"`
	Status     string   `json:"status"`
}

type StatusUpdateResultDto struct {
	ConfirmedRequests []ParticipationRequestDto `json:"confirmedRequests"`
	RejectedRequests  []ParticipationRequestDto `json:"rejectedRequests"`
	// CascadedRequests were pending outside the batch and closed because the
	// batch filled the event.
	CascadedRequests []ParticipationRequestDto `json:"cascadedRequests"`
}

func toStatusUpdateResult(r *events.StatusUpdateResult) StatusUpdateResultDto {
	return StatusUpdateResultDto{
		ConfirmedRequests: mapSlice(r.Confirmed, toRequestDto),
		RejectedRequests:  mapSlice(r.Rejected, toRequestDto),
		CascadedRequests:  mapSlice(r.Cascaded, toRequestDto),
	}
}

type NewUserDto struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type NewCategoryDto struct {
	Name string `json:"name"`
}
