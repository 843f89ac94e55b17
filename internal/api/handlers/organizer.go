package handlers

import (
	"net/http"

	"github.com/Togather-Foundation/gatherings/internal/domain/events"
)

// OrganizerHandler serves /users/{userId}/events: an initiator managing
// their own events and the requests made to them.
type OrganizerHandler struct {
	Lifecycle *events.LifecycleService
	Admission *events.AdmissionService
	Env       string
}

func NewOrganizerHandler(lifecycle *events.LifecycleService, admission *events.AdmissionService, env string) *OrganizerHandler {
	return &OrganizerHandler{Lifecycle: lifecycle, Admission: admission, Env: env}
}

func (h *OrganizerHandler) Create(w http.ResponseWriter, r *http.Request) {
	handle(h.Env, func(w http.ResponseWriter, r *http.Request) error {
		userID, err := pathParam(r, "userId")
		if err != nil {
			return err
		}
		var body NewEventDto
		if err := decodeJSON(r, &body); err != nil {
			return err
		}

		event, err := h.Lifecycle.CreateEvent(r.Context(), userID, body.domain())
		if err != nil {
			return err
		}
		view, err := h.describeOne(r, *event)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusCreated, toEventFull(view))
		return nil
	})(w, r)
}

func (h *OrganizerHandler) List(w http.ResponseWriter, r *http.Request) {
	handle(h.Env, func(w http.ResponseWriter, r *http.Request) error {
		userID, err := pathParam(r, "userId")
		if err != nil {
			return err
		}
		page, err := events.ParsePage(r.URL.Query())
		if err != nil {
			return err
		}
		views, err := h.Lifecycle.ListOwned(r.Context(), userID, page)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, mapSlice(views, toEventShort))
		return nil
	})(w, r)
}

func (h *OrganizerHandler) Get(w http.ResponseWriter, r *http.Request) {
	handle(h.Env, func(w http.ResponseWriter, r *http.Request) error {
		userID, eventID, err := userAndEvent(r)
		if err != nil {
			return err
		}
		view, err := h.Lifecycle.GetOwned(r.Context(), userID, eventID)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, toEventFull(*view))
		return nil
	})(w, r)
}

func (h *OrganizerHandler) Update(w http.ResponseWriter, r *http.Request) {
	handle(h.Env, func(w http.ResponseWriter, r *http.Request) error {
		userID, eventID, err := userAndEvent(r)
		if err != nil {
			return err
		}
		var body UpdateEventDto
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
		patch, action, err := body.patch()
		if err != nil {
			return err
		}

		event, err := h.Lifecycle.UpdateAsOwner(r.Context(), userID, eventID, events.OwnerPatch{EventPatch: patch, StateAction: action})
		if err != nil {
			return err
		}
		view, err := h.describeOne(r, *event)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, toEventFull(view))
		return nil
	})(w, r)
}

func (h *OrganizerHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	handle(h.Env, func(w http.ResponseWriter, r *http.Request) error {
		userID, eventID, err := userAndEvent(r)
		if err != nil {
			return err
		}
		requests, err := h.Admission.ListEventRequests(r.Context(), userID, eventID)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, mapSlice(requests, toRequestDto))
		return nil
	})(w, r)
}

func (h *OrganizerHandler) UpdateRequests(w http.ResponseWriter, r *http.Request) {
	handle(h.Env, func(w http.ResponseWriter, r *http.Request) error {
		userID, eventID, err := userAndEvent(r)
		if err != nil {
			return err
		}
		var body StatusUpdateDto
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
		status, err := events.ParseRequestStatus(body.Status)
		if err != nil {
			return err
		}

		result, err := h.Admission.UpdateRequestStatuses(r.Context(), userID, eventID, events.StatusUpdate{
			RequestIDs: body.RequestIDs,
			Status:     status,
		})
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, toStatusUpdateResult(result))
		return nil
	})(w, r)
}

func (h *OrganizerHandler) describeOne(r *http.Request, event events.Event) (events.EventView, error) {
	views, err := h.Lifecycle.Describe(r.Context(), []events.Event{event})
	if err != nil {
		return events.EventView{}, err
	}
	return views[0], nil
}

func userAndEvent(r *http.Request) (string, string, error) {
	userID, err := pathParam(r, "userId")
	if err != nil {
		return "", "", err
	}
	eventID, err := pathParam(r, "eventId")
	if err != nil {
		return "", "", err
	}
	return userID, eventID, nil
}
