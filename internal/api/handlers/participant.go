package handlers

import (
	"net/http"
	"strings"

	"github.com/Togather-Foundation/gatherings/internal/domain/apperr"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
)

// ParticipantHandler serves /users/{userId}/requests.
type ParticipantHandler struct {
	Admission *events.AdmissionService
	Env       string
}

func NewParticipantHandler(admission *events.AdmissionService, env string) *ParticipantHandler {
	return &ParticipantHandler{Admission: admission, Env: env}
}

func (h *ParticipantHandler) List(w http.ResponseWriter, r *http.Request) {
	handle(h.Env, func(w http.ResponseWriter, r *http.Request) error {
		userID, err := pathParam(r, "userId")
		if err != nil {
			return err
		}
		requests, err := h.Admission.ListOwnRequests(r.Context(), userID)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, mapSlice(requests, toRequestDto))
		return nil
	})(w, r)
}

func (h *ParticipantHandler) Create(w http.ResponseWriter, r *http.Request) {
	handle(h.Env, func(w http.ResponseWriter, r *http.Request) error {
		userID, err := pathParam(r, "userId")
		if err != nil {
			return err
		}
		eventID := strings.TrimSpace(r.URL.Query().Get("eventId"))
		if eventID == "" {
			return apperr.Invalid("eventId", "is required")
		}

		request, err := h.Admission.CreateRequest(r.Context(), userID, eventID)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusCreated, toRequestDto(*request))
		return nil
	})(w, r)
}

func (h *ParticipantHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	handle(h.Env, func(w http.ResponseWriter, r *http.Request) error {
		userID, err := pathParam(r, "userId")
		if err != nil {
			return err
		}
		requestID, err := pathParam(r, "requestId")
		if err != nil {
			return err
		}

		request, err := h.Admission.CancelOwnRequest(r.Context(), userID, requestID)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, toRequestDto(*request))
		return nil
	})(w, r)
}
