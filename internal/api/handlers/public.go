package handlers

import (
	"net/http"
	"time"

	"github.com/Togather-Foundation/gatherings/internal/api/middleware"
	"github.com/Togather-Foundation/gatherings/internal/domain/events"
)

// PublicHandler serves the anonymous catalogue under /events. Every read is
// reported to the statistics service.
type PublicHandler struct {
	Lifecycle *events.LifecycleService
	Env       string
	now       func() time.Time
}

func NewPublicHandler(lifecycle *events.LifecycleService, env string) *PublicHandler {
	return &PublicHandler{Lifecycle: lifecycle, Env: env, now: func() time.Time { return time.Now().UTC() }}
}

func (h *PublicHandler) Search(w http.ResponseWriter, r *http.Request) {
	handle(h.Env, func(w http.ResponseWriter, r *http.Request) error {
		filters, page, err := events.ParsePublicFilters(r.URL.Query(), h.now())
		if err != nil {
			return err
		}
		views, err := h.Lifecycle.SearchPublished(r.Context(), filters, page, hit(r))
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, mapSlice(views, toEventShort))
		return nil
	})(w, r)
}

func (h *PublicHandler) Get(w http.ResponseWriter, r *http.Request) {
	handle(h.Env, func(w http.ResponseWriter, r *http.Request) error {
		eventID, err := pathParam(r, "id")
		if err != nil {
			return err
		}
		view, err := h.Lifecycle.GetPublished(r.Context(), eventID, hit(r))
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, toEventFull(*view))
		return nil
	})(w, r)
}

func hit(r *http.Request) events.Hit {
	return events.Hit{IP: middleware.ClientIP(r)}
}
