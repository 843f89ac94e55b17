package handlers

import (
	"net/http"

	"github.com/Togather-Foundation/gatherings/internal/domain/events"
)

// AdminHandler serves moderation and the thin directory CRUD under /admin.
type AdminHandler struct {
	Lifecycle *events.LifecycleService
	Directory *events.DirectoryService
	Env       string
}

func NewAdminHandler(lifecycle *events.LifecycleService, directory *events.DirectoryService, env string) *AdminHandler {
	return &AdminHandler{Lifecycle: lifecycle, Directory: directory, Env: env}
}

func (h *AdminHandler) SearchEvents(w http.ResponseWriter, r *http.Request) {
	handle(h.Env, func(w http.ResponseWriter, r *http.Request) error {
		filters, page, err := events.ParseAdminFilters(r.URL.Query())
		if err != nil {
			return err
		}
		views, err := h.Lifecycle.Search(r.Context(), filters, page)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, mapSlice(views, toEventFull))
		return nil
	})(w, r)
}

func (h *AdminHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	handle(h.Env, func(w http.ResponseWriter, r *http.Request) error {
		eventID, err := pathParam(r, "eventId")
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

		event, err := h.Lifecycle.UpdateAsAdmin(r.Context(), eventID, events.AdminPatch{EventPatch: patch, StateAction: action})
		if err != nil {
			return err
		}
		views, err := h.Lifecycle.Describe(r.Context(), []events.Event{*event})
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, toEventFull(views[0]))
		return nil
	})(w, r)
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	handle(h.Env, func(w http.ResponseWriter, r *http.Request) error {
		var body NewUserDto
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
		user, err := h.Directory.CreateUser(r.Context(), events.NewUser{Name: body.Name, Email: body.Email})
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusCreated, UserDto{ID: user.ID, Name: user.Name, Email: user.Email})
		return nil
	})(w, r)
}

func (h *AdminHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	handle(h.Env, func(w http.ResponseWriter, r *http.Request) error {
		var body NewCategoryDto
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
		category, err := h.Directory.CreateCategory(r.Context(), events.NewCategory{Name: body.Name})
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusCreated, CategoryDto{ID: category.ID, Name: category.Name})
		return nil
	})(w, r)
}
