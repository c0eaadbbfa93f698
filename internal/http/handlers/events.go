package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zonia3000/regifair/internal/cache"
	"github.com/zonia3000/regifair/internal/domain/event"
)

type EventsRepository interface {
	Create(ctx context.Context, req event.CreateEventRequest) (event.Event, error)
	GetByID(ctx context.Context, id int64) (event.Event, error)
	List(ctx context.Context) ([]event.Event, error)
	Update(ctx context.Context, id int64, req event.UpdateEventRequest) (event.Event, error)
	Delete(ctx context.Context, id int64) error
}

type EventsHandler struct {
	repo  EventsRepository
	cache *cache.Cache
}

func NewEventsHandler(repo EventsRepository, c *cache.Cache) *EventsHandler {
	return &EventsHandler{repo: repo, cache: c}
}

// publicEventView is what an anonymous visitor needs to render the
// registration form. Notification settings stay private.
type publicEventView struct {
	ID                    int64             `json:"id"`
	Name                  string            `json:"name"`
	Date                  time.Time         `json:"date"`
	WaitingList           bool              `json:"waitingList"`
	EditableRegistrations bool              `json:"editableRegistrations"`
	FormFields            []event.FormField `json:"formFields"`
}

func publicViewKey(id int64) string {
	return "event:view:v1:" + strconv.FormatInt(id, 10)
}

// GetPublicEvent serves the form schema for the registration page.
func (h *EventsHandler) GetPublicEvent(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")

	if !ok {
		return
	}

	if h.cache != nil {
		if v, ok := h.cache.Get(publicViewKey(id)); ok {
			if view, ok := v.(publicEventView); ok {
				RespondJSONWithETag(ctx, http.StatusOK, view)
				return
			}
		}
	}

	e, err := h.repo.GetByID(ctx.Request.Context(), id)

	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			RespondNotFound(ctx, "Event not found")
			return
		}
		RespondInternal(ctx, "Could not fetch event")
		return
	}

	view := publicEventView{
		ID:                    e.ID,
		Name:                  e.Name,
		Date:                  e.Date,
		WaitingList:           e.WaitingList,
		EditableRegistrations: e.EditableRegistrations,
		FormFields:            e.ActiveFields(),
	}

	if h.cache != nil {
		h.cache.Set(publicViewKey(id), view)
	}

	RespondJSONWithETag(ctx, http.StatusOK, view)
}

func (h *EventsHandler) CreateEvent(ctx *gin.Context) {
	var req event.CreateEventRequest

	if !BindJSON(ctx, &req) {
		return
	}

	e, err := h.repo.Create(ctx.Request.Context(), req)

	if err != nil {
		if isSchemaError(err) {
			RespondBadRequest(ctx, "Invalid form schema", gin.H{"reason": err.Error()})
			return
		}
		RespondInternal(ctx, "Could not create event")
		return
	}

	ctx.JSON(http.StatusCreated, e)
}

func (h *EventsHandler) ListEvents(ctx *gin.Context) {
	events, err := h.repo.List(ctx.Request.Context())

	if err != nil {
		RespondInternal(ctx, "Could not list events")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items": events,
		"count": len(events),
	})
}

func (h *EventsHandler) GetEvent(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")

	if !ok {
		return
	}

	e, err := h.repo.GetByID(ctx.Request.Context(), id)

	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			RespondNotFound(ctx, "Event not found")
			return
		}
		RespondInternal(ctx, "Could not fetch event")
		return
	}

	ctx.JSON(http.StatusOK, e)
}

func (h *EventsHandler) UpdateEvent(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")

	if !ok {
		return
	}

	var req event.UpdateEventRequest

	if !BindJSON(ctx, &req) {
		return
	}

	e, err := h.repo.Update(ctx.Request.Context(), id, req)

	if err != nil {
		switch {
		case errors.Is(err, event.ErrNotFound):
			RespondNotFound(ctx, "Event not found")
		case isSchemaError(err):
			RespondBadRequest(ctx, "Invalid form schema", gin.H{"reason": err.Error()})
		default:
			RespondInternal(ctx, "Could not update event")
		}
		return
	}

	if h.cache != nil {
		h.cache.Delete(publicViewKey(id))
	}

	ctx.JSON(http.StatusOK, e)
}

func (h *EventsHandler) DeleteEvent(ctx *gin.Context) {
	id, ok := idParam(ctx, "id")

	if !ok {
		return
	}

	err := h.repo.Delete(ctx.Request.Context(), id)

	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			RespondNotFound(ctx, "Event not found")
			return
		}
		RespondInternal(ctx, "Could not delete event")
		return
	}

	if h.cache != nil {
		h.cache.Delete(publicViewKey(id))
	}

	ctx.Status(http.StatusNoContent)
}

// isSchemaError reports whether err comes from form field construction
// rather than storage.
func isSchemaError(err error) bool {
	return errors.Is(err, event.ErrInvalidFieldType) ||
		errors.Is(err, event.ErrExtrasMismatch) ||
		errors.Is(err, event.ErrDuplicatePeopleField)
}
