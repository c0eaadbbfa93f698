package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/zonia3000/regifair/internal/domain/event"
	"github.com/zonia3000/regifair/internal/domain/registration"
	"github.com/zonia3000/regifair/internal/notifications"
	"github.com/zonia3000/regifair/internal/observability"
	"github.com/zonia3000/regifair/internal/report"
	"github.com/zonia3000/regifair/internal/validation"
)

type RegistrationsRepository interface {
	Create(ctx context.Context, req registration.CreateRequest) (registration.Registration, registration.Outcome, error)
	Update(ctx context.Context, req registration.UpdateRequest) (registration.Outcome, error)
	Delete(ctx context.Context, registrationID, eventID int64, maxParticipants *int) (registration.Outcome, error)
	GetByToken(ctx context.Context, token string) (registration.Registration, []string, error)
	ListForReport(ctx context.Context, eventID int64, limit, offset int) ([]report.Row, int, error)
	PromoteWaiting(ctx context.Context, eventID int64, maxParticipants *int) ([]int64, error)
	ConfirmationAddresses(ctx context.Context, registrationID int64) ([]string, error)
}

type EventLoader interface {
	GetByID(ctx context.Context, id int64) (event.Event, error)
}

type NotificationEnqueuer interface {
	Enqueue(ctx context.Context, n notifications.Notification) error
}

type RegistrationsHandler struct {
	repo   RegistrationsRepository
	events EventLoader
	queue  NotificationEnqueuer
	prom   *observability.Prom
	log    *slog.Logger
}

func NewRegistrationsHandler(
	repo RegistrationsRepository,
	events EventLoader,
	queue NotificationEnqueuer,
	prom *observability.Prom,
	log *slog.Logger,
) *RegistrationsHandler {
	return &RegistrationsHandler{
		repo:   repo,
		events: events,
		queue:  queue,
		prom:   prom,
		log:    log,
	}
}

type submitRequest struct {
	Values []any `json:"values" binding:"required"`
	// the submitter accepts a waiting list spot if the event ran out of seats
	WaitingList bool `json:"waitingList"`
}

// Register admits a new registration for an event.
func (h *RegistrationsHandler) Register(ctx *gin.Context) {
	eventID, ok := idParam(ctx, "id")

	if !ok {
		return
	}

	ev, err := h.events.GetByID(ctx.Request.Context(), eventID)

	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			RespondNotFound(ctx, "Event not found")
			return
		}
		RespondInternal(ctx, "Could not register")
		return
	}

	var req submitRequest

	if !BindJSON(ctx, &req) {
		return
	}

	values, ok := h.validateValues(ctx, ev, req.Values)

	if !ok {
		return
	}

	var token *string

	if ev.EditableRegistrations {
		t := uuid.NewString()
		token = &t
	}

	reg, out, err := h.repo.Create(ctx.Request.Context(), registration.CreateRequest{
		EventID:         ev.ID,
		Token:           token,
		Values:          ev.MapValues(values),
		MaxParticipants: ev.MaxParticipants,
		NumberOfPeople:  ev.NumberOfPeople(values),
		WaitingList:     req.WaitingList && ev.WaitingList,
	})

	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			RespondNotFound(ctx, "Event not found")
			return
		}
		RespondInternal(ctx, "Could not register")
		return
	}

	if out.Closed {
		h.countOutcome("closed")
		RespondConflict(ctx, "event_full", "This event is already at full capacity.")
		return
	}

	if out.WaitingList {
		h.countOutcome("waiting_list")
	} else {
		h.countOutcome("registered")
	}

	h.notify(ctx.Request.Context(), notifications.KindRegistrationCreated, ev, reg.ID, ev.ConfirmationEmails(values), out.WaitingList)

	resp := gin.H{
		"remainingSeats": out.Remaining,
		"waitingList":    out.WaitingList,
	}

	if token != nil {
		resp["token"] = *token
	}

	ctx.JSON(http.StatusCreated, resp)
}

// GetByToken serves a registrant their own submission.
func (h *RegistrationsHandler) GetByToken(ctx *gin.Context) {
	reg, values, ev, ok := h.loadByToken(ctx)

	if !ok {
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"eventId":     ev.ID,
		"eventName":   ev.Name,
		"values":      values,
		"waitingList": reg.WaitingList,
		"insertedAt":  reg.InsertedAt,
		"updatedAt":   reg.UpdatedAt,
	})
}

// UpdateByToken replaces the registrant's submitted values.
func (h *RegistrationsHandler) UpdateByToken(ctx *gin.Context) {
	reg, _, ev, ok := h.loadByToken(ctx)

	if !ok {
		return
	}

	if !ev.EditableRegistrations {
		RespondForbidden(ctx, "not_editable", "Registrations for this event cannot be edited.")
		return
	}

	var req submitRequest

	if !BindJSON(ctx, &req) {
		return
	}

	values, ok := h.validateValues(ctx, ev, req.Values)

	if !ok {
		return
	}

	out, err := h.repo.Update(ctx.Request.Context(), registration.UpdateRequest{
		RegistrationID:  reg.ID,
		EventID:         ev.ID,
		Values:          ev.MapValues(values),
		MaxParticipants: ev.MaxParticipants,
		NumberOfPeople:  ev.NumberOfPeople(values),
	})

	if err != nil {
		if errors.Is(err, registration.ErrNotFound) {
			RespondNotFound(ctx, "Registration not found")
			return
		}
		RespondInternal(ctx, "Could not update registration")
		return
	}

	h.notify(ctx.Request.Context(), notifications.KindRegistrationUpdated, ev, reg.ID, ev.ConfirmationEmails(values), out.WaitingList)

	ctx.JSON(http.StatusOK, gin.H{
		"remainingSeats": out.Remaining,
		"waitingList":    out.WaitingList,
	})
}

// DeleteByToken removes the registration and hands freed seats to the
// waiting list.
func (h *RegistrationsHandler) DeleteByToken(ctx *gin.Context) {
	reg, values, ev, ok := h.loadByToken(ctx)

	if !ok {
		return
	}

	if !ev.EditableRegistrations {
		RespondForbidden(ctx, "not_editable", "Registrations for this event cannot be deleted.")
		return
	}

	out, err := h.repo.Delete(ctx.Request.Context(), reg.ID, ev.ID, ev.MaxParticipants)

	if err != nil {
		if errors.Is(err, registration.ErrNotFound) {
			RespondNotFound(ctx, "Registration not found")
			return
		}
		RespondInternal(ctx, "Could not delete registration")
		return
	}

	h.notify(ctx.Request.Context(), notifications.KindRegistrationDeleted, ev, reg.ID, ev.ConfirmationEmails(values), reg.WaitingList)
	h.promoteFreed(ctx.Request.Context(), ev)

	ctx.JSON(http.StatusOK, gin.H{
		"remainingSeats": out.Remaining,
	})
}

// Report streams the registrations of an event as a tabular report.
func (h *RegistrationsHandler) Report(ctx *gin.Context) {
	eventID, ok := idParam(ctx, "id")

	if !ok {
		return
	}

	if _, err := h.events.GetByID(ctx.Request.Context(), eventID); err != nil {
		if errors.Is(err, event.ErrNotFound) {
			RespondNotFound(ctx, "Event not found")
			return
		}
		RespondInternal(ctx, "Could not build report")
		return
	}

	pageSize := intQuery(ctx, "pageSize", 50, 500)
	page := intQuery(ctx, "page", 1, 0)
	offset := (page - 1) * pageSize

	rows, total, err := h.repo.ListForReport(ctx.Request.Context(), eventID, pageSize, offset)

	if err != nil {
		RespondInternal(ctx, "Could not build report")
		return
	}

	ctx.JSON(http.StatusOK, report.Build(rows, total))
}

// AdminUpdate replaces a registration's values on the registrant's behalf.
// Unlike the token routes it is not gated on EditableRegistrations.
func (h *RegistrationsHandler) AdminUpdate(ctx *gin.Context) {
	eventID, ok := idParam(ctx, "id")

	if !ok {
		return
	}

	regID, ok := idParam(ctx, "registrationId")

	if !ok {
		return
	}

	ev, err := h.events.GetByID(ctx.Request.Context(), eventID)

	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			RespondNotFound(ctx, "Event not found")
			return
		}
		RespondInternal(ctx, "Could not update registration")
		return
	}

	var req submitRequest

	if !BindJSON(ctx, &req) {
		return
	}

	values, ok := h.validateValues(ctx, ev, req.Values)

	if !ok {
		return
	}

	out, err := h.repo.Update(ctx.Request.Context(), registration.UpdateRequest{
		RegistrationID:  regID,
		EventID:         ev.ID,
		Values:          ev.MapValues(values),
		MaxParticipants: ev.MaxParticipants,
		NumberOfPeople:  ev.NumberOfPeople(values),
	})

	if err != nil {
		if errors.Is(err, registration.ErrNotFound) {
			RespondNotFound(ctx, "Registration not found")
			return
		}
		RespondInternal(ctx, "Could not update registration")
		return
	}

	h.notify(ctx.Request.Context(), notifications.KindRegistrationUpdated, ev, regID, ev.ConfirmationEmails(values), out.WaitingList)

	ctx.JSON(http.StatusOK, gin.H{
		"remainingSeats": out.Remaining,
		"waitingList":    out.WaitingList,
	})
}

// AdminDelete lets an admin drop any registration of their event.
func (h *RegistrationsHandler) AdminDelete(ctx *gin.Context) {
	eventID, ok := idParam(ctx, "id")

	if !ok {
		return
	}

	regID, ok := idParam(ctx, "registrationId")

	if !ok {
		return
	}

	ev, err := h.events.GetByID(ctx.Request.Context(), eventID)

	if err != nil {
		if errors.Is(err, event.ErrNotFound) {
			RespondNotFound(ctx, "Event not found")
			return
		}
		RespondInternal(ctx, "Could not delete registration")
		return
	}

	out, err := h.repo.Delete(ctx.Request.Context(), regID, ev.ID, ev.MaxParticipants)

	if err != nil {
		if errors.Is(err, registration.ErrNotFound) {
			RespondNotFound(ctx, "Registration not found")
			return
		}
		RespondInternal(ctx, "Could not delete registration")
		return
	}

	h.promoteFreed(ctx.Request.Context(), ev)

	ctx.JSON(http.StatusOK, gin.H{
		"remainingSeats": out.Remaining,
	})
}

// validateValues runs the per-field validators and converts the raw
// submission to strings. On failure it writes the error response and
// returns ok=false.
func (h *RegistrationsHandler) validateValues(ctx *gin.Context, ev event.Event, raw []any) ([]string, bool) {
	fields := ev.ActiveFields()

	if fieldsErrors := validation.ValidateSubmission(fields, raw); len(fieldsErrors) > 0 {
		RespondBadRequest(ctx, "Invalid submission", gin.H{"fieldsErrors": fieldsErrors})
		return nil, false
	}

	values := make([]string, len(raw))

	for i, v := range raw {
		values[i] = validation.Stringify(v)
	}

	return values, true
}

func (h *RegistrationsHandler) loadByToken(ctx *gin.Context) (registration.Registration, []string, event.Event, bool) {
	token := ctx.Param("token")

	if _, err := uuid.Parse(token); err != nil {
		RespondBadRequest(ctx, "token must be a valid UUID", nil)
		return registration.Registration{}, nil, event.Event{}, false
	}

	reg, values, err := h.repo.GetByToken(ctx.Request.Context(), token)

	if err != nil {
		if errors.Is(err, registration.ErrNotFound) {
			RespondNotFound(ctx, "Registration not found")
			return registration.Registration{}, nil, event.Event{}, false
		}
		RespondInternal(ctx, "Could not fetch registration")
		return registration.Registration{}, nil, event.Event{}, false
	}

	ev, err := h.events.GetByID(ctx.Request.Context(), reg.EventID)

	if err != nil {
		RespondInternal(ctx, "Could not fetch registration")
		return registration.Registration{}, nil, event.Event{}, false
	}

	return reg, values, ev, true
}

// promoteFreed moves waiting registrations into freed seats and notifies
// the promoted registrants.
func (h *RegistrationsHandler) promoteFreed(ctx context.Context, ev event.Event) {
	if !ev.WaitingList || ev.MaxParticipants == nil {
		return
	}

	promoted, err := h.repo.PromoteWaiting(ctx, ev.ID, ev.MaxParticipants)

	if err != nil {
		h.log.Error("waiting list promotion failed", "event", ev.ID, "error", err)
		return
	}

	for _, id := range promoted {
		addresses, err := h.repo.ConfirmationAddresses(ctx, id)

		if err != nil {
			h.log.Error("could not resolve confirmation addresses", "registration", id, "error", err)
			addresses = nil
		}

		h.notify(ctx, notifications.KindWaitingListPromoted, ev, id, addresses, false)
	}
}

// notify enqueues a notification, best effort. Delivery failures never
// fail the request that triggered them.
func (h *RegistrationsHandler) notify(ctx context.Context, kind notifications.Kind, ev event.Event, regID int64, addresses []string, waitingList bool) {
	if h.queue == nil {
		return
	}

	err := h.queue.Enqueue(ctx, notifications.Notification{
		Kind:              kind,
		EventID:           ev.ID,
		EventName:         ev.Name,
		RegistrationID:    regID,
		AdminEmail:        ev.AdminEmail,
		Addresses:         addresses,
		ExtraEmailContent: ev.ExtraEmailContent,
		WaitingList:       waitingList,
	})

	if err != nil {
		h.log.Error("could not enqueue notification", "kind", kind, "registration", regID, "error", err)
	}
}

func (h *RegistrationsHandler) countOutcome(outcome string) {
	if h.prom == nil {
		return
	}

	h.prom.RegistrationsTotal.WithLabelValues(outcome).Inc()
}
