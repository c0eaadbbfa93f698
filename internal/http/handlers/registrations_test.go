package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/zonia3000/regifair/internal/domain/event"
	"github.com/zonia3000/regifair/internal/domain/registration"
	"github.com/zonia3000/regifair/internal/http/handlers"
	"github.com/zonia3000/regifair/internal/notifications"
	"github.com/zonia3000/regifair/internal/report"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Fake implementations of the handler interfaces

type fakeRegistrationsRepo struct {
	createFn    func(ctx context.Context, req registration.CreateRequest) (registration.Registration, registration.Outcome, error)
	updateFn    func(ctx context.Context, req registration.UpdateRequest) (registration.Outcome, error)
	deleteFn    func(ctx context.Context, registrationID, eventID int64, maxParticipants *int) (registration.Outcome, error)
	getTokenFn  func(ctx context.Context, token string) (registration.Registration, []string, error)
	listFn      func(ctx context.Context, eventID int64, limit, offset int) ([]report.Row, int, error)
	promoteFn   func(ctx context.Context, eventID int64, maxParticipants *int) ([]int64, error)
	addressesFn func(ctx context.Context, registrationID int64) ([]string, error)
}

func (f *fakeRegistrationsRepo) Create(ctx context.Context, req registration.CreateRequest) (registration.Registration, registration.Outcome, error) {
	if f.createFn != nil {
		return f.createFn(ctx, req)
	}
	return registration.Registration{ID: 1, EventID: req.EventID}, registration.Outcome{}, nil
}

func (f *fakeRegistrationsRepo) Update(ctx context.Context, req registration.UpdateRequest) (registration.Outcome, error) {
	if f.updateFn != nil {
		return f.updateFn(ctx, req)
	}
	return registration.Outcome{}, nil
}

func (f *fakeRegistrationsRepo) Delete(ctx context.Context, registrationID, eventID int64, maxParticipants *int) (registration.Outcome, error) {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, registrationID, eventID, maxParticipants)
	}
	return registration.Outcome{}, nil
}

func (f *fakeRegistrationsRepo) GetByToken(ctx context.Context, token string) (registration.Registration, []string, error) {
	if f.getTokenFn != nil {
		return f.getTokenFn(ctx, token)
	}
	return registration.Registration{}, nil, registration.ErrNotFound
}

func (f *fakeRegistrationsRepo) ListForReport(ctx context.Context, eventID int64, limit, offset int) ([]report.Row, int, error) {
	if f.listFn != nil {
		return f.listFn(ctx, eventID, limit, offset)
	}
	return nil, 0, nil
}

func (f *fakeRegistrationsRepo) PromoteWaiting(ctx context.Context, eventID int64, maxParticipants *int) ([]int64, error) {
	if f.promoteFn != nil {
		return f.promoteFn(ctx, eventID, maxParticipants)
	}
	return nil, nil
}

func (f *fakeRegistrationsRepo) ConfirmationAddresses(ctx context.Context, registrationID int64) ([]string, error) {
	if f.addressesFn != nil {
		return f.addressesFn(ctx, registrationID)
	}
	return nil, nil
}

type fakeEventLoader struct {
	getFn func(ctx context.Context, id int64) (event.Event, error)
}

func (f *fakeEventLoader) GetByID(ctx context.Context, id int64) (event.Event, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return event.Event{}, event.ErrNotFound
}

type fakeQueue struct {
	sent []notifications.Notification
	err  error
}

func (f *fakeQueue) Enqueue(_ context.Context, n notifications.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func setupRouter(method, path string, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()

	r.Handle(method, path, h)

	return r
}

func fieldID(id int64) *int64 {
	return &id
}

func maxP(n int) *int {
	return &n
}

// testEvent is an editable event with 2 seats, a waiting list, one
// confirmation email field and a people field.
func testEvent() event.Event {
	return event.Event{
		ID:                    7,
		Name:                  "GoLab",
		MaxParticipants:       maxP(2),
		WaitingList:           true,
		EditableRegistrations: true,
		AdminEmail:            "admin@example.org",
		FormFields: []event.FormField{
			{ID: fieldID(1), Label: "Name", Type: event.FieldText, Required: true, Position: 0},
			{ID: fieldID(2), Label: "Email", Type: event.FieldEmail, Required: true, Extras: event.EmailExtras{ConfirmationAddress: true}, Position: 1},
			{ID: fieldID(3), Label: "People", Type: event.FieldNumber, Extras: event.NumberExtras{UseAsNumberOfPeople: true}, Position: 2},
		},
	}
}

func eventLoaderFor(ev event.Event) *fakeEventLoader {
	return &fakeEventLoader{
		getFn: func(_ context.Context, id int64) (event.Event, error) {
			if id == ev.ID {
				return ev, nil
			}
			return event.Event{}, event.ErrNotFound
		},
	}
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name       string
		eventID    string
		body       string
		repo       *fakeRegistrationsRepo
		wantStatus int
		wantCode   string
		check      func(t *testing.T, body map[string]any, queue *fakeQueue)
	}{
		{
			name:       "unknown event",
			eventID:    "99",
			body:       `{"values":["Rita","rita@example.org",2]}`,
			repo:       &fakeRegistrationsRepo{},
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found",
		},
		{
			name:       "invalid event id",
			eventID:    "abc",
			body:       `{"values":[]}`,
			repo:       &fakeRegistrationsRepo{},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "validation failure reports field indexes",
			eventID:    "7",
			body:       `{"values":["","not-an-email","x"]}`,
			repo:       &fakeRegistrationsRepo{},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
			check: func(t *testing.T, body map[string]any, _ *fakeQueue) {
				details := body["error"].(map[string]any)["details"].(map[string]any)
				fieldsErrors := details["fieldsErrors"].(map[string]any)

				if len(fieldsErrors) != 3 {
					t.Fatalf("expected 3 field errors, got %v", fieldsErrors)
				}
			},
		},
		{
			name:    "successful registration",
			eventID: "7",
			body:    `{"values":["Rita","rita@example.org",2]}`,
			repo: &fakeRegistrationsRepo{
				createFn: func(_ context.Context, req registration.CreateRequest) (registration.Registration, registration.Outcome, error) {
					if req.NumberOfPeople != 2 {
						t.Fatalf("numberOfPeople = %d, want 2", req.NumberOfPeople)
					}
					if req.Token == nil {
						t.Fatalf("editable event must get a token")
					}
					if req.Values[1] != "Rita" || req.Values[2] != "rita@example.org" {
						t.Fatalf("values not keyed by field id: %v", req.Values)
					}

					one := 1
					return registration.Registration{ID: 42, EventID: req.EventID},
						registration.Outcome{Remaining: &one}, nil
				},
			},
			wantStatus: http.StatusCreated,
			check: func(t *testing.T, body map[string]any, queue *fakeQueue) {
				if body["remainingSeats"].(float64) != 1 {
					t.Fatalf("remainingSeats = %v", body["remainingSeats"])
				}
				if tok, ok := body["token"].(string); !ok || tok == "" {
					t.Fatalf("token missing from response")
				}

				if len(queue.sent) != 1 {
					t.Fatalf("expected 1 notification, got %d", len(queue.sent))
				}
				n := queue.sent[0]
				if n.Kind != notifications.KindRegistrationCreated {
					t.Fatalf("kind = %s", n.Kind)
				}
				if len(n.Addresses) != 1 || n.Addresses[0] != "rita@example.org" {
					t.Fatalf("addresses = %v", n.Addresses)
				}
			},
		},
		{
			name:    "event full",
			eventID: "7",
			body:    `{"values":["Rita","rita@example.org",1]}`,
			repo: &fakeRegistrationsRepo{
				createFn: func(_ context.Context, _ registration.CreateRequest) (registration.Registration, registration.Outcome, error) {
					return registration.Registration{}, registration.Outcome{Closed: true}, nil
				},
			},
			wantStatus: http.StatusConflict,
			wantCode:   "event_full",
			check: func(t *testing.T, _ map[string]any, queue *fakeQueue) {
				if len(queue.sent) != 0 {
					t.Fatalf("closed registration must not notify")
				}
			},
		},
		{
			name:    "admitted to waiting list",
			eventID: "7",
			body:    `{"values":["Rita","rita@example.org",1],"waitingList":true}`,
			repo: &fakeRegistrationsRepo{
				createFn: func(_ context.Context, req registration.CreateRequest) (registration.Registration, registration.Outcome, error) {
					if !req.WaitingList {
						t.Fatalf("waiting list consent not forwarded")
					}
					zero := 0
					return registration.Registration{ID: 43, EventID: req.EventID, WaitingList: true},
						registration.Outcome{Remaining: &zero, WaitingList: true}, nil
				},
			},
			wantStatus: http.StatusCreated,
			check: func(t *testing.T, body map[string]any, _ *fakeQueue) {
				if body["waitingList"] != true {
					t.Fatalf("waitingList = %v", body["waitingList"])
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			queue := &fakeQueue{}
			h := handlers.NewRegistrationsHandler(tc.repo, eventLoaderFor(testEvent()), queue, nil, testLogger())

			r := setupRouter(http.MethodPost, "/events/:id/registrations", h.Register)

			req := httptest.NewRequest(http.MethodPost, "/events/"+tc.eventID+"/registrations", bytes.NewBufferString(tc.body))
			req.Header.Set("Content-Type", "application/json")

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (body: %s)", w.Code, tc.wantStatus, w.Body.String())
			}

			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid response body: %v", err)
			}

			if tc.wantCode != "" {
				apiErr := body["error"].(map[string]any)
				if apiErr["code"] != tc.wantCode {
					t.Fatalf("error code = %v, want %s", apiErr["code"], tc.wantCode)
				}
			}

			if tc.check != nil {
				tc.check(t, body, queue)
			}
		})
	}
}

func TestUpdateByTokenRequiresEditableEvent(t *testing.T) {
	ev := testEvent()
	ev.EditableRegistrations = false

	token := "b4b2da93-fd10-402b-9d36-465fdcbdb3b6"

	repo := &fakeRegistrationsRepo{
		getTokenFn: func(_ context.Context, _ string) (registration.Registration, []string, error) {
			return registration.Registration{ID: 42, EventID: ev.ID, Token: &token}, []string{"Rita", "rita@example.org", "1"}, nil
		},
	}

	h := handlers.NewRegistrationsHandler(repo, eventLoaderFor(ev), &fakeQueue{}, nil, testLogger())
	r := setupRouter(http.MethodPut, "/registrations/:token", h.UpdateByToken)

	req := httptest.NewRequest(http.MethodPut, "/registrations/"+token, bytes.NewBufferString(`{"values":["Rita","rita@example.org",1]}`))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 (body: %s)", w.Code, w.Body.String())
	}
}

func TestDeleteByTokenPromotesWaitingList(t *testing.T) {
	ev := testEvent()

	token := "b4b2da93-fd10-402b-9d36-465fdcbdb3b6"

	one := 1
	repo := &fakeRegistrationsRepo{
		getTokenFn: func(_ context.Context, _ string) (registration.Registration, []string, error) {
			return registration.Registration{ID: 42, EventID: ev.ID, Token: &token}, []string{"Rita", "rita@example.org", "1"}, nil
		},
		deleteFn: func(_ context.Context, registrationID, eventID int64, _ *int) (registration.Outcome, error) {
			if registrationID != 42 || eventID != ev.ID {
				t.Fatalf("delete called with %d/%d", registrationID, eventID)
			}
			return registration.Outcome{Remaining: &one}, nil
		},
		promoteFn: func(_ context.Context, eventID int64, _ *int) ([]int64, error) {
			return []int64{55}, nil
		},
		addressesFn: func(_ context.Context, registrationID int64) ([]string, error) {
			return []string{"waiting@example.org"}, nil
		},
	}

	queue := &fakeQueue{}
	h := handlers.NewRegistrationsHandler(repo, eventLoaderFor(ev), queue, nil, testLogger())
	r := setupRouter(http.MethodDelete, "/registrations/:token", h.DeleteByToken)

	req := httptest.NewRequest(http.MethodDelete, "/registrations/"+token, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", w.Code, w.Body.String())
	}

	if len(queue.sent) != 2 {
		t.Fatalf("expected delete + promotion notifications, got %d", len(queue.sent))
	}

	promoted := queue.sent[1]
	if promoted.Kind != notifications.KindWaitingListPromoted {
		t.Fatalf("kind = %s", promoted.Kind)
	}
	if promoted.RegistrationID != 55 {
		t.Fatalf("promoted registration = %d", promoted.RegistrationID)
	}
	if len(promoted.Addresses) != 1 || promoted.Addresses[0] != "waiting@example.org" {
		t.Fatalf("addresses = %v", promoted.Addresses)
	}
}

func TestAdminUpdateReplacesValues(t *testing.T) {
	ev := testEvent()
	// admin edits work even when self-service is off
	ev.EditableRegistrations = false

	var got registration.UpdateRequest

	repo := &fakeRegistrationsRepo{
		updateFn: func(_ context.Context, req registration.UpdateRequest) (registration.Outcome, error) {
			got = req
			one := 1
			return registration.Outcome{Remaining: &one}, nil
		},
	}

	queue := &fakeQueue{}
	h := handlers.NewRegistrationsHandler(repo, eventLoaderFor(ev), queue, nil, testLogger())
	r := setupRouter(http.MethodPut, "/admin/events/:id/registrations/:registrationId", h.AdminUpdate)

	req := httptest.NewRequest(http.MethodPut, "/admin/events/7/registrations/42",
		bytes.NewBufferString(`{"values":["Rita","rita@example.org",2]}`))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", w.Code, w.Body.String())
	}

	if got.RegistrationID != 42 || got.EventID != 7 {
		t.Fatalf("update called with %d/%d", got.RegistrationID, got.EventID)
	}
	if got.Values[1] != "Rita" || got.Values[2] != "rita@example.org" {
		t.Fatalf("values not keyed by field id: %v", got.Values)
	}
	if got.NumberOfPeople != 2 {
		t.Fatalf("numberOfPeople = %d, want 2", got.NumberOfPeople)
	}

	if len(queue.sent) != 1 || queue.sent[0].Kind != notifications.KindRegistrationUpdated {
		t.Fatalf("expected update notification, got %v", queue.sent)
	}
}

func TestAdminUpdateUnknownRegistration(t *testing.T) {
	repo := &fakeRegistrationsRepo{
		updateFn: func(_ context.Context, _ registration.UpdateRequest) (registration.Outcome, error) {
			return registration.Outcome{}, registration.ErrNotFound
		},
	}

	h := handlers.NewRegistrationsHandler(repo, eventLoaderFor(testEvent()), &fakeQueue{}, nil, testLogger())
	r := setupRouter(http.MethodPut, "/admin/events/:id/registrations/:registrationId", h.AdminUpdate)

	req := httptest.NewRequest(http.MethodPut, "/admin/events/7/registrations/99",
		bytes.NewBufferString(`{"values":["Rita","rita@example.org",2]}`))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d (body: %s)", w.Code, w.Body.String())
	}
}

func TestRegisterRejectsMismatchedValueCount(t *testing.T) {
	queue := &fakeQueue{}
	h := handlers.NewRegistrationsHandler(&fakeRegistrationsRepo{}, eventLoaderFor(testEvent()), queue, nil, testLogger())
	r := setupRouter(http.MethodPost, "/events/:id/registrations", h.Register)

	req := httptest.NewRequest(http.MethodPost, "/events/7/registrations",
		bytes.NewBufferString(`{"values":["Rita","rita@example.org",2,"surplus"]}`))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d (body: %s)", w.Code, w.Body.String())
	}

	if len(queue.sent) != 0 {
		t.Fatalf("rejected submission must not notify")
	}
}

func TestGetByTokenNotFound(t *testing.T) {
	h := handlers.NewRegistrationsHandler(&fakeRegistrationsRepo{}, eventLoaderFor(testEvent()), &fakeQueue{}, nil, testLogger())
	r := setupRouter(http.MethodGet, "/registrations/:token", h.GetByToken)

	req := httptest.NewRequest(http.MethodGet, "/registrations/b4b2da93-fd10-402b-9d36-465fdcbdb3b6", nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGetByTokenRejectsMalformedToken(t *testing.T) {
	h := handlers.NewRegistrationsHandler(&fakeRegistrationsRepo{}, eventLoaderFor(testEvent()), &fakeQueue{}, nil, testLogger())
	r := setupRouter(http.MethodGet, "/registrations/:token", h.GetByToken)

	req := httptest.NewRequest(http.MethodGet, "/registrations/not-a-token", nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestReportBuildsTable(t *testing.T) {
	ev := testEvent()

	repo := &fakeRegistrationsRepo{
		listFn: func(_ context.Context, eventID int64, limit, offset int) ([]report.Row, int, error) {
			if eventID != ev.ID {
				t.Fatalf("eventID = %d", eventID)
			}
			if limit != 50 || offset != 0 {
				t.Fatalf("limit/offset = %d/%d", limit, offset)
			}

			v := "Rita"
			return []report.Row{
				{RegistrationID: 1, Label: "Name", Value: &v},
			}, 1, nil
		},
	}

	h := handlers.NewRegistrationsHandler(repo, eventLoaderFor(ev), &fakeQueue{}, nil, testLogger())
	r := setupRouter(http.MethodGet, "/admin/events/:id/registrations", h.Report)

	req := httptest.NewRequest(http.MethodGet, "/admin/events/7/registrations", nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", w.Code, w.Body.String())
	}

	var rep report.Report
	if err := json.Unmarshal(w.Body.Bytes(), &rep); err != nil {
		t.Fatalf("invalid body: %v", err)
	}

	if rep.Total != 1 || len(rep.Head) != 1 || rep.Head[0].Label != "Name" {
		t.Fatalf("unexpected report: %+v", rep)
	}
}
