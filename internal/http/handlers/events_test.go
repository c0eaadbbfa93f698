package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zonia3000/regifair/internal/cache"
	"github.com/zonia3000/regifair/internal/domain/event"
	"github.com/zonia3000/regifair/internal/http/handlers"
)

type fakeEventsRepo struct {
	createFn func(ctx context.Context, req event.CreateEventRequest) (event.Event, error)
	getFn    func(ctx context.Context, id int64) (event.Event, error)
	listFn   func(ctx context.Context) ([]event.Event, error)
	updateFn func(ctx context.Context, id int64, req event.UpdateEventRequest) (event.Event, error)
	deleteFn func(ctx context.Context, id int64) error
}

func (f *fakeEventsRepo) Create(ctx context.Context, req event.CreateEventRequest) (event.Event, error) {
	if f.createFn != nil {
		return f.createFn(ctx, req)
	}
	return event.Event{}, nil
}

func (f *fakeEventsRepo) GetByID(ctx context.Context, id int64) (event.Event, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return event.Event{}, event.ErrNotFound
}

func (f *fakeEventsRepo) List(ctx context.Context) ([]event.Event, error) {
	if f.listFn != nil {
		return f.listFn(ctx)
	}
	return nil, nil
}

func (f *fakeEventsRepo) Update(ctx context.Context, id int64, req event.UpdateEventRequest) (event.Event, error) {
	if f.updateFn != nil {
		return f.updateFn(ctx, id, req)
	}
	return event.Event{}, nil
}

func (f *fakeEventsRepo) Delete(ctx context.Context, id int64) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

func TestGetPublicEventHidesNotificationSettings(t *testing.T) {
	repo := &fakeEventsRepo{
		getFn: func(_ context.Context, id int64) (event.Event, error) {
			ev := testEvent()
			ev.ExtraEmailContent = "see you there"
			return ev, nil
		},
	}

	h := handlers.NewEventsHandler(repo, cache.New(time.Minute))
	r := setupRouter(http.MethodGet, "/events/:id", h.GetPublicEvent)

	req := httptest.NewRequest(http.MethodGet, "/events/7", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", w.Code, w.Body.String())
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}

	if _, ok := body["adminEmail"]; ok {
		t.Fatalf("public view leaks adminEmail")
	}
	if _, ok := body["extraEmailContent"]; ok {
		t.Fatalf("public view leaks extraEmailContent")
	}

	if body["name"] != "GoLab" {
		t.Fatalf("name = %v", body["name"])
	}

	if w.Header().Get("ETag") == "" {
		t.Fatalf("missing ETag header")
	}
}

func TestGetPublicEventServesFromCache(t *testing.T) {
	calls := 0

	repo := &fakeEventsRepo{
		getFn: func(_ context.Context, id int64) (event.Event, error) {
			calls++
			return testEvent(), nil
		},
	}

	h := handlers.NewEventsHandler(repo, cache.New(time.Minute))
	r := setupRouter(http.MethodGet, "/events/:id", h.GetPublicEvent)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/events/7", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
	}

	if calls != 1 {
		t.Fatalf("repo hit %d times, want 1", calls)
	}
}

func TestGetPublicEventNotFound(t *testing.T) {
	h := handlers.NewEventsHandler(&fakeEventsRepo{}, cache.New(time.Minute))
	r := setupRouter(http.MethodGet, "/events/:id", h.GetPublicEvent)

	req := httptest.NewRequest(http.MethodGet, "/events/99", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCreateEventMapsSchemaErrors(t *testing.T) {
	repo := &fakeEventsRepo{
		createFn: func(_ context.Context, _ event.CreateEventRequest) (event.Event, error) {
			return event.Event{}, event.ErrDuplicatePeopleField
		},
	}

	h := handlers.NewEventsHandler(repo, nil)
	r := setupRouter(http.MethodPost, "/admin/events", h.CreateEvent)

	body := `{
		"name": "GoLab",
		"date": "2026-10-01T09:00:00Z",
		"formFields": [
			{"fieldType": "number", "label": "Adults", "extra": {"useAsNumberOfPeople": true}},
			{"fieldType": "number", "label": "Kids", "extra": {"useAsNumberOfPeople": true}}
		]
	}`

	req := httptest.NewRequest(http.MethodPost, "/admin/events", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d (body: %s)", w.Code, w.Body.String())
	}
}

func TestCreateEventRejectsMismatchedExtrasAtBind(t *testing.T) {
	h := handlers.NewEventsHandler(&fakeEventsRepo{}, nil)
	r := setupRouter(http.MethodPost, "/admin/events", h.CreateEvent)

	// options on a text field fail during field decoding
	body := `{
		"name": "GoLab",
		"date": "2026-10-01T09:00:00Z",
		"formFields": [
			{"fieldType": "text", "label": "Name", "extra": {"options": ["a"]}}
		]
	}`

	req := httptest.NewRequest(http.MethodPost, "/admin/events", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d (body: %s)", w.Code, w.Body.String())
	}
}

func TestUpdateEventInvalidatesPublicCache(t *testing.T) {
	viewCache := cache.New(time.Minute)

	repo := &fakeEventsRepo{
		getFn: func(_ context.Context, id int64) (event.Event, error) {
			return testEvent(), nil
		},
		updateFn: func(_ context.Context, id int64, _ event.UpdateEventRequest) (event.Event, error) {
			ev := testEvent()
			ev.Name = "GoLab 2"
			return ev, nil
		},
	}

	h := handlers.NewEventsHandler(repo, viewCache)

	r := setupRouter(http.MethodGet, "/events/:id", h.GetPublicEvent)
	req := httptest.NewRequest(http.MethodGet, "/events/7", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("priming request failed: %d", w.Code)
	}

	ru := setupRouter(http.MethodPut, "/admin/events/:id", h.UpdateEvent)
	update := `{
		"name": "GoLab 2",
		"date": "2026-10-01T09:00:00Z",
		"formFields": [{"fieldType": "text", "label": "Name"}]
	}`
	reqU := httptest.NewRequest(http.MethodPut, "/admin/events/7", bytes.NewBufferString(update))
	reqU.Header.Set("Content-Type", "application/json")
	wu := httptest.NewRecorder()
	ru.ServeHTTP(wu, reqU)

	if wu.Code != http.StatusOK {
		t.Fatalf("update failed: %d (body: %s)", wu.Code, wu.Body.String())
	}

	if _, ok := viewCache.Get("event:view:v1:7"); ok {
		t.Fatalf("public view cache not invalidated")
	}
}
