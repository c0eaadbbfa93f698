package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/zonia3000/regifair/internal/domain/registration"
	"github.com/zonia3000/regifair/internal/repo/memory"
)

func maxP(n int) *int {
	return &n
}

func TestCreateCountsDownSeats(t *testing.T) {
	repo := memory.NewRegistrationsRepo()
	ctx := context.Background()

	_, out, err := repo.Create(ctx, registration.CreateRequest{
		EventID:         1,
		MaxParticipants: maxP(3),
		NumberOfPeople:  1,
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Remaining == nil || *out.Remaining != 2 {
		t.Fatalf("remaining = %v, want 2", out.Remaining)
	}

	if out.WaitingList || out.Closed {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestCreateUnlimitedEventHasNilRemaining(t *testing.T) {
	repo := memory.NewRegistrationsRepo()

	_, out, err := repo.Create(context.Background(), registration.CreateRequest{
		EventID:        1,
		NumberOfPeople: 1,
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Remaining != nil {
		t.Fatalf("remaining = %v, want nil", *out.Remaining)
	}
}

func TestCreateClosedWhenFull(t *testing.T) {
	repo := memory.NewRegistrationsRepo()
	ctx := context.Background()

	if _, _, err := createOne(repo, 1, maxP(1)); err != nil {
		t.Fatal(err)
	}

	_, out, err := repo.Create(ctx, registration.CreateRequest{
		EventID:         1,
		MaxParticipants: maxP(1),
		NumberOfPeople:  1,
	})

	if err != nil {
		t.Fatalf("closed must not be an error, got %v", err)
	}

	if !out.Closed {
		t.Fatalf("expected closed outcome, got %+v", out)
	}
}

func TestCreateWaitingListWhenFull(t *testing.T) {
	repo := memory.NewRegistrationsRepo()
	ctx := context.Background()

	if _, _, err := createOne(repo, 1, maxP(1)); err != nil {
		t.Fatal(err)
	}

	reg, out, err := repo.Create(ctx, registration.CreateRequest{
		EventID:         1,
		MaxParticipants: maxP(1),
		NumberOfPeople:  1,
		WaitingList:     true,
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !out.WaitingList || out.Closed {
		t.Fatalf("expected waiting list outcome, got %+v", out)
	}

	if out.Remaining == nil || *out.Remaining != 0 {
		t.Fatalf("remaining = %v, want 0", out.Remaining)
	}

	if !reg.WaitingList {
		t.Fatalf("stored registration must be flagged as waiting")
	}
}

// waiting registrations never consume seats: a full event with a waiting
// queue still reports zero free seats, and deleting a waiting entry does
// not free one.
func TestWaitingListDoesNotConsumeSeats(t *testing.T) {
	repo := memory.NewRegistrationsRepo()
	ctx := context.Background()

	if _, _, err := createOne(repo, 1, maxP(1)); err != nil {
		t.Fatal(err)
	}

	waiting, _, err := repo.Create(ctx, registration.CreateRequest{
		EventID:         1,
		MaxParticipants: maxP(1),
		NumberOfPeople:  1,
		WaitingList:     true,
	})

	if err != nil {
		t.Fatal(err)
	}

	out, err := repo.Delete(ctx, waiting.ID, 1, maxP(1))

	if err != nil {
		t.Fatal(err)
	}

	if out.Remaining == nil || *out.Remaining != 0 {
		t.Fatalf("deleting a waiting entry freed a seat: %+v", out)
	}
}

func TestDeleteFreesSeat(t *testing.T) {
	repo := memory.NewRegistrationsRepo()
	ctx := context.Background()

	reg, _, err := createOne(repo, 1, maxP(1))

	if err != nil {
		t.Fatal(err)
	}

	out, err := repo.Delete(ctx, reg.ID, 1, maxP(1))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out.Remaining == nil || *out.Remaining != 1 {
		t.Fatalf("remaining = %v, want 1", out.Remaining)
	}
}

func TestDeleteUnknownRegistration(t *testing.T) {
	repo := memory.NewRegistrationsRepo()

	_, err := repo.Delete(context.Background(), 99, 1, nil)

	if !errors.Is(err, registration.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateReplacesValuesWithoutDoubling(t *testing.T) {
	repo := memory.NewRegistrationsRepo()
	ctx := context.Background()

	reg, _, err := repo.Create(ctx, registration.CreateRequest{
		EventID:        1,
		Values:         map[int64]string{1: "Rita", 2: "rita@example.org"},
		NumberOfPeople: 1,
	})

	if err != nil {
		t.Fatal(err)
	}

	_, err = repo.Update(ctx, registration.UpdateRequest{
		RegistrationID: reg.ID,
		EventID:        1,
		Values:         map[int64]string{1: "Rita B.", 2: "rita@example.org"},
		NumberOfPeople: 1,
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := repo.ValueCount(reg.ID); n != 2 {
		t.Fatalf("value rows = %d, want 2", n)
	}
}

func TestUpdateWrongEvent(t *testing.T) {
	repo := memory.NewRegistrationsRepo()
	ctx := context.Background()

	reg, _, err := createOne(repo, 1, nil)

	if err != nil {
		t.Fatal(err)
	}

	_, err = repo.Update(ctx, registration.UpdateRequest{
		RegistrationID: reg.ID,
		EventID:        2,
		NumberOfPeople: 1,
	})

	if !errors.Is(err, registration.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetByToken(t *testing.T) {
	repo := memory.NewRegistrationsRepo()
	ctx := context.Background()

	token := "b4b2da93-fd10-402b-9d36-465fdcbdb3b6"

	_, _, err := repo.Create(ctx, registration.CreateRequest{
		EventID:        1,
		Token:          &token,
		Values:         map[int64]string{2: "rita@example.org", 1: "Rita"},
		NumberOfPeople: 1,
	})

	if err != nil {
		t.Fatal(err)
	}

	reg, values, err := repo.GetByToken(ctx, token)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if reg.EventID != 1 {
		t.Fatalf("eventID = %d, want 1", reg.EventID)
	}

	if len(values) != 2 || values[0] != "Rita" || values[1] != "rita@example.org" {
		t.Fatalf("values = %v", values)
	}

	if _, _, err := repo.GetByToken(ctx, "0e7e94f1-0000-0000-0000-000000000000"); !errors.Is(err, registration.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// Concurrent submissions for the last seat: exactly one wins, everyone
// else is closed out.
func TestConcurrentCreateNeverOversells(t *testing.T) {
	repo := memory.NewRegistrationsRepo()
	ctx := context.Background()

	const attempts = 50

	var wg sync.WaitGroup
	admitted := make(chan registration.Outcome, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, out, err := repo.Create(ctx, registration.CreateRequest{
				EventID:         1,
				MaxParticipants: maxP(1),
				NumberOfPeople:  1,
			})

			if err == nil && !out.Closed {
				admitted <- out
			}
		}()
	}

	wg.Wait()
	close(admitted)

	count := 0
	for range admitted {
		count++
	}

	if count != 1 {
		t.Fatalf("admitted %d registrations for 1 seat", count)
	}

	if n := repo.CountForEvent(1); n != 1 {
		t.Fatalf("stored %d registrations, want 1", n)
	}
}

func createOne(repo *memory.RegistrationsRepo, eventID int64, max *int) (registration.Registration, registration.Outcome, error) {
	return repo.Create(context.Background(), registration.CreateRequest{
		EventID:         eventID,
		MaxParticipants: max,
		NumberOfPeople:  1,
	})
}
