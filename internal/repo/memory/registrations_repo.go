package memory

import (
	"context"
	"sync"
	"time"

	"github.com/zonia3000/regifair/internal/domain/registration"
)

// RegistrationsRepo is a mutex-guarded allocator with the same capacity
// semantics as the postgres implementation. The lock plays the role of the
// event row lock: capacity read and insert happen as one atomic unit.
type RegistrationsRepo struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*entry
}

type entry struct {
	reg    registration.Registration
	values map[int64]string
}

func NewRegistrationsRepo() *RegistrationsRepo {
	return &RegistrationsRepo{
		items: make(map[int64]*entry),
	}
}

func (r *RegistrationsRepo) occupiedSeats(eventID int64) int {
	count := 0

	for _, e := range r.items {
		if e.reg.EventID == eventID && !e.reg.WaitingList {
			count++
		}
	}

	return count
}

func (r *RegistrationsRepo) Create(ctx context.Context, req registration.CreateRequest) (reg registration.Registration, out registration.Outcome, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var remaining *int
	waiting := false

	if req.MaxParticipants != nil {
		left := *req.MaxParticipants - r.occupiedSeats(req.EventID)

		if left <= 0 {
			if !req.WaitingList {
				out.Closed = true
				return
			}
			waiting = true
			left = 0
		} else {
			left--
		}

		remaining = &left
	}

	r.nextID++
	now := time.Now()

	reg = registration.Registration{
		ID:             r.nextID,
		EventID:        req.EventID,
		Token:          req.Token,
		InsertedAt:     now,
		UpdatedAt:      now,
		NumberOfPeople: req.NumberOfPeople,
		WaitingList:    waiting,
	}

	values := make(map[int64]string, len(req.Values))
	for k, v := range req.Values {
		values[k] = v
	}

	r.items[reg.ID] = &entry{reg: reg, values: values}

	out.Remaining = remaining
	out.WaitingList = waiting
	return
}

func (r *RegistrationsRepo) Update(ctx context.Context, req registration.UpdateRequest) (out registration.Outcome, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.items[req.RegistrationID]

	if !ok || e.reg.EventID != req.EventID {
		err = registration.ErrNotFound
		return
	}

	e.reg.UpdatedAt = time.Now()
	e.reg.NumberOfPeople = req.NumberOfPeople

	e.values = make(map[int64]string, len(req.Values))
	for k, v := range req.Values {
		e.values[k] = v
	}

	if req.MaxParticipants != nil {
		left := *req.MaxParticipants - r.occupiedSeats(req.EventID)
		out.Remaining = &left
	}

	out.WaitingList = e.reg.WaitingList
	return
}

func (r *RegistrationsRepo) Delete(ctx context.Context, registrationID, eventID int64, maxParticipants *int) (out registration.Outcome, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.items[registrationID]

	if !ok || e.reg.EventID != eventID {
		err = registration.ErrNotFound
		return
	}

	delete(r.items, registrationID)

	if maxParticipants != nil {
		left := *maxParticipants - r.occupiedSeats(eventID)
		out.Remaining = &left
	}

	return
}

func (r *RegistrationsRepo) GetByToken(ctx context.Context, token string) (reg registration.Registration, values []string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.items {
		if e.reg.Token != nil && *e.reg.Token == token {
			reg = e.reg

			fieldIDs := sortedKeys(e.values)
			values = make([]string, 0, len(fieldIDs))
			for _, id := range fieldIDs {
				values = append(values, e.values[id])
			}

			return
		}
	}

	err = registration.ErrNotFound
	return
}

// ValueCount reports the stored value rows of one registration, used by
// tests to assert the all-or-nothing replacement.
func (r *RegistrationsRepo) ValueCount(registrationID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.items[registrationID]

	if !ok {
		return 0
	}

	return len(e.values)
}

func (r *RegistrationsRepo) CountForEvent(eventID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0

	for _, e := range r.items {
		if e.reg.EventID == eventID {
			count++
		}
	}

	return count
}

func sortedKeys(m map[int64]string) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}

	return keys
}
