package cashier

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

type mockSessionRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]Session
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{store: make(map[uuid.UUID]Session)}
}

func (m *mockSessionRepo) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.store {
		if existing.ActorID == s.ActorID && existing.Status == StatusOpen {
			return apperr.New(apperr.AlreadyOpen, "a cash session is already open for this actor")
		}
	}
	m.store[s.ID] = *s
	return nil
}

func (m *mockSessionRepo) GetByID(_ context.Context, id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "cash session not found")
	}
	return &s, nil
}

func (m *mockSessionRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Session, error) {
	return m.GetByID(ctx, id)
}

func (m *mockSessionRepo) GetOpenByActor(_ context.Context, actorID uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.store {
		if s.ActorID == actorID && s.Status == StatusOpen {
			out := s
			return &out, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "open cash session not found")
}

func (m *mockSessionRepo) Update(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[s.ID]; !ok {
		return apperr.New(apperr.NotFound, "cash session not found")
	}
	m.store[s.ID] = *s
	return nil
}

func (m *mockSessionRepo) List(_ context.Context, f SessionFilter, limit, offset int) ([]*Session, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Session
	for _, s := range m.store {
		if f.ActorID != nil && s.ActorID != *f.ActorID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		out := s
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].OpenedAt.After(all[j].OpenedAt) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}
