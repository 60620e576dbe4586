package commission

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

type mockPractitionerRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]Practitioner
}

func newMockPractitionerRepo() *mockPractitionerRepo {
	return &mockPractitionerRepo{store: make(map[uuid.UUID]Practitioner)}
}

func (m *mockPractitionerRepo) Create(_ context.Context, p *Practitioner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[p.ID] = *p
	return nil
}

func (m *mockPractitionerRepo) GetByID(_ context.Context, id uuid.UUID) (*Practitioner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "practitioner not found")
	}
	return &p, nil
}

func (m *mockPractitionerRepo) List(_ context.Context, activeOnly bool, limit, offset int) ([]*Practitioner, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Practitioner
	for _, p := range m.store {
		if activeOnly && !p.Active {
			continue
		}
		out := p
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].LastName < all[j].LastName })
	return window(all, limit, offset), len(all), nil
}

type mockCommissionRepo struct {
	mu    sync.Mutex
	store map[uuid.UUID]Commission
}

func newMockCommissionRepo() *mockCommissionRepo {
	return &mockCommissionRepo{store: make(map[uuid.UUID]Commission)}
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (m *mockCommissionRepo) Create(_ context.Context, c *Commission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.store {
		k := existing.Key()
		if k.PractitionerID == c.PractitionerID && k.Period == c.Period &&
			sameID(k.InvoiceID, c.InvoiceID) && sameID(k.ServiceID, c.ServiceID) {
			return apperr.New(apperr.Persistence, "duplicate commission")
		}
	}
	m.store[c.ID] = *c
	return nil
}

func (m *mockCommissionRepo) GetByID(_ context.Context, id uuid.UUID) (*Commission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "commission not found")
	}
	return &c, nil
}

func (m *mockCommissionRepo) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Commission, error) {
	return m.GetByID(ctx, id)
}

func (m *mockCommissionRepo) FindByKey(_ context.Context, k Key) (*Commission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.store {
		if c.PractitionerID == k.PractitionerID && c.Period == k.Period &&
			sameID(c.InvoiceID, k.InvoiceID) && sameID(c.ServiceID, k.ServiceID) {
			out := c
			return &out, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "commission not found")
}

func (m *mockCommissionRepo) Update(_ context.Context, c *Commission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[c.ID]; !ok {
		return apperr.New(apperr.NotFound, "commission not found")
	}
	m.store[c.ID] = *c
	return nil
}

func (m *mockCommissionRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Commission, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Commission
	for _, c := range m.store {
		if f.Period != "" && c.Period != f.Period {
			continue
		}
		if f.PractitionerID != nil && c.PractitionerID != *f.PractitionerID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out := c
		all = append(all, &out)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID.String() < all[j].ID.String() })
	return window(all, limit, offset), len(all), nil
}

func window[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
