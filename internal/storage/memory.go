package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"agentvault/internal/domain"
)

// In-memory stores back development and tests. They intentionally favor
// clarity over performance.

type InMemoryItemStore struct {
	mu    sync.RWMutex
	items map[string]domain.VaultItem
}

func NewInMemoryItemStore() *InMemoryItemStore {
	return &InMemoryItemStore{items: make(map[string]domain.VaultItem)}
}

func (s *InMemoryItemStore) Create(_ context.Context, item domain.VaultItem) (domain.VaultItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.Agent == item.Agent && existing.Handle == item.Handle {
			return domain.VaultItem{}, ErrConflict
		}
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now
	s.items[item.ID] = item
	return item, nil
}

func (s *InMemoryItemStore) FindByID(_ context.Context, id string) (domain.VaultItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if item, ok := s.items[id]; ok {
		return item, nil
	}
	return domain.VaultItem{}, ErrNotFound
}

func (s *InMemoryItemStore) FindByHandle(_ context.Context, agent, handle string) (domain.VaultItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.Agent == agent && item.Handle == handle {
			return item, nil
		}
	}
	return domain.VaultItem{}, ErrNotFound
}

func (s *InMemoryItemStore) ListByAgent(_ context.Context, agent string) ([]domain.VaultItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.VaultItem
	for _, item := range s.items {
		if item.Agent == agent {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *InMemoryItemStore) Update(_ context.Context, item domain.VaultItem) (domain.VaultItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.items[item.ID]
	if !ok {
		return domain.VaultItem{}, ErrNotFound
	}
	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = time.Now()
	s.items[item.ID] = item
	return item, nil
}

func (s *InMemoryItemStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *InMemoryItemStore) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	item.LastUsedAt = at
	s.items[id] = item
	return nil
}

type InMemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]domain.AccessToken
}

func NewInMemoryTokenStore() *InMemoryTokenStore {
	return &InMemoryTokenStore{tokens: make(map[string]domain.AccessToken)}
}

func (s *InMemoryTokenStore) Create(_ context.Context, tok domain.AccessToken) (domain.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tokens {
		if existing.TokenPrefix == tok.TokenPrefix {
			return domain.AccessToken{}, ErrConflict
		}
	}
	if tok.ID == "" {
		tok.ID = uuid.NewString()
	}
	now := time.Now()
	tok.CreatedAt = now
	tok.UpdatedAt = now
	s.tokens[tok.ID] = tok
	return tok, nil
}

func (s *InMemoryTokenStore) FindByPrefix(_ context.Context, prefix string) (domain.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tok := range s.tokens {
		if tok.TokenPrefix == prefix {
			return tok, nil
		}
	}
	return domain.AccessToken{}, ErrNotFound
}

func (s *InMemoryTokenStore) ListByAgent(_ context.Context, agent string) ([]domain.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AccessToken
	for _, tok := range s.tokens {
		if tok.Agent == agent {
			out = append(out, tok)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *InMemoryTokenStore) SetDisabled(_ context.Context, id string, disabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return ErrNotFound
	}
	tok.Disabled = disabled
	tok.UpdatedAt = time.Now()
	s.tokens[id] = tok
	return nil
}

func (s *InMemoryTokenStore) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[id]
	if !ok {
		return ErrNotFound
	}
	tok.LastUsedAt = at
	s.tokens[id] = tok
	return nil
}

type InMemoryAuditStore struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
}

func NewInMemoryAuditStore() *InMemoryAuditStore {
	return &InMemoryAuditStore{}
}

func (s *InMemoryAuditStore) Append(_ context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryAuditStore) List(_ context.Context, q AuditQuery) (AuditPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []domain.AuditEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if q.Agent != "" && e.Agent != q.Agent {
			continue
		}
		if q.VaultItem != "" && e.VaultItem != q.VaultItem {
			continue
		}
		filtered = append(filtered, e)
	}
	// Newest first; equal timestamps resolve to the later append.
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.After(filtered[j].Timestamp)
	})

	page := q.Page
	if page < 1 {
		page = 1
	}
	perPage := q.PerPage
	if perPage < 1 {
		perPage = 100
	}
	start := (page - 1) * perPage
	if start > len(filtered) {
		start = len(filtered)
	}
	end := min(start+perPage, len(filtered))

	return AuditPage{
		Entries:    filtered[start:end],
		Page:       page,
		PerPage:    perPage,
		TotalItems: len(filtered),
	}, nil
}
