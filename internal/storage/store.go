package storage

import (
	"context"
	"time"

	"agentvault/internal/domain"
)

// Stores are interface-driven so the resolve protocol and handlers stay
// testable and the in-memory and postgres implementations are
// interchangeable without rewiring business code.

// ItemStore persists vault items. (Agent, Handle) is unique.
type ItemStore interface {
	Create(ctx context.Context, item domain.VaultItem) (domain.VaultItem, error)
	FindByID(ctx context.Context, id string) (domain.VaultItem, error)
	FindByHandle(ctx context.Context, agent, handle string) (domain.VaultItem, error)
	ListByAgent(ctx context.Context, agent string) ([]domain.VaultItem, error)
	Update(ctx context.Context, item domain.VaultItem) (domain.VaultItem, error)
	Delete(ctx context.Context, id string) error
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

// TokenStore persists access tokens. TokenPrefix is unique.
type TokenStore interface {
	Create(ctx context.Context, tok domain.AccessToken) (domain.AccessToken, error)
	FindByPrefix(ctx context.Context, prefix string) (domain.AccessToken, error)
	ListByAgent(ctx context.Context, agent string) ([]domain.AccessToken, error)
	SetDisabled(ctx context.Context, id string, disabled bool) error
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

// AuditQuery filters the ledger. Zero values mean "no filter"; Page is
// 1-based.
type AuditQuery struct {
	Agent     string
	VaultItem string
	Page      int
	PerPage   int
}

// AuditPage is one page of ledger entries, newest first.
type AuditPage struct {
	Entries    []domain.AuditEntry
	Page       int
	PerPage    int
	TotalItems int
}

// AuditStore is append-only; nothing in this subsystem mutates or deletes
// ledger rows.
type AuditStore interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
	List(ctx context.Context, q AuditQuery) (AuditPage, error)
}
