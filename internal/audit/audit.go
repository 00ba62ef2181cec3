// Package audit is the vault's append-only ledger. Every branch of an
// authorization decision writes exactly one entry before the response
// goes out; entries are never mutated or deleted here.
package audit

import (
	"context"
	"log/slog"

	"agentvault/internal/domain"
	"agentvault/internal/platform/clock"
	"agentvault/internal/storage"
)

type Service struct {
	store  storage.AuditStore
	clock  clock.Clock
	logger *slog.Logger
}

func NewService(store storage.AuditStore, clk clock.Clock, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, clock: clk, logger: logger}
}

// Record appends one ledger entry. It never fails the caller: a decision
// that was made must still be answered even if the ledger write failed,
// so store errors are logged and swallowed. Meta must never carry secret
// material.
func (s *Service) Record(ctx context.Context, entry domain.AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.clock.Now()
	}
	if err := s.store.Append(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "audit append failed",
			"action", string(entry.Action),
			"status", string(entry.Status),
			"agent", entry.Agent,
			"error", err,
		)
	}
}

// List queries the ledger, newest first.
func (s *Service) List(ctx context.Context, q storage.AuditQuery) (storage.AuditPage, error) {
	return s.store.List(ctx, q)
}

// Entry builders keep call sites compact and the taxonomy closed.

func AgentEntry(agent, item string, action domain.AuditAction, status domain.AuditStatus) domain.AuditEntry {
	return domain.AuditEntry{
		ActorType: domain.ActorAgent,
		Agent:     agent,
		VaultItem: item,
		Action:    action,
		Status:    status,
	}
}

func HumanEntry(agent, item string, action domain.AuditAction, status domain.AuditStatus) domain.AuditEntry {
	return domain.AuditEntry{
		ActorType: domain.ActorHuman,
		Agent:     agent,
		VaultItem: item,
		Action:    action,
		Status:    status,
	}
}
