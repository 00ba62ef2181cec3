// Package admin implements the human-session surface of the vault:
// credential CRUD, rotation, token issuance and ledger queries. Every
// state change writes one audit entry with actorType human.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"agentvault/internal/audit"
	"agentvault/internal/crypto"
	"agentvault/internal/domain"
	"agentvault/internal/platform/clock"
	"agentvault/internal/storage"
	"agentvault/internal/token"
)

// HandleTakenError reports a (agent, handle) uniqueness conflict.
type HandleTakenError struct {
	Handle string
}

func (e *HandleTakenError) Error() string {
	return fmt.Sprintf("handle %q already exists for this agent", e.Handle)
}

// ValidationError is a malformed admin request.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

type Service struct {
	items  storage.ItemStore
	tokens storage.TokenStore
	audit  *audit.Service
	engine *crypto.Engine
	clock  clock.Clock
	logger *slog.Logger
}

func NewService(
	items storage.ItemStore,
	tokens storage.TokenStore,
	auditSvc *audit.Service,
	engine *crypto.Engine,
	clk clock.Clock,
	logger *slog.Logger,
) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{items: items, tokens: tokens, audit: auditSvc, engine: engine, clock: clk, logger: logger}
}

// Configured reports whether the vault has a usable master key.
func (s *Service) Configured() bool {
	return s.engine.Configured()
}

// CreateItemParams carries the admin-supplied fields for a new
// credential. Handle may be empty, in which case one is generated from
// the service or type name.
type CreateItemParams struct {
	Agent        string
	Handle       string
	Type         string
	Service      string
	Username     string
	Secret       string
	ExposureMode string
	Notes        string
	Tags         []string
}

// CreateItem encrypts the secret under the owning agent's key and
// persists the item.
func (s *Service) CreateItem(ctx context.Context, p CreateItemParams) (domain.VaultItem, error) {
	if !s.Configured() {
		return domain.VaultItem{}, crypto.ErrNotConfigured
	}

	itemType := domain.CredentialType(strings.TrimSpace(p.Type))
	if !itemType.Valid() {
		return domain.VaultItem{}, &ValidationError{Msg: "invalid type"}
	}
	mode := domain.ExposureMode(strings.TrimSpace(p.ExposureMode))
	if mode == "" {
		mode = domain.ExposureInjectOnly
	}
	if !mode.Valid() {
		return domain.VaultItem{}, &ValidationError{Msg: "invalid exposureMode"}
	}
	if strings.TrimSpace(p.Secret) == "" {
		return domain.VaultItem{}, &ValidationError{Msg: "missing secret value"}
	}

	handle := strings.TrimSpace(p.Handle)
	if handle != "" {
		if err := ValidateHandle(handle); err != nil {
			return domain.VaultItem{}, &ValidationError{Msg: err.Error()}
		}
		// Checked up front for a cleaner error than the store constraint.
		if _, err := s.items.FindByHandle(ctx, p.Agent, handle); err == nil {
			return domain.VaultItem{}, &HandleTakenError{Handle: handle}
		} else if !errors.Is(err, storage.ErrNotFound) {
			return domain.VaultItem{}, fmt.Errorf("handle lookup: %w", err)
		}
	} else {
		var err error
		handle, err = s.generateUniqueHandle(ctx, p.Agent, string(itemType), p.Service)
		if err != nil {
			return domain.VaultItem{}, err
		}
	}

	enc, err := s.engine.EncryptSecret(p.Secret, crypto.SecretContext{
		AgentID: p.Agent,
		Handle:  handle,
		Type:    string(itemType),
	})
	if err != nil {
		return domain.VaultItem{}, err
	}

	item := domain.VaultItem{
		Agent:            p.Agent,
		Handle:           handle,
		Type:             itemType,
		Service:          strings.TrimSpace(p.Service),
		Username:         strings.TrimSpace(p.Username),
		SecretCiphertext: enc.Ciphertext,
		SecretIV:         enc.IV,
		SecretTag:        enc.Tag,
		KeyVersion:       enc.KeyVersion,
		ExposureMode:     mode,
		Notes:            strings.TrimSpace(p.Notes),
		Tags:             p.Tags,
		LastRotatedAt:    s.clock.Now(),
	}

	created, err := s.items.Create(ctx, item)
	if errors.Is(err, storage.ErrConflict) {
		return domain.VaultItem{}, &HandleTakenError{Handle: handle}
	}
	if err != nil {
		return domain.VaultItem{}, fmt.Errorf("create item: %w", err)
	}

	entry := audit.HumanEntry(created.Agent, created.ID, domain.ActionCreate, domain.StatusOK)
	entry.Meta = map[string]string{"handle": created.Handle, "type": string(created.Type), "service": created.Service}
	s.audit.Record(ctx, entry)

	return created, nil
}

// ListItems returns an agent's items. Callers must strip the encrypted
// payload before serializing; see transport.
func (s *Service) ListItems(ctx context.Context, agent string) ([]domain.VaultItem, error) {
	if !s.Configured() {
		return nil, crypto.ErrNotConfigured
	}
	return s.items.ListByAgent(ctx, agent)
}

// UpdateItemParams patches mutable metadata. Nil pointers leave fields
// untouched.
type UpdateItemParams struct {
	Service      *string
	Username     *string
	Notes        *string
	Tags         []string
	ExposureMode *string
	Disabled     *bool
}

// UpdateItem applies a metadata patch. A disabled-state flip is audited
// as disable/enable rather than update.
func (s *Service) UpdateItem(ctx context.Context, itemID string, p UpdateItemParams) (domain.VaultItem, error) {
	if !s.Configured() {
		return domain.VaultItem{}, crypto.ErrNotConfigured
	}

	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		return domain.VaultItem{}, err
	}
	wasDisabled := item.Disabled

	if p.Service != nil {
		item.Service = strings.TrimSpace(*p.Service)
	}
	if p.Username != nil {
		item.Username = strings.TrimSpace(*p.Username)
	}
	if p.Notes != nil {
		item.Notes = strings.TrimSpace(*p.Notes)
	}
	if p.Tags != nil {
		item.Tags = p.Tags
	}
	if p.ExposureMode != nil {
		mode := domain.ExposureMode(strings.TrimSpace(*p.ExposureMode))
		if !mode.Valid() {
			return domain.VaultItem{}, &ValidationError{Msg: "invalid exposureMode"}
		}
		item.ExposureMode = mode
	}
	if p.Disabled != nil {
		item.Disabled = *p.Disabled
	}

	updated, err := s.items.Update(ctx, item)
	if err != nil {
		return domain.VaultItem{}, fmt.Errorf("update item: %w", err)
	}

	action := domain.ActionUpdate
	if wasDisabled != updated.Disabled {
		if updated.Disabled {
			action = domain.ActionDisable
		} else {
			action = domain.ActionEnable
		}
	}
	entry := audit.HumanEntry(updated.Agent, updated.ID, action, domain.StatusOK)
	entry.Meta = map[string]string{"handle": updated.Handle}
	s.audit.Record(ctx, entry)

	return updated, nil
}

// RotateItem re-encrypts a new secret value under the item's current
// binding context and stamps lastRotatedAt. Username may be updated in
// the same call.
func (s *Service) RotateItem(ctx context.Context, itemID, secret string, username *string) (domain.VaultItem, error) {
	if !s.Configured() {
		return domain.VaultItem{}, crypto.ErrNotConfigured
	}
	if strings.TrimSpace(secret) == "" {
		return domain.VaultItem{}, &ValidationError{Msg: "missing secret value"}
	}

	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		return domain.VaultItem{}, err
	}

	enc, err := s.engine.EncryptSecret(secret, crypto.SecretContext{
		AgentID: item.Agent,
		Handle:  item.Handle,
		Type:    string(item.Type),
	})
	if err != nil {
		return domain.VaultItem{}, err
	}

	item.SecretCiphertext = enc.Ciphertext
	item.SecretIV = enc.IV
	item.SecretTag = enc.Tag
	item.KeyVersion = enc.KeyVersion
	item.LastRotatedAt = s.clock.Now()
	if username != nil {
		item.Username = strings.TrimSpace(*username)
	}

	updated, err := s.items.Update(ctx, item)
	if err != nil {
		return domain.VaultItem{}, fmt.Errorf("rotate item: %w", err)
	}

	entry := audit.HumanEntry(updated.Agent, updated.ID, domain.ActionRotate, domain.StatusOK)
	entry.Meta = map[string]string{"handle": updated.Handle}
	s.audit.Record(ctx, entry)

	return updated, nil
}

// DeleteItem hard-deletes a credential and records the deletion.
func (s *Service) DeleteItem(ctx context.Context, itemID string) error {
	if !s.Configured() {
		return crypto.ErrNotConfigured
	}

	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		return err
	}
	if err := s.items.Delete(ctx, itemID); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}

	entry := audit.HumanEntry(item.Agent, item.ID, domain.ActionDelete, domain.StatusOK)
	entry.Meta = map[string]string{"handle": item.Handle}
	s.audit.Record(ctx, entry)
	return nil
}

// IssuedToken carries the one-time plaintext token next to its stored
// record.
type IssuedToken struct {
	Token  string
	Record domain.AccessToken
}

// CreateToken issues a new bearer token for an agent. The plaintext is
// returned exactly once and never stored.
func (s *Service) CreateToken(ctx context.Context, agent, label string) (IssuedToken, error) {
	if !s.Configured() {
		return IssuedToken{}, crypto.ErrNotConfigured
	}

	generated, err := token.Generate()
	if err != nil {
		return IssuedToken{}, err
	}
	hash, err := token.Hash(generated.Token)
	if err != nil {
		return IssuedToken{}, err
	}

	record, err := s.tokens.Create(ctx, domain.AccessToken{
		Agent:       agent,
		TokenPrefix: generated.TokenPrefix,
		TokenHash:   hash,
		Label:       strings.TrimSpace(label),
	})
	if err != nil {
		return IssuedToken{}, fmt.Errorf("create token: %w", err)
	}

	return IssuedToken{Token: generated.Token, Record: record}, nil
}

// ListTokens returns an agent's tokens. Callers must strip TokenHash
// before serializing; see transport.
func (s *Service) ListTokens(ctx context.Context, agent string) ([]domain.AccessToken, error) {
	if !s.Configured() {
		return nil, crypto.ErrNotConfigured
	}
	return s.tokens.ListByAgent(ctx, agent)
}

// DisableToken revokes a bearer token. The resolve path honors it after
// its token cache entry expires, at most 30 seconds later.
func (s *Service) DisableToken(ctx context.Context, tokenID string) error {
	if !s.Configured() {
		return crypto.ErrNotConfigured
	}
	return s.tokens.SetDisabled(ctx, tokenID, true)
}

// QueryAudit pages through the ledger, optionally filtered by agent
// and/or item.
func (s *Service) QueryAudit(ctx context.Context, q storage.AuditQuery) (storage.AuditPage, error) {
	if !s.Configured() {
		return storage.AuditPage{}, crypto.ErrNotConfigured
	}
	return s.audit.List(ctx, q)
}
