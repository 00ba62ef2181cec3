// Package resolve implements the vault's externally consumed contract:
// authenticate an agent bearer token, authorize access to a handle,
// decrypt or read the requested field, touch usage timestamps and write
// the audit trail. The reveal path for humans lives here too because it
// shares the lookup/decrypt/audit pipeline under a stricter exposure
// policy.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"agentvault/internal/audit"
	"agentvault/internal/crypto"
	"agentvault/internal/domain"
	"agentvault/internal/platform/clock"
	"agentvault/internal/platform/metrics"
	"agentvault/internal/ratelimit"
	"agentvault/internal/storage"
	"agentvault/internal/token"
)

const (
	// MaxBatchSize bounds one resolve-batch call.
	MaxBatchSize = 50

	defaultTokenCacheTTL = 30 * time.Second

	// FieldSecret and FieldUsername are the two readable item fields.
	FieldSecret   = "secret"
	FieldUsername = "username"
)

// ErrNotRevealable rejects reveal on inject-only items regardless of who
// asks. Resolve is unaffected by exposure mode.
var ErrNotRevealable = errors.New("credential is inject-only and cannot be revealed")

// Caller is an authenticated agent identity derived from a bearer token.
type Caller struct {
	AgentID     string
	TokenID     string
	TokenPrefix string
}

// Request is one single-resolve call.
type Request struct {
	Handle     string
	Field      string
	SessionKey string
	ToolName   string
}

// BatchItem is one entry of a resolve-batch call; Key correlates the
// response value with the request.
type BatchItem struct {
	Key    string
	Handle string
	Field  string
}

// BatchRequest is a resolve-batch call.
type BatchRequest struct {
	Requests   []BatchItem
	SessionKey string
	ToolName   string
}

// RevealResult is the human-facing reveal response.
type RevealResult struct {
	Value    string
	Username string
}

// Service orchestrates the resolve protocol. All collaborators are
// injected; shared mutable state is confined to the token cache and the
// limiter's counter store.
type Service struct {
	items   storage.ItemStore
	tokens  storage.TokenStore
	audit   *audit.Service
	engine  *crypto.Engine
	limiter *ratelimit.Limiter
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
	cache   *tokenCache

	singleLimit int
	batchLimit  int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLimits overrides the per-window request limits for single and
// batch resolve.
func WithLimits(single, batch int) Option {
	return func(s *Service) {
		s.singleLimit = single
		s.batchLimit = batch
	}
}

// WithTokenCacheTTL overrides the 30s positive token cache TTL.
func WithTokenCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.cache = newTokenCache(s.clock, ttl) }
}

func New(
	items storage.ItemStore,
	tokens storage.TokenStore,
	auditSvc *audit.Service,
	engine *crypto.Engine,
	limiter *ratelimit.Limiter,
	clk clock.Clock,
	opts ...Option,
) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	s := &Service{
		items:       items,
		tokens:      tokens,
		audit:       auditSvc,
		engine:      engine,
		limiter:     limiter,
		clock:       clk,
		logger:      slog.Default(),
		singleLimit: 300,
		batchLimit:  600,
	}
	s.cache = newTokenCache(clk, defaultTokenCacheTTL)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configured reports whether the vault has a usable master key. Every
// operation fails closed when it does not.
func (s *Service) Configured() bool {
	return s.engine.Configured()
}

// NormalizeField maps a caller-supplied field name onto the two readable
// fields. Anything unrecognized reads the secret, matching the resolve
// contract's "secret is the default".
func NormalizeField(field string) string {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "username", "user":
		return FieldUsername
	default:
		return FieldSecret
	}
}

// Authenticate turns a presented bearer token into a Caller. Every
// failure collapses into ErrUnauthorized: no audit entry is possible
// here because no agent identity has been established yet.
func (s *Service) Authenticate(ctx context.Context, bearer string) (Caller, error) {
	prefix := token.ParsePrefix(bearer)
	if prefix == "" {
		s.metrics.ObserveAuthFailure()
		return Caller{}, ErrUnauthorized
	}

	record, ok := s.cache.get(prefix)
	if !ok {
		var err error
		record, err = s.tokens.FindByPrefix(ctx, prefix)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				s.logger.ErrorContext(ctx, "token lookup failed", "error", err)
			}
			s.metrics.ObserveAuthFailure()
			return Caller{}, ErrUnauthorized
		}
		s.cache.put(record)
	}

	if record.Disabled || !token.Verify(bearer, record.TokenHash) {
		s.metrics.ObserveAuthFailure()
		return Caller{}, ErrUnauthorized
	}

	return Caller{AgentID: record.Agent, TokenID: record.ID, TokenPrefix: record.TokenPrefix}, nil
}

// Resolve executes the single-handle protocol for an agent caller.
func (s *Service) Resolve(ctx context.Context, bearer string, req Request) (string, error) {
	if !s.Configured() {
		return "", crypto.ErrNotConfigured
	}

	caller, err := s.Authenticate(ctx, bearer)
	if err != nil {
		return "", err
	}

	if rl := s.limiter.Check(ctx, caller.TokenPrefix, s.singleLimit); !rl.Allowed {
		s.auditRateLimited(ctx, caller, req.SessionKey, req.ToolName)
		return "", &RateLimitedError{RetryAfter: rl.RetryAfter}
	}

	handle := strings.TrimSpace(req.Handle)
	if handle == "" {
		return "", &ValidationError{Msg: "handle required"}
	}
	field := NormalizeField(req.Field)

	item, err := s.items.FindByHandle(ctx, caller.AgentID, handle)
	if errors.Is(err, storage.ErrNotFound) {
		s.auditResolve(ctx, caller, domain.VaultItem{}, req.SessionKey, req.ToolName,
			domain.StatusDeny, "not_found", map[string]string{"handle": handle, "field": field})
		return "", &NotFoundError{Handle: handle}
	}
	if err != nil {
		return "", fmt.Errorf("item lookup: %w", err)
	}
	if item.Disabled {
		s.auditResolve(ctx, caller, item, req.SessionKey, req.ToolName,
			domain.StatusDeny, "disabled", map[string]string{"handle": handle, "field": field})
		return "", &DisabledError{Handle: handle}
	}

	value, err := s.readField(item, field)
	if err != nil {
		s.auditResolve(ctx, caller, item, req.SessionKey, req.ToolName,
			domain.StatusError, "decrypt_failed", map[string]string{"handle": handle, "field": field})
		return "", err
	}

	s.touch(ctx, caller.TokenID, item.ID)

	s.auditResolve(ctx, caller, item, req.SessionKey, req.ToolName,
		domain.StatusOK, "", map[string]string{"handle": handle, "field": field})
	return value, nil
}

// ResolveBatch processes up to MaxBatchSize entries strictly in order
// against one snapshot of the agent's items, so audit ordering matches
// request ordering. The first hard failure aborts the whole call after
// that failure has been audited; per-entry successes already audited
// stay in the ledger.
func (s *Service) ResolveBatch(ctx context.Context, bearer string, req BatchRequest) (map[string]string, error) {
	if !s.Configured() {
		return nil, crypto.ErrNotConfigured
	}

	caller, err := s.Authenticate(ctx, bearer)
	if err != nil {
		return nil, err
	}

	if rl := s.limiter.Check(ctx, caller.TokenPrefix, s.batchLimit); !rl.Allowed {
		s.auditRateLimited(ctx, caller, req.SessionKey, req.ToolName)
		return nil, &RateLimitedError{RetryAfter: rl.RetryAfter}
	}

	if len(req.Requests) == 0 {
		return nil, &ValidationError{Msg: "requests required"}
	}
	if len(req.Requests) > MaxBatchSize {
		return nil, &ValidationError{Msg: fmt.Sprintf("too many requests (max %d)", MaxBatchSize)}
	}

	snapshot, err := s.items.ListByAgent(ctx, caller.AgentID)
	if err != nil {
		return nil, fmt.Errorf("item snapshot: %w", err)
	}
	byHandle := make(map[string]domain.VaultItem, len(snapshot))
	for _, item := range snapshot {
		byHandle[item.Handle] = item
	}

	values := make(map[string]string, len(req.Requests))
	touched := make([]string, 0, len(req.Requests))
	seen := make(map[string]bool, len(req.Requests))

	for _, r := range req.Requests {
		key := strings.TrimSpace(r.Key)
		handle := strings.TrimSpace(r.Handle)
		if key == "" || handle == "" {
			return nil, &ValidationError{Msg: "each request requires key + handle"}
		}
		field := NormalizeField(r.Field)
		meta := map[string]string{"handle": handle, "field": field, "key": key}

		item, ok := byHandle[handle]
		if !ok {
			s.auditResolve(ctx, caller, domain.VaultItem{}, req.SessionKey, req.ToolName,
				domain.StatusDeny, "not_found", meta)
			return nil, &NotFoundError{Handle: handle}
		}
		if item.Disabled {
			s.auditResolve(ctx, caller, item, req.SessionKey, req.ToolName,
				domain.StatusDeny, "disabled", meta)
			return nil, &DisabledError{Handle: handle}
		}

		value, err := s.readField(item, field)
		if err != nil {
			s.auditResolve(ctx, caller, item, req.SessionKey, req.ToolName,
				domain.StatusError, "decrypt_failed", meta)
			return nil, err
		}

		values[key] = value
		if !seen[item.ID] {
			seen[item.ID] = true
			touched = append(touched, item.ID)
		}
		s.auditResolve(ctx, caller, item, req.SessionKey, req.ToolName,
			domain.StatusOK, "", meta)
	}

	s.touch(ctx, caller.TokenID, touched...)
	return values, nil
}

// Reveal is the human-admin path. Unlike resolve it is gated by the
// item's exposure mode: "usable by an authorized agent in a tool call"
// is a weaker guarantee than "displayable to a human".
func (s *Service) Reveal(ctx context.Context, itemID string) (RevealResult, error) {
	if !s.Configured() {
		return RevealResult{}, crypto.ErrNotConfigured
	}

	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		return RevealResult{}, err
	}

	if item.ExposureMode != domain.ExposureRevealable {
		entry := audit.HumanEntry(item.Agent, item.ID, domain.ActionReveal, domain.StatusDeny)
		entry.Error = "not_revealable"
		entry.Meta = map[string]string{"handle": item.Handle}
		s.audit.Record(ctx, entry)
		s.metrics.ObserveDecision(string(domain.ActionReveal), string(domain.StatusDeny))
		return RevealResult{}, ErrNotRevealable
	}

	value, err := s.engine.DecryptSecret(encryptedParts(item), secretContext(item))
	if err != nil {
		entry := audit.HumanEntry(item.Agent, item.ID, domain.ActionReveal, domain.StatusError)
		entry.Error = "decrypt_failed"
		entry.Meta = map[string]string{"handle": item.Handle}
		s.audit.Record(ctx, entry)
		s.metrics.ObserveDecision(string(domain.ActionReveal), string(domain.StatusError))
		return RevealResult{}, err
	}

	entry := audit.HumanEntry(item.Agent, item.ID, domain.ActionReveal, domain.StatusOK)
	entry.Meta = map[string]string{"handle": item.Handle}
	s.audit.Record(ctx, entry)
	s.metrics.ObserveDecision(string(domain.ActionReveal), string(domain.StatusOK))

	return RevealResult{Value: value, Username: item.Username}, nil
}

func (s *Service) readField(item domain.VaultItem, field string) (string, error) {
	if field == FieldUsername {
		return item.Username, nil
	}
	return s.engine.DecryptSecret(encryptedParts(item), secretContext(item))
}

// touch updates lastUsedAt on the token and the items. Best-effort:
// failures are logged, never propagated, and a cancelled request context
// does not undo them.
func (s *Service) touch(ctx context.Context, tokenID string, itemIDs ...string) {
	now := s.clock.Now()
	ctx = context.WithoutCancel(ctx)
	if err := s.tokens.TouchLastUsed(ctx, tokenID, now); err != nil {
		s.logger.DebugContext(ctx, "token lastUsedAt touch failed", "error", err)
	}
	for _, id := range itemIDs {
		if err := s.items.TouchLastUsed(ctx, id, now); err != nil {
			s.logger.DebugContext(ctx, "item lastUsedAt touch failed", "error", err)
		}
	}
}

func (s *Service) auditResolve(ctx context.Context, caller Caller, item domain.VaultItem, sessionKey, toolName string, status domain.AuditStatus, errCode string, meta map[string]string) {
	entry := audit.AgentEntry(caller.AgentID, item.ID, domain.ActionResolve, status)
	entry.SessionKey = sessionKey
	entry.ToolName = toolName
	entry.Error = errCode
	if meta == nil {
		meta = map[string]string{}
	}
	meta["tokenPrefix"] = caller.TokenPrefix
	entry.Meta = meta
	s.audit.Record(ctx, entry)
	s.metrics.ObserveDecision(string(domain.ActionResolve), string(status))
}

func (s *Service) auditRateLimited(ctx context.Context, caller Caller, sessionKey, toolName string) {
	s.metrics.ObserveRateLimited()
	s.auditResolve(ctx, caller, domain.VaultItem{}, sessionKey, toolName,
		domain.StatusDeny, "rate_limited", map[string]string{})
}

func encryptedParts(item domain.VaultItem) crypto.EncryptedSecret {
	return crypto.EncryptedSecret{
		Ciphertext: item.SecretCiphertext,
		IV:         item.SecretIV,
		Tag:        item.SecretTag,
		KeyVersion: item.KeyVersion,
	}
}

func secretContext(item domain.VaultItem) crypto.SecretContext {
	return crypto.SecretContext{
		AgentID: item.Agent,
		Handle:  item.Handle,
		Type:    string(item.Type),
	}
}
