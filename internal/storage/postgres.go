package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"agentvault/internal/domain"
)

// Postgres implementations of the vault stores. Schema, one row per
// entity:
//
//	CREATE TABLE vault_items (
//	    id                UUID PRIMARY KEY,
//	    agent             TEXT NOT NULL,
//	    handle            TEXT NOT NULL,
//	    type              TEXT NOT NULL,
//	    service           TEXT NOT NULL DEFAULT '',
//	    username          TEXT NOT NULL DEFAULT '',
//	    secret_ciphertext TEXT NOT NULL,
//	    secret_iv         TEXT NOT NULL,
//	    secret_tag        TEXT NOT NULL,
//	    key_version       INT  NOT NULL,
//	    exposure_mode     TEXT NOT NULL,
//	    disabled          BOOLEAN NOT NULL DEFAULT FALSE,
//	    notes             TEXT NOT NULL DEFAULT '',
//	    tags              TEXT[] NOT NULL DEFAULT '{}',
//	    last_used_at      TIMESTAMPTZ,
//	    last_rotated_at   TIMESTAMPTZ,
//	    created_at        TIMESTAMPTZ NOT NULL,
//	    updated_at        TIMESTAMPTZ NOT NULL,
//	    UNIQUE (agent, handle)
//	);
//
//	CREATE TABLE vault_access_tokens (
//	    id           UUID PRIMARY KEY,
//	    agent        TEXT NOT NULL,
//	    token_prefix TEXT NOT NULL UNIQUE,
//	    token_hash   TEXT NOT NULL,
//	    label        TEXT NOT NULL DEFAULT '',
//	    disabled     BOOLEAN NOT NULL DEFAULT FALSE,
//	    last_used_at TIMESTAMPTZ,
//	    created_at   TIMESTAMPTZ NOT NULL,
//	    updated_at   TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE vault_audit (
//	    id          UUID PRIMARY KEY,
//	    ts          TIMESTAMPTZ NOT NULL,
//	    actor_type  TEXT NOT NULL,
//	    agent       TEXT NOT NULL DEFAULT '',
//	    vault_item  TEXT NOT NULL DEFAULT '',
//	    action      TEXT NOT NULL,
//	    session_key TEXT NOT NULL DEFAULT '',
//	    tool_name   TEXT NOT NULL DEFAULT '',
//	    status      TEXT NOT NULL,
//	    error       TEXT NOT NULL DEFAULT '',
//	    meta        JSONB NOT NULL DEFAULT '{}'
//	);

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

type PostgresItemStore struct {
	db *sql.DB
}

func NewPostgresItemStore(db *sql.DB) *PostgresItemStore {
	return &PostgresItemStore{db: db}
}

const itemColumns = `id, agent, handle, type, service, username,
	secret_ciphertext, secret_iv, secret_tag, key_version, exposure_mode,
	disabled, notes, tags, last_used_at, last_rotated_at, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (domain.VaultItem, error) {
	var (
		item        domain.VaultItem
		itemType    string
		mode        string
		tags        pq.StringArray
		lastUsed    sql.NullTime
		lastRotated sql.NullTime
	)
	err := row.Scan(&item.ID, &item.Agent, &item.Handle, &itemType, &item.Service,
		&item.Username, &item.SecretCiphertext, &item.SecretIV, &item.SecretTag,
		&item.KeyVersion, &mode, &item.Disabled, &item.Notes, &tags,
		&lastUsed, &lastRotated, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.VaultItem{}, ErrNotFound
	}
	if err != nil {
		return domain.VaultItem{}, fmt.Errorf("scan vault item: %w", err)
	}
	item.Type = domain.CredentialType(itemType)
	item.ExposureMode = domain.ExposureMode(mode)
	item.Tags = tags
	if lastUsed.Valid {
		item.LastUsedAt = lastUsed.Time
	}
	if lastRotated.Valid {
		item.LastRotatedAt = lastRotated.Time
	}
	return item, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func (s *PostgresItemStore) Create(ctx context.Context, item domain.VaultItem) (domain.VaultItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now()
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vault_items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		item.ID, item.Agent, item.Handle, string(item.Type), item.Service,
		item.Username, item.SecretCiphertext, item.SecretIV, item.SecretTag,
		item.KeyVersion, string(item.ExposureMode), item.Disabled, item.Notes,
		pq.StringArray(item.Tags), nullTime(item.LastUsedAt),
		nullTime(item.LastRotatedAt), item.CreatedAt, item.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.VaultItem{}, ErrConflict
	}
	if err != nil {
		return domain.VaultItem{}, fmt.Errorf("insert vault item: %w", err)
	}
	return item, nil
}

func (s *PostgresItemStore) FindByID(ctx context.Context, id string) (domain.VaultItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM vault_items WHERE id = $1`, id)
	return scanItem(row)
}

func (s *PostgresItemStore) FindByHandle(ctx context.Context, agent, handle string) (domain.VaultItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM vault_items WHERE agent = $1 AND handle = $2`, agent, handle)
	return scanItem(row)
}

func (s *PostgresItemStore) ListByAgent(ctx context.Context, agent string) ([]domain.VaultItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM vault_items WHERE agent = $1 ORDER BY updated_at DESC`, agent)
	if err != nil {
		return nil, fmt.Errorf("list vault items: %w", err)
	}
	defer rows.Close()

	var out []domain.VaultItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *PostgresItemStore) Update(ctx context.Context, item domain.VaultItem) (domain.VaultItem, error) {
	item.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE vault_items SET
			service = $2, username = $3, secret_ciphertext = $4, secret_iv = $5,
			secret_tag = $6, key_version = $7, exposure_mode = $8, disabled = $9,
			notes = $10, tags = $11, last_used_at = $12, last_rotated_at = $13,
			updated_at = $14
		WHERE id = $1`,
		item.ID, item.Service, item.Username, item.SecretCiphertext, item.SecretIV,
		item.SecretTag, item.KeyVersion, string(item.ExposureMode), item.Disabled,
		item.Notes, pq.StringArray(item.Tags), nullTime(item.LastUsedAt),
		nullTime(item.LastRotatedAt), item.UpdatedAt)
	if err != nil {
		return domain.VaultItem{}, fmt.Errorf("update vault item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.VaultItem{}, ErrNotFound
	}
	return s.FindByID(ctx, item.ID)
}

func (s *PostgresItemStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vault_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete vault item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresItemStore) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE vault_items SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch vault item: %w", err)
	}
	return nil
}

type PostgresTokenStore struct {
	db *sql.DB
}

func NewPostgresTokenStore(db *sql.DB) *PostgresTokenStore {
	return &PostgresTokenStore{db: db}
}

const tokenColumns = `id, agent, token_prefix, token_hash, label, disabled,
	last_used_at, created_at, updated_at`

func scanToken(row interface{ Scan(...any) error }) (domain.AccessToken, error) {
	var (
		tok      domain.AccessToken
		lastUsed sql.NullTime
	)
	err := row.Scan(&tok.ID, &tok.Agent, &tok.TokenPrefix, &tok.TokenHash,
		&tok.Label, &tok.Disabled, &lastUsed, &tok.CreatedAt, &tok.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AccessToken{}, ErrNotFound
	}
	if err != nil {
		return domain.AccessToken{}, fmt.Errorf("scan access token: %w", err)
	}
	if lastUsed.Valid {
		tok.LastUsedAt = lastUsed.Time
	}
	return tok, nil
}

func (s *PostgresTokenStore) Create(ctx context.Context, tok domain.AccessToken) (domain.AccessToken, error) {
	if tok.ID == "" {
		tok.ID = uuid.NewString()
	}
	now := time.Now()
	tok.CreatedAt = now
	tok.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vault_access_tokens (`+tokenColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tok.ID, tok.Agent, tok.TokenPrefix, tok.TokenHash, tok.Label,
		tok.Disabled, nullTime(tok.LastUsedAt), tok.CreatedAt, tok.UpdatedAt)
	if isUniqueViolation(err) {
		return domain.AccessToken{}, ErrConflict
	}
	if err != nil {
		return domain.AccessToken{}, fmt.Errorf("insert access token: %w", err)
	}
	return tok, nil
}

func (s *PostgresTokenStore) FindByPrefix(ctx context.Context, prefix string) (domain.AccessToken, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM vault_access_tokens WHERE token_prefix = $1`, prefix)
	return scanToken(row)
}

func (s *PostgresTokenStore) ListByAgent(ctx context.Context, agent string) ([]domain.AccessToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM vault_access_tokens WHERE agent = $1 ORDER BY updated_at DESC`, agent)
	if err != nil {
		return nil, fmt.Errorf("list access tokens: %w", err)
	}
	defer rows.Close()

	var out []domain.AccessToken
	for rows.Next() {
		tok, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
	}
	return out, rows.Err()
}

func (s *PostgresTokenStore) SetDisabled(ctx context.Context, id string, disabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE vault_access_tokens SET disabled = $2, updated_at = $3 WHERE id = $1`,
		id, disabled, time.Now())
	if err != nil {
		return fmt.Errorf("set token disabled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresTokenStore) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE vault_access_tokens SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch access token: %w", err)
	}
	return nil
}

type PostgresAuditStore struct {
	db *sql.DB
}

func NewPostgresAuditStore(db *sql.DB) *PostgresAuditStore {
	return &PostgresAuditStore{db: db}
}

func (s *PostgresAuditStore) Append(ctx context.Context, entry domain.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	meta := entry.Meta
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal audit meta: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vault_audit (id, ts, actor_type, agent, vault_item, action,
			session_key, tool_name, status, error, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.Timestamp, string(entry.ActorType), entry.Agent,
		entry.VaultItem, string(entry.Action), entry.SessionKey, entry.ToolName,
		string(entry.Status), entry.Error, metaJSON)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *PostgresAuditStore) List(ctx context.Context, q AuditQuery) (AuditPage, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	perPage := q.PerPage
	if perPage < 1 {
		perPage = 100
	}

	where := " WHERE ($1 = '' OR agent = $1) AND ($2 = '' OR vault_item = $2)"

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vault_audit`+where, q.Agent, q.VaultItem).Scan(&total); err != nil {
		return AuditPage{}, fmt.Errorf("count audit entries: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, actor_type, agent, vault_item, action, session_key,
			tool_name, status, error, meta
		FROM vault_audit`+where+`
		ORDER BY ts DESC
		LIMIT $3 OFFSET $4`,
		q.Agent, q.VaultItem, perPage, (page-1)*perPage)
	if err != nil {
		return AuditPage{}, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	out := AuditPage{Page: page, PerPage: perPage, TotalItems: total}
	for rows.Next() {
		var (
			e         domain.AuditEntry
			actorType string
			action    string
			status    string
			metaJSON  []byte
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &actorType, &e.Agent, &e.VaultItem,
			&action, &e.SessionKey, &e.ToolName, &status, &e.Error, &metaJSON); err != nil {
			return AuditPage{}, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ActorType = domain.ActorType(actorType)
		e.Action = domain.AuditAction(action)
		e.Status = domain.AuditStatus(status)
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &e.Meta); err != nil {
				return AuditPage{}, fmt.Errorf("unmarshal audit meta: %w", err)
			}
		}
		out.Entries = append(out.Entries, e)
	}
	return out, rows.Err()
}
