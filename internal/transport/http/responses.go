package transport

import (
	"time"

	"agentvault/internal/domain"
)

// itemResponse is the safe serialization of a vault item: the encrypted
// payload never leaves the server.
type itemResponse struct {
	ID            string   `json:"id"`
	Agent         string   `json:"agent"`
	Handle        string   `json:"handle"`
	Type          string   `json:"type"`
	Service       string   `json:"service"`
	Username      string   `json:"username"`
	KeyVersion    int      `json:"keyVersion"`
	ExposureMode  string   `json:"exposureMode"`
	Disabled      bool     `json:"disabled"`
	Notes         string   `json:"notes"`
	Tags          []string `json:"tags,omitempty"`
	LastUsedAt    string   `json:"lastUsedAt,omitempty"`
	LastRotatedAt string   `json:"lastRotatedAt,omitempty"`
	CreatedAt     string   `json:"createdAt,omitempty"`
	UpdatedAt     string   `json:"updatedAt,omitempty"`
}

func timeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toItemResponse(item domain.VaultItem) itemResponse {
	return itemResponse{
		ID:            item.ID,
		Agent:         item.Agent,
		Handle:        item.Handle,
		Type:          string(item.Type),
		Service:       item.Service,
		Username:      item.Username,
		KeyVersion:    item.KeyVersion,
		ExposureMode:  string(item.ExposureMode),
		Disabled:      item.Disabled,
		Notes:         item.Notes,
		Tags:          item.Tags,
		LastUsedAt:    timeString(item.LastUsedAt),
		LastRotatedAt: timeString(item.LastRotatedAt),
		CreatedAt:     timeString(item.CreatedAt),
		UpdatedAt:     timeString(item.UpdatedAt),
	}
}

// tokenResponse never carries the token hash.
type tokenResponse struct {
	ID          string `json:"id"`
	Agent       string `json:"agent"`
	TokenPrefix string `json:"tokenPrefix"`
	Label       string `json:"label"`
	Disabled    bool   `json:"disabled"`
	LastUsedAt  string `json:"lastUsedAt,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

func toTokenResponse(tok domain.AccessToken) tokenResponse {
	return tokenResponse{
		ID:          tok.ID,
		Agent:       tok.Agent,
		TokenPrefix: tok.TokenPrefix,
		Label:       tok.Label,
		Disabled:    tok.Disabled,
		LastUsedAt:  timeString(tok.LastUsedAt),
		CreatedAt:   timeString(tok.CreatedAt),
	}
}

type auditResponse struct {
	ID         string            `json:"id"`
	Timestamp  string            `json:"ts"`
	ActorType  string            `json:"actorType"`
	Agent      string            `json:"agent,omitempty"`
	VaultItem  string            `json:"vaultItem,omitempty"`
	Action     string            `json:"action"`
	SessionKey string            `json:"sessionKey,omitempty"`
	ToolName   string            `json:"toolName,omitempty"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
}

func toAuditResponse(entry domain.AuditEntry) auditResponse {
	return auditResponse{
		ID:         entry.ID,
		Timestamp:  timeString(entry.Timestamp),
		ActorType:  string(entry.ActorType),
		Agent:      entry.Agent,
		VaultItem:  entry.VaultItem,
		Action:     string(entry.Action),
		SessionKey: entry.SessionKey,
		ToolName:   entry.ToolName,
		Status:     string(entry.Status),
		Error:      entry.Error,
		Meta:       entry.Meta,
	}
}
