package transport

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"agentvault/internal/admin"
	"agentvault/internal/storage"
)

type createItemRequest struct {
	Handle       string   `json:"handle"`
	Type         string   `json:"type"`
	Service      string   `json:"service"`
	Username     string   `json:"username"`
	Secret       string   `json:"secret"`
	ExposureMode string   `json:"exposureMode"`
	Notes        string   `json:"notes"`
	Tags         []string `json:"tags"`
}

func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var body createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	item, err := h.admin.CreateItem(r.Context(), admin.CreateItemParams{
		Agent:        agentID,
		Handle:       body.Handle,
		Type:         body.Type,
		Service:      body.Service,
		Username:     body.Username,
		Secret:       body.Secret,
		ExposureMode: body.ExposureMode,
		Notes:        body.Notes,
		Tags:         body.Tags,
	})
	if err != nil {
		writeAdminError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "item": toItemResponse(item)})
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	items, err := h.admin.ListItems(r.Context(), agentID)
	if err != nil {
		writeAdminError(w, err)
		return
	}

	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "totalItems": len(out)})
}

type updateItemRequest struct {
	Service      *string  `json:"service"`
	Username     *string  `json:"username"`
	Notes        *string  `json:"notes"`
	Tags         []string `json:"tags"`
	ExposureMode *string  `json:"exposureMode"`
	Disabled     *bool    `json:"disabled"`
}

func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	var body updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	item, err := h.admin.UpdateItem(r.Context(), itemID, admin.UpdateItemParams{
		Service:      body.Service,
		Username:     body.Username,
		Notes:        body.Notes,
		Tags:         body.Tags,
		ExposureMode: body.ExposureMode,
		Disabled:     body.Disabled,
	})
	if err != nil {
		writeAdminError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "item": toItemResponse(item)})
}

func (h *Handler) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.DeleteItem(r.Context(), chi.URLParam(r, "itemID")); err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type rotateItemRequest struct {
	Secret   string  `json:"secret"`
	Username *string `json:"username"`
}

func (h *Handler) handleRotateItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")

	var body rotateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	item, err := h.admin.RotateItem(r.Context(), itemID, body.Secret, body.Username)
	if err != nil {
		writeAdminError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "item": toItemResponse(item)})
}

func (h *Handler) handleRevealItem(w http.ResponseWriter, r *http.Request) {
	result, err := h.resolver.Reveal(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		writeAdminError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"value":    result.Value,
		"username": result.Username,
	})
}

type createTokenRequest struct {
	Label string `json:"label"`
}

func (h *Handler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	// An empty body is fine; label is optional.
	var body createTokenRequest
	_ = json.NewDecoder(r.Body).Decode(&body)

	issued, err := h.admin.CreateToken(r.Context(), agentID, body.Label)
	if err != nil {
		writeAdminError(w, err)
		return
	}

	// The plaintext token appears in exactly this one response.
	writeJSON(w, http.StatusCreated, map[string]any{
		"ok":          true,
		"token":       issued.Token,
		"tokenPrefix": issued.Record.TokenPrefix,
		"record":      toTokenResponse(issued.Record),
	})
}

func (h *Handler) handleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.admin.ListTokens(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		writeAdminError(w, err)
		return
	}

	out := make([]tokenResponse, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, toTokenResponse(tok))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out, "totalItems": len(out)})
}

func (h *Handler) handleDisableToken(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.DisableToken(r.Context(), chi.URLParam(r, "tokenID")); err != nil {
		writeAdminError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleQueryAudit(w http.ResponseWriter, r *http.Request) {
	q := storage.AuditQuery{
		Agent:     strings.TrimSpace(r.URL.Query().Get("agentId")),
		VaultItem: strings.TrimSpace(r.URL.Query().Get("vaultItemId")),
	}
	q.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	q.PerPage, _ = strconv.Atoi(r.URL.Query().Get("perPage"))

	page, err := h.admin.QueryAudit(r.Context(), q)
	if err != nil {
		writeAdminError(w, err)
		return
	}

	out := make([]auditResponse, 0, len(page.Entries))
	for _, entry := range page.Entries {
		out = append(out, toAuditResponse(entry))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":      out,
		"page":       page.Page,
		"perPage":    page.PerPage,
		"totalItems": page.TotalItems,
	})
}
