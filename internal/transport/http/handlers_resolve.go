package transport

import (
	"encoding/json"
	"net/http"
	"strings"

	"agentvault/internal/resolve"
)

func bearerToken(r *http.Request) string {
	raw, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return raw
}

type resolveRequest struct {
	Handle     string `json:"handle"`
	Field      string `json:"field"`
	SessionKey string `json:"sessionKey"`
	ToolName   string `json:"toolName"`
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var body resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	value, err := h.resolver.Resolve(r.Context(), bearerToken(r), resolve.Request{
		Handle:     body.Handle,
		Field:      body.Field,
		SessionKey: strings.TrimSpace(body.SessionKey),
		ToolName:   strings.TrimSpace(body.ToolName),
	})
	if err != nil {
		writeResolveError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "value": value})
}

type resolveBatchRequest struct {
	Requests []struct {
		Key    string `json:"key"`
		Handle string `json:"handle"`
		Field  string `json:"field"`
	} `json:"requests"`
	SessionKey string `json:"sessionKey"`
	ToolName   string `json:"toolName"`
}

func (h *Handler) handleResolveBatch(w http.ResponseWriter, r *http.Request) {
	var body resolveBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	req := resolve.BatchRequest{
		SessionKey: strings.TrimSpace(body.SessionKey),
		ToolName:   strings.TrimSpace(body.ToolName),
	}
	for _, entry := range body.Requests {
		req.Requests = append(req.Requests, resolve.BatchItem{
			Key:    entry.Key,
			Handle: entry.Handle,
			Field:  entry.Field,
		})
	}

	values, err := h.resolver.ResolveBatch(r.Context(), bearerToken(r), req)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "values": values})
}
