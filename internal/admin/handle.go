package admin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"agentvault/internal/storage"
)

const maxHandleLen = 128

var (
	handlePattern      = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	handleSanitizer    = regexp.MustCompile(`[^a-z0-9._-]+`)
	handleLeadingAlnum = regexp.MustCompile(`^[a-z0-9]`)
	errHandleExhausted = errors.New("could not auto-generate a unique handle, please provide one")
)

// ValidateHandle enforces the handle grammar shared with placeholder
// references.
func ValidateHandle(handle string) error {
	h := strings.TrimSpace(handle)
	if h == "" {
		return errors.New("handle is required")
	}
	if len(h) > maxHandleLen {
		return fmt.Errorf("handle is too long (max %d chars)", maxHandleLen)
	}
	if !handlePattern.MatchString(h) {
		return errors.New("handle must match ^[A-Za-z0-9][A-Za-z0-9._-]*$")
	}
	return nil
}

// sanitizeHandleBase normalizes free text (usually a service name) into a
// legal handle base, being forgiving with input by mapping most
// characters to '-'.
func sanitizeHandleBase(value string) string {
	raw := strings.ToLower(strings.TrimSpace(value))
	if raw == "" {
		return ""
	}
	out := handleSanitizer.ReplaceAllString(raw, "-")
	out = strings.Trim(out, "-")
	if out == "" {
		return ""
	}
	if !handleLeadingAlnum.MatchString(out) {
		out = "h-" + out
	}
	// Leave room for random suffixes while staying under the cap.
	if len(out) > 64 {
		out = out[:64]
	}
	return out
}

// generateUniqueHandle derives a handle from the service or type name,
// retrying with random suffixes while the base is taken.
func (s *Service) generateUniqueHandle(ctx context.Context, agent, itemType, service string) (string, error) {
	base := sanitizeHandleBase(service)
	if base == "" {
		base = sanitizeHandleBase(itemType)
	}
	if base == "" {
		base = "cred"
	}

	candidates := []string{base}
	for i := 0; i < 8; i++ {
		suffix := make([]byte, 4)
		if _, err := rand.Read(suffix); err != nil {
			return "", fmt.Errorf("generate handle suffix: %w", err)
		}
		candidates = append(candidates, base+"_"+hex.EncodeToString(suffix))
	}

	for _, h := range candidates {
		if ValidateHandle(h) != nil {
			continue
		}
		_, err := s.items.FindByHandle(ctx, agent, h)
		if errors.Is(err, storage.ErrNotFound) {
			return h, nil
		}
		if err != nil {
			return "", fmt.Errorf("handle uniqueness check: %w", err)
		}
	}
	return "", errHandleExhausted
}
