package cache

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gongdel/promptview/internal/app/model"
)

const (
	viewDuplicationPrefix = "view"
	viewCountPrefix       = "viewcount"
)

// KeyStrategy isolates Redis key naming and TTL policy from the rest of the
// view subsystem, so the dedup gate and counter cache stay agnostic of
// concrete key syntax.
type KeyStrategy interface {
	// DuplicationCheckKey maps an identifier to its dedup marker key.
	// Fails with ErrUnsupportedViewerType for an unknown viewer type.
	DuplicationCheckKey(id model.ViewIdentifier) (string, error)

	// ViewCountKey maps a prompt id to its counter key, independent of viewer.
	ViewCountKey(promptID int64) string

	// ViewCountKeyPattern matches every counter key, for bulk scans.
	ViewCountKeyPattern() string

	// PromptIDFromViewCountKey inverts ViewCountKey.
	// Fails with ErrInvalidKeyFormat on malformed input.
	PromptIDFromViewCountKey(key string) (int64, error)

	// DuplicationCheckTTL is the dedup window.
	DuplicationCheckTTL() time.Duration

	// CountCacheTTL bounds the lifetime of cached counters.
	CountCacheTTL() time.Duration
}

type keyStrategy struct {
	duplicationCheckTTL time.Duration
	countCacheTTL       time.Duration
}

// NewKeyStrategy builds the default key strategy. Non-positive TTLs fall back
// to the policy defaults (1h dedup window, 24h counter cache).
func NewKeyStrategy(duplicationCheckTTL, countCacheTTL time.Duration) KeyStrategy {
	if duplicationCheckTTL <= 0 {
		duplicationCheckTTL = time.Hour
	}
	if countCacheTTL <= 0 {
		countCacheTTL = 24 * time.Hour
	}
	return &keyStrategy{
		duplicationCheckTTL: duplicationCheckTTL,
		countCacheTTL:       countCacheTTL,
	}
}

func (s *keyStrategy) DuplicationCheckKey(id model.ViewIdentifier) (string, error) {
	switch id.ViewerType() {
	case model.ViewerTypeUser:
		return fmt.Sprintf("%s:user:%d:prompt:%d", viewDuplicationPrefix, *id.UserID, id.PromptID), nil
	case model.ViewerTypeAnonymous:
		return fmt.Sprintf("%s:anon:%s:prompt:%d", viewDuplicationPrefix, id.AnonymousID, id.PromptID), nil
	case model.ViewerTypeIP:
		return fmt.Sprintf("%s:ip:%s:prompt:%d", viewDuplicationPrefix, sanitizeIP(id.IPAddress), id.PromptID), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedViewerType, id.ViewerType())
	}
}

func (s *keyStrategy) ViewCountKey(promptID int64) string {
	return fmt.Sprintf("%s:%d", viewCountPrefix, promptID)
}

func (s *keyStrategy) ViewCountKeyPattern() string {
	return viewCountPrefix + ":*"
}

func (s *keyStrategy) PromptIDFromViewCountKey(key string) (int64, error) {
	raw, ok := strings.CutPrefix(key, viewCountPrefix+":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidKeyFormat, key)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidKeyFormat, key)
	}
	return id, nil
}

func (s *keyStrategy) DuplicationCheckTTL() time.Duration { return s.duplicationCheckTTL }

func (s *keyStrategy) CountCacheTTL() time.Duration { return s.countCacheTTL }

// sanitizeIP normalizes anything outside [a-zA-Z0-9.-] so raw client input
// cannot inject key separators.
func sanitizeIP(ip string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, ip)
}
