package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/gongdel/promptview/internal/app/model"
)

func TestKeyStrategy_DuplicationCheckKey(t *testing.T) {
	s := NewKeyStrategy(0, 0)

	t.Run("authenticated user", func(t *testing.T) {
		id := model.NewUserView(42, 7, "203.0.113.1")
		key, err := s.DuplicationCheckKey(id)
		if err != nil {
			t.Fatalf("DuplicationCheckKey returned error: %v", err)
		}
		if key != "view:user:7:prompt:42" {
			t.Fatalf("unexpected key: %s", key)
		}
	})

	t.Run("anonymous user", func(t *testing.T) {
		id := model.NewGuestView(42, "203.0.113.1", "anon-abc")
		key, err := s.DuplicationCheckKey(id)
		if err != nil {
			t.Fatalf("DuplicationCheckKey returned error: %v", err)
		}
		if key != "view:anon:anon-abc:prompt:42" {
			t.Fatalf("unexpected key: %s", key)
		}
	})

	t.Run("ip based user", func(t *testing.T) {
		id := model.NewGuestView(42, "203.0.113.1", "")
		key, err := s.DuplicationCheckKey(id)
		if err != nil {
			t.Fatalf("DuplicationCheckKey returned error: %v", err)
		}
		if key != "view:ip:203.0.113.1:prompt:42" {
			t.Fatalf("unexpected key: %s", key)
		}
	})

	t.Run("ip sanitization", func(t *testing.T) {
		id := model.NewGuestView(42, "2001:db8::8a2e:0370", "")
		key, err := s.DuplicationCheckKey(id)
		if err != nil {
			t.Fatalf("DuplicationCheckKey returned error: %v", err)
		}
		if key != "view:ip:2001_db8__8a2e_0370:prompt:42" {
			t.Fatalf("expected colons normalized, got %s", key)
		}
	})
}

func TestKeyStrategy_ViewCountKeyRoundTrip(t *testing.T) {
	s := NewKeyStrategy(0, 0)

	for _, promptID := range []int64{1, 42, 999999, 1<<62 + 1} {
		key := s.ViewCountKey(promptID)
		got, err := s.PromptIDFromViewCountKey(key)
		if err != nil {
			t.Fatalf("PromptIDFromViewCountKey(%s) returned error: %v", key, err)
		}
		if got != promptID {
			t.Fatalf("round trip mismatch: put %d, got %d", promptID, got)
		}
	}
}

func TestKeyStrategy_PromptIDFromViewCountKey_Malformed(t *testing.T) {
	s := NewKeyStrategy(0, 0)

	for _, key := range []string{
		"",
		"viewcount:",
		"viewcount:abc",
		"viewcount:-5",
		"viewcount:0",
		"view:user:7:prompt:42",
		"other:42",
	} {
		if _, err := s.PromptIDFromViewCountKey(key); !errors.Is(err, ErrInvalidKeyFormat) {
			t.Fatalf("expected ErrInvalidKeyFormat for %q, got %v", key, err)
		}
	}
}

func TestKeyStrategy_TTLDefaults(t *testing.T) {
	s := NewKeyStrategy(0, 0)
	if s.DuplicationCheckTTL() != time.Hour {
		t.Fatalf("expected 1h dedup TTL, got %v", s.DuplicationCheckTTL())
	}
	if s.CountCacheTTL() != 24*time.Hour {
		t.Fatalf("expected 24h count cache TTL, got %v", s.CountCacheTTL())
	}

	s = NewKeyStrategy(10*time.Minute, 2*time.Hour)
	if s.DuplicationCheckTTL() != 10*time.Minute {
		t.Fatalf("expected configured dedup TTL, got %v", s.DuplicationCheckTTL())
	}
	if s.CountCacheTTL() != 2*time.Hour {
		t.Fatalf("expected configured count cache TTL, got %v", s.CountCacheTTL())
	}
}

func TestKeyStrategy_ViewCountKeyPattern(t *testing.T) {
	s := NewKeyStrategy(0, 0)
	if s.ViewCountKeyPattern() != "viewcount:*" {
		t.Fatalf("unexpected pattern: %s", s.ViewCountKeyPattern())
	}
}
