package model

import (
	"errors"
	"fmt"
	"time"
)

// ViewerType classifies who generated a view event.
type ViewerType string

const (
	ViewerTypeUser      ViewerType = "AUTHENTICATED_USER"
	ViewerTypeAnonymous ViewerType = "ANONYMOUS_USER"
	ViewerTypeIP        ViewerType = "IP_BASED_USER"
)

var (
	// ErrInvalidViewIdentifier signals a view identifier that violates its invariants.
	ErrInvalidViewIdentifier = errors.New("invalid view identifier")
)

// ViewIdentifier pins down "who viewed what" for dedup purposes.
// The IP address is always captured; the viewer type is derived from which
// identity fields are present: a user id wins over an anonymous id, which
// wins over the plain IP fallback.
type ViewIdentifier struct {
	PromptID    int64
	UserID      *int64
	AnonymousID string
	IPAddress   string
}

// NewUserView builds an identifier for an authenticated viewer.
func NewUserView(promptID, userID int64, ipAddress string) ViewIdentifier {
	return ViewIdentifier{
		PromptID:  promptID,
		UserID:    &userID,
		IPAddress: ipAddress,
	}
}

// NewGuestView builds an identifier for an anonymous viewer. When anonymousID
// is empty the viewer falls back to IP-based identity.
func NewGuestView(promptID int64, ipAddress, anonymousID string) ViewIdentifier {
	return ViewIdentifier{
		PromptID:    promptID,
		AnonymousID: anonymousID,
		IPAddress:   ipAddress,
	}
}

// ViewerType derives the identity class from the populated fields.
func (v ViewIdentifier) ViewerType() ViewerType {
	switch {
	case v.UserID != nil:
		return ViewerTypeUser
	case v.AnonymousID != "":
		return ViewerTypeAnonymous
	default:
		return ViewerTypeIP
	}
}

// Validate enforces the identifier invariants.
func (v ViewIdentifier) Validate() error {
	if v.PromptID <= 0 {
		return fmt.Errorf("%w: prompt id must be positive", ErrInvalidViewIdentifier)
	}
	if v.IPAddress == "" {
		return fmt.Errorf("%w: ip address must not be empty", ErrInvalidViewIdentifier)
	}
	if v.UserID != nil && *v.UserID <= 0 {
		return fmt.Errorf("%w: user id must be positive", ErrInvalidViewIdentifier)
	}
	return nil
}

// ViewerLabel renders the identity for logging.
func (v ViewIdentifier) ViewerLabel() string {
	switch v.ViewerType() {
	case ViewerTypeUser:
		return fmt.Sprintf("user:%d", *v.UserID)
	case ViewerTypeAnonymous:
		return "anon:" + v.AnonymousID
	default:
		return "ip:" + v.IPAddress
	}
}

// ViewRecord is one accepted (non-duplicate) view event, persisted as an
// append-only audit row. Never updated or deleted.
type ViewRecord struct {
	ID          string    `db:"id" gorm:"primaryKey;size:36" json:"id"`
	PromptID    int64     `db:"prompt_id" gorm:"index;not null" json:"prompt_id"`
	UserID      *int64    `db:"user_id" gorm:"index" json:"user_id,omitempty"`
	AnonymousID string    `db:"anonymous_id" gorm:"size:64" json:"anonymous_id,omitempty"`
	IPAddress   string    `db:"ip_address" gorm:"size:64;not null" json:"ip_address"`
	ViewedAt    time.Time `db:"viewed_at" gorm:"index;not null" json:"viewed_at"`
}

// Identifier reconstructs the view identifier captured by this record.
func (r ViewRecord) Identifier() ViewIdentifier {
	return ViewIdentifier{
		PromptID:    r.PromptID,
		UserID:      r.UserID,
		AnonymousID: r.AnonymousID,
		IPAddress:   r.IPAddress,
	}
}

// ViewCount is the per-prompt aggregate. The Postgres row is the source of
// truth; the Redis copy is a TTL-bound accelerator that may be evicted and
// repopulated at any time.
type ViewCount struct {
	PromptID       int64     `db:"prompt_id" gorm:"primaryKey" json:"prompt_id"`
	TotalViewCount int64     `db:"total_view_count" gorm:"not null;default:0" json:"total_view_count"`
	CreatedAt      time.Time `db:"created_at" gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" gorm:"autoUpdateTime" json:"updated_at"`
}

// NewViewCount builds an aggregate with the current timestamps.
func NewViewCount(promptID, total int64) *ViewCount {
	now := time.Now()
	return &ViewCount{
		PromptID:       promptID,
		TotalViewCount: total,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// EmptyViewCount is the zero-value aggregate for a never-viewed prompt.
func EmptyViewCount(promptID int64) *ViewCount {
	return NewViewCount(promptID, 0)
}

const (
	ViewStreamName     = "PROMPT_VIEWS"
	ViewStreamSubject  = "views.recorded"
	ViewConsumerName   = "view-logger"
	ViewStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
