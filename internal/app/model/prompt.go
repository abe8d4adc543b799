package model

import (
	"time"

	"github.com/google/uuid"
)

// Prompt describes the prompt template entity stored in Postgres.
// The UUID is the public identifier; the numeric ID is internal and is
// what the view subsystem keys on.
type Prompt struct {
	ID          int64     `db:"id" gorm:"primaryKey;autoIncrement"`
	UUID        uuid.UUID `db:"uuid" gorm:"type:uuid;uniqueIndex;not null"`
	Title       string    `db:"title" gorm:"size:255;not null"`
	Content     string    `db:"content" gorm:"type:text;not null"`
	Description string    `db:"description" gorm:"type:text"`
	CreatedAt   time.Time `db:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `db:"updated_at" gorm:"autoUpdateTime"`
}
