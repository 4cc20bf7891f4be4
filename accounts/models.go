package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record models the users row.
type Record struct {
	bun.BaseModel `bun:"table:users"`

	ID           uuid.UUID `bun:",pk,type:uuid"`
	Email        string    `bun:"email,notnull"`
	Username     string    `bun:"username"`
	Name         string    `bun:"name"`
	PasswordHash string    `bun:"password_hash"`
	AvatarURL    string    `bun:"avatar_url"`
	Role         string    `bun:"role"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
	UpdatedAt    time.Time `bun:"updated_at,notnull"`
}
