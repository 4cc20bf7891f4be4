package tokens

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Record models the auth_tokens row. The (user_id, kind) pair is unique.
type Record struct {
	bun.BaseModel `bun:"table:auth_tokens"`

	ID        uuid.UUID `bun:",pk,type:uuid"`
	UserID    uuid.UUID `bun:"user_id,notnull,type:uuid"`
	Kind      string    `bun:"kind,notnull"`
	Token     string    `bun:"token,notnull"`
	TokenHash string    `bun:"token_hash,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}
