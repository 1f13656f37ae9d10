package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a reviewer account. PasswordHash holds the bcrypt hash, never the
// plaintext password.
type User struct {
	ID           uuid.UUID `db:"id"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}
