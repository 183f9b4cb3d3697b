// Package auth implements account registration, password verification and
// JWT session tokens. Accounts are distinct from group members: a member
// belongs to one group, an account may be linked to members across many
// groups via the member's AuthID.
package auth

import (
	"time"

	"github.com/google/uuid"
)

// Account is a registered login identity.
type Account struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    int64
}

// NewAccount creates an account with a fresh id and creation timestamp.
func NewAccount(name, email, passwordHash string) *Account {
	return &Account{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().Unix(),
	}
}
