package model

import "time"

// Account is an end-user identity.
type Account struct {
	ID           string
	Email        string
	Name         string
	Locale       string
	PasswordHash []byte
	Activated    bool
	CreatedAt    time.Time
}
