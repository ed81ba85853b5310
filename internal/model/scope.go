package model

// Scope is a named permission unit clients request and users grant.
type Scope struct {
	ID          string
	Name        string
	Description string
}
