package model

import (
	"slices"
	"time"
)

type ClientStatus string

const (
	ClientStatusRunning ClientStatus = "running"
	ClientStatusStopped ClientStatus = "stopped"
)

// Client is a registered OAuth2 client application.
type Client struct {
	ID     string
	Name   string
	Secret string
	Status ClientStatus

	// Confidential clients must present their secret at the token
	// endpoint; public clients must not rely on one.
	Confidential bool

	RedirectURIs []string

	// RedirectURIValidationDisabled skips the registered-URI check at the
	// authorization endpoint. The generic URI-shape validation still runs.
	RedirectURIValidationDisabled bool

	// NeededScopeIDs are the scopes the client declares it requires to
	// function. For the portal client they are granted transparently.
	NeededScopeIDs []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}
