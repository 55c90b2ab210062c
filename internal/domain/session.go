package domain

import "time"

// TenantSession holds the OAuth tokens of one (user, instance) pair.
// The access token is refreshed in place; the refresh token only changes on re-authorization.
type TenantSession struct {
	SessionKey           string    `json:"session_key" bson:"session_key"`
	AccessToken          string    `json:"access_token" bson:"access_token"`
	AccessTokenExpiresAt time.Time `json:"access_token_expires_at" bson:"access_token_expires_at"`
	RefreshToken         string    `json:"refresh_token" bson:"refresh_token"`
}

// TokenGrant is what the CRM token endpoint hands back
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	Scopes       []string
}

// ExpiresAt returns the absolute expiry of the grant relative to issuedAt
func (g *TokenGrant) ExpiresAt(issuedAt time.Time) time.Time {
	return issuedAt.Add(g.ExpiresIn)
}
