package ports

import (
	"context"

	"crm-schema-migrator/internal/domain"
)

// CRMClient defines the property schema operations of the external CRM API.
// Every call is made with an already valid access token.
type CRMClient interface {
	// ListProperties returns every property definition of an object type
	ListProperties(ctx context.Context, accessToken, objectType string) ([]domain.PropertyDefinition, error)

	// GetProperty reads one property by internal name; domain.ErrPropertyNotFound on 404
	GetProperty(ctx context.Context, accessToken, objectType, name string) (*domain.PropertyDefinition, error)

	// CreateProperty creates a property in the tenant the token belongs to
	CreateProperty(ctx context.Context, accessToken, objectType string, property domain.PropertyCreate) (*domain.PropertyDefinition, error)
}

// TokenExchanger talks to the CRM OAuth token endpoint
type TokenExchanger interface {
	// ExchangeCode trades an authorization code for a token grant
	ExchangeCode(ctx context.Context, code string) (*domain.TokenGrant, error)

	// Refresh trades a refresh token for a new access token
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenGrant, error)
}
