package crm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"crm-schema-migrator/internal/domain"
	"crm-schema-migrator/internal/ports"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// OAuthConfig is the client registration with the CRM authorization server
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
}

// OAuthExchanger implements ports.TokenExchanger with golang.org/x/oauth2.
// Client credentials travel in the form body next to the grant.
type OAuthExchanger struct {
	config     *oauth2.Config
	httpClient *http.Client
	now        func() time.Time
	logger     zerolog.Logger
}

var _ ports.TokenExchanger = (*OAuthExchanger)(nil)

// NewOAuthExchanger creates a token exchanger bounded by timeout per call
func NewOAuthExchanger(cfg OAuthConfig, timeout time.Duration, logger zerolog.Logger) *OAuthExchanger {
	return &OAuthExchanger{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
		logger:     logger,
	}
}

// ExchangeCode trades an authorization code for tokens (grant_type=authorization_code)
func (e *OAuthExchanger) ExchangeCode(ctx context.Context, code string) (*domain.TokenGrant, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)

	token, err := e.config.Exchange(ctx, code)
	if err != nil {
		return nil, e.classify("authorization_code", err)
	}
	return e.grant(token), nil
}

// Refresh trades a refresh token for a new access token (grant_type=refresh_token)
func (e *OAuthExchanger) Refresh(ctx context.Context, refreshToken string) (*domain.TokenGrant, error) {
	if refreshToken == "" {
		return nil, domain.ErrNoRefreshToken
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)

	token, err := e.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, e.classify("refresh_token", err)
	}
	return e.grant(token), nil
}

func (e *OAuthExchanger) grant(token *oauth2.Token) *domain.TokenGrant {
	g := &domain.TokenGrant{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !token.Expiry.IsZero() {
		g.ExpiresIn = token.Expiry.Sub(e.now())
	}
	if scope, ok := token.Extra("scope").(string); ok {
		g.Scopes = strings.Fields(scope)
	}
	return g
}

// classify maps an oauth2 failure onto the auth taxonomy. Rejected grants are
// ErrTokenExchangeFailed; transport failures and 5xx answers are ErrUpstreamUnavailable.
func (e *OAuthExchanger) classify(grantType string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		e.logger.Warn().
			Str("grantType", grantType).
			Int("status", status).
			Str("errorCode", retrieveErr.ErrorCode).
			Msg("Token endpoint rejected grant")
		if status >= http.StatusInternalServerError {
			return fmt.Errorf("%w: token endpoint status %d: %w", domain.ErrUpstreamUnavailable, status, err)
		}
		return fmt.Errorf("%w: %s grant: %w", domain.ErrTokenExchangeFailed, grantType, err)
	}

	e.logger.Warn().Err(err).Str("grantType", grantType).Msg("Token endpoint unreachable")
	return fmt.Errorf("%w: %s grant: %w", domain.ErrUpstreamUnavailable, grantType, err)
}
