package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm-schema-migrator/internal/domain"
	"crm-schema-migrator/internal/ports"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// accessTokenLifetimeShare is the fraction of a token's real lifetime it is cached for
const accessTokenLifetimeShare = 0.75

// TokenService keeps per-session OAuth tokens valid. Access tokens live in the cache for
// at most three quarters of their lifetime; refresh tokens are kept without expiry.
type TokenService struct {
	cache     ports.Cache[string]
	exchanger ports.TokenExchanger
	profiles  ports.ProfileRepository
	metrics   ports.MigrationMetrics
	group     singleflight.Group
	now       func() time.Time
	logger    zerolog.Logger
}

// NewTokenService creates a new token service. metrics may be nil.
func NewTokenService(
	cache ports.Cache[string],
	exchanger ports.TokenExchanger,
	profiles ports.ProfileRepository,
	metrics ports.MigrationMetrics,
	logger zerolog.Logger,
) *TokenService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &TokenService{
		cache:     cache,
		exchanger: exchanger,
		profiles:  profiles,
		metrics:   metrics,
		now:       time.Now,
		logger:    logger,
	}
}

// SeedInput rehydrates a session after a restart or a fresh authorization
type SeedInput struct {
	RefreshToken string
	AccessToken  string
	ExpiresAt    time.Time
}

func accessKey(sessionKey string) string  { return "access:" + sessionKey }
func refreshKey(sessionKey string) string { return "refresh:" + sessionKey }

// GetAccessToken returns a valid access token for the session, refreshing it when the
// cached one is gone. Concurrent misses for the same session share one refresh call.
func (s *TokenService) GetAccessToken(ctx context.Context, sessionKey string) (string, error) {
	if token, err := s.cache.Get(ctx, accessKey(sessionKey)); err == nil && token != "" {
		return token, nil
	}

	// the refresh keeps running for the other waiters if this caller gives up
	ch := s.group.DoChan(sessionKey, func() (any, error) {
		return s.refresh(context.WithoutCancel(ctx), sessionKey)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (s *TokenService) refresh(ctx context.Context, sessionKey string) (string, error) {
	// another flight may have finished between our miss and this one starting
	if token, err := s.cache.Get(ctx, accessKey(sessionKey)); err == nil && token != "" {
		return token, nil
	}

	refreshToken, err := s.cache.Get(ctx, refreshKey(sessionKey))
	if err != nil || refreshToken == "" {
		// cold session: the stored access token may still be good
		token, err := s.seedColdSession(ctx, sessionKey)
		if err != nil || token != "" {
			return token, err
		}
		if refreshToken, err = s.cache.Get(ctx, refreshKey(sessionKey)); err != nil || refreshToken == "" {
			return "", domain.ErrNoRefreshToken
		}
	}

	grant, err := s.exchanger.Refresh(ctx, refreshToken)
	s.metrics.RecordTokenRefresh(err == nil)
	if err != nil {
		s.logger.Error().Err(err).Str("session", sessionKey).Msg("Failed to refresh access token")
		return "", fmt.Errorf("failed to refresh access token: %w", err)
	}

	issuedAt := s.now()
	if ttl := cacheLifetime(grant.ExpiresIn); ttl > 0 {
		if err := s.cache.Set(ctx, accessKey(sessionKey), grant.AccessToken, ttl); err != nil {
			s.logger.Warn().Err(err).Str("session", sessionKey).Msg("Failed to cache access token")
		}
	}

	s.writeBack(ctx, sessionKey, grant.AccessToken, grant.ExpiresAt(issuedAt))

	s.logger.Debug().
		Str("session", sessionKey).
		Dur("expiresIn", grant.ExpiresIn).
		Msg("Access token refreshed")
	return grant.AccessToken, nil
}

// seedColdSession loads the user's stored tokens into the cache and returns the access
// token when one was seeded
func (s *TokenService) seedColdSession(ctx context.Context, sessionKey string) (string, error) {
	tenant, err := domain.ParseSessionKey(sessionKey)
	if err != nil || s.profiles == nil {
		return "", domain.ErrNoRefreshToken
	}
	if err := s.SeedFromProfile(ctx, tenant.UserID); err != nil {
		s.logger.Error().Err(err).Str("session", sessionKey).Msg("Failed to seed session from profile")
		return "", err
	}
	if token, err := s.cache.Get(ctx, accessKey(sessionKey)); err == nil && token != "" {
		s.logger.Debug().Str("session", sessionKey).Msg("Reusing stored access token")
		return token, nil
	}
	return "", nil
}

// writeBack stores a refreshed access token on the profile. Failures only cost a
// refresh after the next restart, so they are logged and swallowed.
func (s *TokenService) writeBack(ctx context.Context, sessionKey, accessToken string, expiresAt time.Time) {
	tenant, err := domain.ParseSessionKey(sessionKey)
	if err != nil || s.profiles == nil {
		return
	}
	err = s.profiles.UpdateProfile(ctx, tenant.UserID, domain.ProfileUpdate{
		Instances: map[domain.Instance]domain.InstanceUpdate{
			tenant.Instance: {AccessToken: &accessToken, AccessTokenExpiresAt: &expiresAt},
		},
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("session", sessionKey).Msg("Failed to persist refreshed access token")
	}
}

// SeedTokens rehydrates the cache for a session. The access token is only cached when it
// still has lifetime left, for three quarters of what remains.
func (s *TokenService) SeedTokens(ctx context.Context, sessionKey string, in SeedInput) error {
	if in.RefreshToken != "" {
		if err := s.cache.Set(ctx, refreshKey(sessionKey), in.RefreshToken, 0); err != nil {
			return fmt.Errorf("failed to seed refresh token: %w", err)
		}
	}
	if in.AccessToken == "" || in.ExpiresAt.IsZero() {
		return nil
	}
	ttl := cacheLifetime(in.ExpiresAt.Sub(s.now()))
	if ttl <= 0 {
		return nil
	}
	if err := s.cache.Set(ctx, accessKey(sessionKey), in.AccessToken, ttl); err != nil {
		return fmt.Errorf("failed to seed access token: %w", err)
	}
	return nil
}

// SeedFromProfile seeds both instances of a user from the stored profile
func (s *TokenService) SeedFromProfile(ctx context.Context, userID string) error {
	profile, err := s.profiles.ReadProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistenceFailed, err)
	}
	if profile == nil {
		return nil
	}
	for _, instance := range domain.Instances {
		session := profile.Session(instance)
		if session.RefreshToken == "" && session.AccessToken == "" {
			continue
		}
		err := s.SeedTokens(ctx, session.SessionKey, SeedInput{
			RefreshToken: session.RefreshToken,
			AccessToken:  session.AccessToken,
			ExpiresAt:    session.AccessTokenExpiresAt,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// CompleteAuthorization trades an authorization code for tokens, stores them on the
// profile and seeds the session.
func (s *TokenService) CompleteAuthorization(ctx context.Context, tenant domain.Tenant, code string) error {
	grant, err := s.exchanger.ExchangeCode(ctx, code)
	if err != nil {
		s.logger.Error().Err(err).Str("session", tenant.SessionKey()).Msg("Failed to exchange authorization code")
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	expiresAt := grant.ExpiresAt(s.now())
	update := domain.InstanceUpdate{
		AccessToken:          &grant.AccessToken,
		AccessTokenExpiresAt: &expiresAt,
		Scopes:               grant.Scopes,
	}
	if grant.RefreshToken != "" {
		update.RefreshToken = &grant.RefreshToken
	}
	err = s.profiles.UpdateProfile(ctx, tenant.UserID, domain.ProfileUpdate{
		Instances: map[domain.Instance]domain.InstanceUpdate{tenant.Instance: update},
	})
	if err != nil {
		s.logger.Error().Err(err).Str("session", tenant.SessionKey()).Msg("Failed to store authorization")
		return fmt.Errorf("%w: %w", domain.ErrPersistenceFailed, err)
	}

	s.group.Forget(tenant.SessionKey())
	if err := s.cache.Delete(ctx, accessKey(tenant.SessionKey())); err != nil {
		s.logger.Warn().Err(err).Str("session", tenant.SessionKey()).Msg("Failed to drop stale access token")
	}

	s.logger.Info().
		Str("userId", tenant.UserID).
		Str("instance", string(tenant.Instance)).
		Strs("scopes", grant.Scopes).
		Msg("Authorization completed")

	return s.SeedTokens(ctx, tenant.SessionKey(), SeedInput{
		RefreshToken: grant.RefreshToken,
		AccessToken:  grant.AccessToken,
		ExpiresAt:    expiresAt,
	})
}

// DropAccessToken forgets the cached access token only, forcing the next call to refresh
func (s *TokenService) DropAccessToken(ctx context.Context, sessionKey string) error {
	s.group.Forget(sessionKey)
	return s.cache.Delete(ctx, accessKey(sessionKey))
}

// Invalidate forgets both tokens of a session
func (s *TokenService) Invalidate(ctx context.Context, sessionKey string) error {
	s.group.Forget(sessionKey)
	return errors.Join(
		s.cache.Delete(ctx, accessKey(sessionKey)),
		s.cache.Delete(ctx, refreshKey(sessionKey)),
	)
}

// WithAccessToken runs fn with a valid access token. When fn reports an expired token the
// access token is dropped, refreshed and fn retried exactly once; a second rejection is
// domain.ErrUnauthorized.
func (s *TokenService) WithAccessToken(ctx context.Context, sessionKey string, fn func(ctx context.Context, accessToken string) error) error {
	token, err := s.GetAccessToken(ctx, sessionKey)
	if err != nil {
		return err
	}
	err = fn(ctx, token)
	if !errors.Is(err, domain.ErrTokenExpired) {
		return err
	}

	s.logger.Debug().Str("session", sessionKey).Msg("Access token rejected, refreshing once")
	if dropErr := s.DropAccessToken(ctx, sessionKey); dropErr != nil {
		s.logger.Warn().Err(dropErr).Str("session", sessionKey).Msg("Failed to drop rejected access token")
	}
	token, err = s.GetAccessToken(ctx, sessionKey)
	if err != nil {
		return err
	}
	err = fn(ctx, token)
	if errors.Is(err, domain.ErrTokenExpired) {
		return fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}
	return err
}

// cacheLifetime is how long a token with the given remaining lifetime may be cached
func cacheLifetime(remaining time.Duration) time.Duration {
	if remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining) * accessTokenLifetimeShare)
}

type noopMetrics struct{}

func (noopMetrics) RecordOutcome(string, domain.Outcome) {}
func (noopMetrics) RecordRateLimited(string)             {}
func (noopMetrics) RecordTokenRefresh(bool)              {}
func (noopMetrics) RecordCatalogLookup(bool)             {}
