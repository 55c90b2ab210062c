package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crm-schema-migrator/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenService_RefreshOnMissAndCacheHit(t *testing.T) {
	h := newHarness(t)
	h.connect()
	ctx := context.Background()
	key := sourceTenant().SessionKey()

	token, err := h.tokens.GetAccessToken(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "at-source-1", token)

	token, err = h.tokens.GetAccessToken(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "at-source-1", token)
	assert.Equal(t, int32(1), h.exchanger.refreshCalls.Load())
	assert.Equal(t, 1, h.metrics.refreshes[true])
}

func TestTokenService_CachedLifetimeIsAtMostThreeQuarters(t *testing.T) {
	h := newHarness(t)
	h.connect()
	ctx := context.Background()
	key := sourceTenant().SessionKey()

	_, err := h.tokens.GetAccessToken(ctx, key)
	require.NoError(t, err)

	ttl, err := h.tokenCache.TTL(ctx, accessKey(key))
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 45*time.Minute)

	// just past three quarters of the lifetime the token is refreshed again
	h.clock.Advance(45*time.Minute + time.Second)
	token, err := h.tokens.GetAccessToken(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "at-source-2", token)
}

func TestTokenService_RefreshWritesBackAccessTokenOnly(t *testing.T) {
	h := newHarness(t)
	h.connect()
	ctx := context.Background()

	_, err := h.tokens.GetAccessToken(ctx, targetTenant().SessionKey())
	require.NoError(t, err)

	profile, err := h.repo.ReadProfile(ctx, testUser)
	require.NoError(t, err)
	target := profile.Instance(domain.InstanceTarget)
	assert.Equal(t, "at-target-1", target.AccessToken)
	assert.Equal(t, "rt-target", target.RefreshToken)
	assert.Equal(t, h.clock.Now().Add(time.Hour), target.AccessTokenExpiresAt)
}

func TestTokenService_NoRefreshToken(t *testing.T) {
	h := newHarness(t)

	_, err := h.tokens.GetAccessToken(context.Background(), sourceTenant().SessionKey())
	assert.ErrorIs(t, err, domain.ErrNoRefreshToken)
	assert.Equal(t, int32(0), h.exchanger.refreshCalls.Load())
}

func TestTokenService_RefreshFailure(t *testing.T) {
	h := newHarness(t)
	h.connect()
	h.exchanger.refreshErr = domain.ErrTokenExchangeFailed

	_, err := h.tokens.GetAccessToken(context.Background(), sourceTenant().SessionKey())
	assert.ErrorIs(t, err, domain.ErrTokenExchangeFailed)
	assert.Equal(t, 1, h.metrics.refreshes[false])
}

func TestTokenService_ConcurrentMissesShareOneRefresh(t *testing.T) {
	h := newHarness(t)
	h.connect()
	h.exchanger.gate = make(chan struct{})
	h.exchanger.entered = make(chan struct{}, 1)
	key := sourceTenant().SessionKey()

	const callers = 16
	tokens := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], errs[i] = h.tokens.GetAccessToken(context.Background(), key)
		}()
	}

	<-h.exchanger.entered
	close(h.exchanger.gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "at-source-1", tokens[i])
	}
	assert.Equal(t, int32(1), h.exchanger.refreshCalls.Load())
}

func TestTokenService_CallerCancellationDoesNotAbortSharedRefresh(t *testing.T) {
	h := newHarness(t)
	h.connect()
	h.exchanger.gate = make(chan struct{})
	h.exchanger.entered = make(chan struct{}, 1)
	key := sourceTenant().SessionKey()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := h.tokens.GetAccessToken(ctx, key)
		errCh <- err
	}()
	<-h.exchanger.entered
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(h.exchanger.gate)
	require.Eventually(t, func() bool {
		token, err := h.tokenCache.Get(context.Background(), accessKey(key))
		return err == nil && token == "at-source-1"
	}, time.Second, 5*time.Millisecond)
}

func TestTokenService_SeedTokens(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := targetTenant().SessionKey()

	err := h.tokens.SeedTokens(ctx, key, SeedInput{
		RefreshToken: "rt-target",
		AccessToken:  "at-seeded",
		ExpiresAt:    h.clock.Now().Add(40 * time.Minute),
	})
	require.NoError(t, err)

	ttl, err := h.tokenCache.TTL(ctx, accessKey(key))
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, 30*time.Minute)

	token, err := h.tokens.GetAccessToken(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "at-seeded", token)
	assert.Equal(t, int32(0), h.exchanger.refreshCalls.Load())
}

func TestTokenService_SeedSkipsExpiredAccessToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := targetTenant().SessionKey()

	err := h.tokens.SeedTokens(ctx, key, SeedInput{
		RefreshToken: "rt-target",
		AccessToken:  "at-stale",
		ExpiresAt:    h.clock.Now().Add(-time.Minute),
	})
	require.NoError(t, err)

	token, err := h.tokens.GetAccessToken(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "at-target-1", token)
}

func TestTokenService_SeedFromProfile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.repo.Put(&domain.Profile{
		UserID: testUser,
		Instances: map[domain.Instance]domain.InstanceProfile{
			domain.InstanceSource: {AccessToken: "at-stored", AccessTokenExpiresAt: h.clock.Now().Add(time.Hour), RefreshToken: "rt-source"},
		},
	})

	require.NoError(t, h.tokens.SeedFromProfile(ctx, testUser))

	token, err := h.tokens.GetAccessToken(ctx, sourceTenant().SessionKey())
	require.NoError(t, err)
	assert.Equal(t, "at-stored", token)

	refresh, err := h.tokenCache.Get(ctx, refreshKey(sourceTenant().SessionKey()))
	require.NoError(t, err)
	assert.Equal(t, "rt-source", refresh)
}

func TestTokenService_ColdSessionReusesStoredAccessToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.repo.Put(&domain.Profile{
		UserID: testUser,
		Instances: map[domain.Instance]domain.InstanceProfile{
			domain.InstanceSource: {AccessToken: "at-stored", AccessTokenExpiresAt: h.clock.Now().Add(time.Hour), RefreshToken: "rt-source"},
			domain.InstanceTarget: {RefreshToken: "rt-target"},
		},
	})

	token, err := h.tokens.GetAccessToken(ctx, sourceTenant().SessionKey())
	require.NoError(t, err)
	assert.Equal(t, "at-stored", token)
	assert.Equal(t, int32(0), h.exchanger.refreshCalls.Load())

	// the other instance of the user was seeded on the same read
	refresh, err := h.tokenCache.Get(ctx, refreshKey(targetTenant().SessionKey()))
	require.NoError(t, err)
	assert.Equal(t, "rt-target", refresh)
}

func TestTokenService_ColdSessionWithExpiredTokenRefreshes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.repo.Put(&domain.Profile{
		UserID: testUser,
		Instances: map[domain.Instance]domain.InstanceProfile{
			domain.InstanceSource: {AccessToken: "at-stale", AccessTokenExpiresAt: h.clock.Now().Add(-time.Minute), RefreshToken: "rt-source"},
		},
	})

	token, err := h.tokens.GetAccessToken(ctx, sourceTenant().SessionKey())
	require.NoError(t, err)
	assert.Equal(t, "at-source-1", token)
	assert.Equal(t, int32(1), h.exchanger.refreshCalls.Load())
}

func TestTokenService_ColdSessionProfileReadFailure(t *testing.T) {
	h := newHarness(t)
	h.repo.ReadErr = errors.New("mongo down")

	_, err := h.tokens.GetAccessToken(context.Background(), sourceTenant().SessionKey())
	assert.ErrorIs(t, err, domain.ErrPersistenceFailed)
	assert.Equal(t, int32(0), h.exchanger.refreshCalls.Load())
}

func TestTokenService_CompleteAuthorization(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.tokens.CompleteAuthorization(ctx, targetTenant(), "target"))

	profile, err := h.repo.ReadProfile(ctx, testUser)
	require.NoError(t, err)
	stored := profile.Instance(domain.InstanceTarget)
	assert.Equal(t, "rt-target", stored.RefreshToken)
	assert.Equal(t, "at-target-0", stored.AccessToken)
	assert.Equal(t, []string{"crm.schemas.contacts.read"}, stored.Scopes)

	token, err := h.tokens.GetAccessToken(ctx, targetTenant().SessionKey())
	require.NoError(t, err)
	assert.Equal(t, "at-target-0", token)

	err = h.tokens.CompleteAuthorization(ctx, targetTenant(), "bad")
	assert.ErrorIs(t, err, domain.ErrTokenExchangeFailed)
}

func TestTokenService_InvalidateDropsBothTokens(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	key := sourceTenant().SessionKey()
	require.NoError(t, h.tokens.SeedTokens(ctx, key, SeedInput{
		RefreshToken: "rt-source", AccessToken: "at-x", ExpiresAt: h.clock.Now().Add(time.Hour),
	}))

	require.NoError(t, h.tokens.Invalidate(ctx, key))

	_, err := h.tokens.GetAccessToken(ctx, key)
	assert.ErrorIs(t, err, domain.ErrNoRefreshToken)
}

func TestTokenService_WithAccessTokenRetriesOnceOnExpiry(t *testing.T) {
	h := newHarness(t)
	h.connect()
	ctx := context.Background()
	key := sourceTenant().SessionKey()

	var seen []string
	err := h.tokens.WithAccessToken(ctx, key, func(_ context.Context, token string) error {
		seen = append(seen, token)
		if len(seen) == 1 {
			return domain.ErrTokenExpired
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"at-source-1", "at-source-2"}, seen)
}

func TestTokenService_WithAccessTokenSecondExpiryIsUnauthorized(t *testing.T) {
	h := newHarness(t)
	h.connect()

	calls := 0
	err := h.tokens.WithAccessToken(context.Background(), sourceTenant().SessionKey(), func(context.Context, string) error {
		calls++
		return domain.ErrTokenExpired
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int32(2), h.exchanger.refreshCalls.Load())
}

func TestCacheLifetime(t *testing.T) {
	assert.Equal(t, 45*time.Minute, cacheLifetime(time.Hour))
	assert.Equal(t, time.Duration(0), cacheLifetime(0))
	assert.Equal(t, time.Duration(0), cacheLifetime(-time.Second))
}
