package application

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"crm-schema-migrator/internal/domain"
	"crm-schema-migrator/internal/infrastructure/cache"
	"crm-schema-migrator/internal/infrastructure/repository/repofake"

	"github.com/rs/zerolog"
)

const testUser = "user-1"

// fakeExchanger hands out access tokens derived from the refresh token: "rt-source"
// becomes "at-source-<n>".
type fakeExchanger struct {
	refreshCalls atomic.Int32
	codeCalls    atomic.Int32
	expiresIn    time.Duration

	// gate, when set, blocks Refresh until it is closed; entered is signalled first
	gate    chan struct{}
	entered chan struct{}

	refreshErr error
}

func newFakeExchanger() *fakeExchanger {
	return &fakeExchanger{expiresIn: time.Hour}
}

func (f *fakeExchanger) ExchangeCode(_ context.Context, code string) (*domain.TokenGrant, error) {
	f.codeCalls.Add(1)
	if code == "bad" {
		return nil, domain.ErrTokenExchangeFailed
	}
	return &domain.TokenGrant{
		AccessToken:  "at-" + code + "-0",
		RefreshToken: "rt-" + code,
		ExpiresIn:    f.expiresIn,
		Scopes:       []string{"crm.schemas.contacts.read"},
	}, nil
}

func (f *fakeExchanger) Refresh(_ context.Context, refreshToken string) (*domain.TokenGrant, error) {
	n := f.refreshCalls.Add(1)
	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &domain.TokenGrant{
		AccessToken: fmt.Sprintf("at-%s-%d", strings.TrimPrefix(refreshToken, "rt-"), n),
		ExpiresIn:   f.expiresIn,
	}, nil
}

// fakeCRM keeps one property table per tenant; the tenant is read off the access token
type fakeCRM struct {
	mu    sync.Mutex
	props map[string]map[string][]domain.PropertyDefinition

	listCalls   int
	getCalls    int
	createCalls int
	created     []domain.PropertyCreate

	// queued errors are returned by the next calls, one per call
	listErrs   []error
	getErrs    []error
	createErrs []error

	// onCreate runs after a successful create
	onCreate func()
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{props: map[string]map[string][]domain.PropertyDefinition{}}
}

func tenantOf(token string) string {
	if strings.HasPrefix(token, "at-source") {
		return "source"
	}
	return "target"
}

func (f *fakeCRM) add(tenant, objectType string, defs ...domain.PropertyDefinition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.props[tenant] == nil {
		f.props[tenant] = map[string][]domain.PropertyDefinition{}
	}
	f.props[tenant][objectType] = append(f.props[tenant][objectType], defs...)
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *fakeCRM) ListProperties(_ context.Context, token, objectType string) ([]domain.PropertyDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if err := pop(&f.listErrs); err != nil {
		return nil, err
	}
	defs := f.props[tenantOf(token)][objectType]
	return append([]domain.PropertyDefinition(nil), defs...), nil
}

func (f *fakeCRM) GetProperty(_ context.Context, token, objectType, name string) (*domain.PropertyDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if err := pop(&f.getErrs); err != nil {
		return nil, err
	}
	for _, d := range f.props[tenantOf(token)][objectType] {
		if d.Name == name {
			return &d, nil
		}
	}
	return nil, fmt.Errorf("GET %s/%s: %w", objectType, name, domain.ErrPropertyNotFound)
}

func (f *fakeCRM) CreateProperty(_ context.Context, token, objectType string, p domain.PropertyCreate) (*domain.PropertyDefinition, error) {
	f.mu.Lock()
	f.createCalls++
	if err := pop(&f.createErrs); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	tenant := tenantOf(token)
	for _, d := range f.props[tenant][objectType] {
		if d.Name == p.Name {
			f.mu.Unlock()
			return nil, fmt.Errorf("property %s already exists: %w", p.Name, domain.ErrAlreadyExists)
		}
	}
	def := domain.PropertyDefinition{ObjectType: objectType, Name: p.Name, Label: p.Label, Type: p.Type, FieldType: p.FieldType, GroupName: p.GroupName}
	if f.props[tenant] == nil {
		f.props[tenant] = map[string][]domain.PropertyDefinition{}
	}
	f.props[tenant][objectType] = append(f.props[tenant][objectType], def)
	f.created = append(f.created, p)
	hook := f.onCreate
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return &def, nil
}

// recordingMetrics counts calls so tests can assert on what was observed
type recordingMetrics struct {
	mu          sync.Mutex
	outcomes    map[domain.Outcome]int
	rateLimited int
	refreshes   map[bool]int
	lookups     map[bool]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		outcomes:  map[domain.Outcome]int{},
		refreshes: map[bool]int{},
		lookups:   map[bool]int{},
	}
}

func (m *recordingMetrics) RecordOutcome(_ string, o domain.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[o]++
}

func (m *recordingMetrics) RecordRateLimited(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimited++
}

func (m *recordingMetrics) RecordTokenRefresh(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes[ok]++
}

func (m *recordingMetrics) RecordCatalogLookup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups[hit]++
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.PropertyOutcome
}

func (p *recordingPublisher) Publish(_ context.Context, o domain.PropertyOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, o)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	clock      *testClock
	repo       *repofake.FakeProfileRepo
	crm        *fakeCRM
	exchanger  *fakeExchanger
	tokenCache *cache.MemoryCache[string]
	metrics    *recordingMetrics
	events     *recordingPublisher

	tokens     *TokenService
	catalog    *CatalogService
	mappings   *MappingService
	migrations *MigrationService

	sleeps []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	h := &harness{
		clock:      clock,
		repo:       repofake.NewFakeProfileRepo(),
		crm:        newFakeCRM(),
		exchanger:  newFakeExchanger(),
		tokenCache: cache.NewMemoryCacheWithClock[string](clock.Now),
		metrics:    newRecordingMetrics(),
		events:     &recordingPublisher{},
	}
	logger := zerolog.Nop()

	h.tokens = NewTokenService(h.tokenCache, h.exchanger, h.repo, h.metrics, logger)
	h.tokens.now = clock.Now
	h.catalog = NewCatalogService(h.crm, h.tokens, cache.NewMemoryCacheWithClock[[]domain.PropertyDefinition](clock.Now), 10*time.Minute, h.metrics, logger)
	h.mappings = NewMappingService(h.repo, h.catalog, logger)
	h.mappings.now = clock.Now

	backoff := NewBackoff(2, 10*time.Millisecond, 40*time.Millisecond)
	backoff.jitter = func(ceiling time.Duration) time.Duration { return ceiling }
	h.migrations = NewMigrationService(h.mappings, h.catalog, h.tokens, h.crm, h.events, h.metrics,
		MigrationConfig{PropertyDelay: 5 * time.Millisecond, Backoff: backoff}, logger)
	h.migrations.now = clock.Now
	h.migrations.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	return h
}

// connect stores refresh tokens for both instances of the test user
func (h *harness) connect() {
	h.repo.Put(&domain.Profile{
		UserID: testUser,
		Instances: map[domain.Instance]domain.InstanceProfile{
			domain.InstanceSource: {RefreshToken: "rt-source"},
			domain.InstanceTarget: {RefreshToken: "rt-target"},
		},
	})
}

func sourceTenant() domain.Tenant {
	return domain.Tenant{UserID: testUser, Instance: domain.InstanceSource}
}

func targetTenant() domain.Tenant {
	return domain.Tenant{UserID: testUser, Instance: domain.InstanceTarget}
}
