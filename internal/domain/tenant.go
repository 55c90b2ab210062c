package domain

import (
	"context"
	"fmt"
	"strings"
)

// Instance identifies one side of a migration
type Instance string

const (
	InstanceSource Instance = "source"
	InstanceTarget Instance = "target"
)

// Instances lists both sides in a stable order
var Instances = []Instance{InstanceSource, InstanceTarget}

// ParseInstance validates an instance name coming from a request path or stored profile
func ParseInstance(s string) (Instance, error) {
	switch Instance(strings.ToLower(strings.TrimSpace(s))) {
	case InstanceSource:
		return InstanceSource, nil
	case InstanceTarget:
		return InstanceTarget, nil
	}
	return "", fmt.Errorf("unknown instance %q", s)
}

// Tenant is one authenticated connection to a CRM account, owned by a user
type Tenant struct {
	UserID   string
	Instance Instance
}

// SessionKey composes the token cache key for a tenant as "{session}_{instance}"
func (t Tenant) SessionKey() string {
	return SessionKey(t.UserID, t.Instance)
}

// SessionKey composes a dual-instance session key
func SessionKey(userID string, instance Instance) string {
	return userID + "_" + string(instance)
}

// ParseSessionKey splits a session key back into its tenant. The instance is the
// suffix after the last "_", so user ids may themselves contain underscores.
func ParseSessionKey(key string) (Tenant, error) {
	i := strings.LastIndex(key, "_")
	if i <= 0 {
		return Tenant{}, fmt.Errorf("malformed session key %q", key)
	}
	instance, err := ParseInstance(key[i+1:])
	if err != nil {
		return Tenant{}, fmt.Errorf("malformed session key %q: %w", key, err)
	}
	return Tenant{UserID: key[:i], Instance: instance}, nil
}

func (t Tenant) String() string {
	return t.SessionKey()
}

// contextKey is a type for context keys to avoid collisions
type contextKey string

const userIDKey contextKey = "user_id"

// WithUserID stores the acting user in the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserIDFromContext returns the acting user, or "" when none was set
func GetUserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}
