package domain

import "time"

// Profile is the single keyed document the profile store keeps per user.
// It carries the per-instance connection data and the JSON changes document.
type Profile struct {
	UserID    string                       `json:"user_id"`
	Instances map[Instance]InstanceProfile `json:"instances"`
	Changes   *ChangesDocument             `json:"changes,omitempty"`
	UpdatedAt time.Time                    `json:"updated_at"`
}

// InstanceProfile is the connection data for one side of the migration
type InstanceProfile struct {
	PortalID             string    `json:"portal_id"`
	AccessToken          string    `json:"access_token"`
	AccessTokenExpiresAt time.Time `json:"access_token_expires_at"`
	RefreshToken         string    `json:"refresh_token"`
	Scopes               []string  `json:"scopes,omitempty"`
}

// Instance returns the stored connection for an instance, zero value when absent
func (p *Profile) Instance(instance Instance) InstanceProfile {
	if p == nil || p.Instances == nil {
		return InstanceProfile{}
	}
	return p.Instances[instance]
}

// Session returns the stored tokens of one instance keyed by its session
func (p *Profile) Session(instance Instance) TenantSession {
	stored := p.Instance(instance)
	var userID string
	if p != nil {
		userID = p.UserID
	}
	return TenantSession{
		SessionKey:           SessionKey(userID, instance),
		AccessToken:          stored.AccessToken,
		AccessTokenExpiresAt: stored.AccessTokenExpiresAt,
		RefreshToken:         stored.RefreshToken,
	}
}

// ProfileUpdate is a partial write against a profile.
// Nil fields are left untouched; Instances entries only overwrite their non-empty fields.
type ProfileUpdate struct {
	Instances map[Instance]InstanceUpdate

	// Changes replaces the changes document. When ExpectedRevision is set the write only
	// succeeds if the stored document still carries that revision.
	Changes          *ChangesDocument
	ExpectedRevision *int64
}

// InstanceUpdate lists the connection fields to overwrite for one instance
type InstanceUpdate struct {
	PortalID             *string
	AccessToken          *string
	AccessTokenExpiresAt *time.Time
	RefreshToken         *string
	Scopes               []string

	// Clear wipes every stored field of the instance (uninstall)
	Clear bool
}

// Apply merges an InstanceUpdate into a stored instance profile
func (u InstanceUpdate) Apply(p InstanceProfile) InstanceProfile {
	if u.Clear {
		return InstanceProfile{}
	}
	if u.PortalID != nil {
		p.PortalID = *u.PortalID
	}
	if u.AccessToken != nil {
		p.AccessToken = *u.AccessToken
	}
	if u.AccessTokenExpiresAt != nil {
		p.AccessTokenExpiresAt = *u.AccessTokenExpiresAt
	}
	if u.RefreshToken != nil {
		p.RefreshToken = *u.RefreshToken
	}
	if u.Scopes != nil {
		p.Scopes = append([]string(nil), u.Scopes...)
	}
	return p
}
