package entity

import (
	"time"

	"crm-schema-migrator/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MongoProfileDoc represents a tenant profile in MongoDB.
// Changes holds the JSON changes document; ChangesRevision is its compare-and-swap token.
type MongoProfileDoc struct {
	ID              primitive.ObjectID          `bson:"_id,omitempty"`
	UserID          string                      `bson:"userId"`
	Instances       map[string]MongoInstanceDoc `bson:"instances,omitempty"`
	Changes         string                      `bson:"changes,omitempty"`
	ChangesRevision int64                       `bson:"changesRevision"`
	CreatedAt       time.Time                   `bson:"createdAt"`
	UpdatedAt       time.Time                   `bson:"updatedAt"`
}

// MongoInstanceDoc is the stored connection of one instance
type MongoInstanceDoc struct {
	PortalID             string    `bson:"portalId,omitempty"`
	AccessToken          string    `bson:"accessToken,omitempty"`
	AccessTokenExpiresAt time.Time `bson:"accessTokenExpiresAt,omitempty"`
	RefreshToken         string    `bson:"refreshToken,omitempty"`
	Scopes               []string  `bson:"scopes,omitempty"`
}

// ToDomain converts the MongoDB document to a domain profile
func (d *MongoProfileDoc) ToDomain() (*domain.Profile, error) {
	changes, err := domain.DecodeChanges(d.Changes)
	if err != nil {
		return nil, err
	}
	changes.Revision = d.ChangesRevision

	p := &domain.Profile{
		UserID:    d.UserID,
		Instances: make(map[domain.Instance]domain.InstanceProfile, len(d.Instances)),
		Changes:   changes,
		UpdatedAt: d.UpdatedAt,
	}
	for name, inst := range d.Instances {
		instance, err := domain.ParseInstance(name)
		if err != nil {
			continue
		}
		p.Instances[instance] = domain.InstanceProfile{
			PortalID:             inst.PortalID,
			AccessToken:          inst.AccessToken,
			AccessTokenExpiresAt: inst.AccessTokenExpiresAt,
			RefreshToken:         inst.RefreshToken,
			Scopes:               inst.Scopes,
		}
	}
	return p, nil
}

// InstanceFieldUpdates flattens an InstanceUpdate into dotted $set paths under
// instances.<instance>
func InstanceFieldUpdates(instance domain.Instance, u domain.InstanceUpdate) map[string]any {
	prefix := "instances." + string(instance) + "."
	set := map[string]any{}
	if u.PortalID != nil {
		set[prefix+"portalId"] = *u.PortalID
	}
	if u.AccessToken != nil {
		set[prefix+"accessToken"] = *u.AccessToken
	}
	if u.AccessTokenExpiresAt != nil {
		set[prefix+"accessTokenExpiresAt"] = *u.AccessTokenExpiresAt
	}
	if u.RefreshToken != nil {
		set[prefix+"refreshToken"] = *u.RefreshToken
	}
	if u.Scopes != nil {
		set[prefix+"scopes"] = u.Scopes
	}
	return set
}
