package repofake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crm-schema-migrator/internal/domain"
	"crm-schema-migrator/internal/ports"
)

var _ ports.ProfileRepository = (*FakeProfileRepo)(nil)

// FakeProfileRepo is an in-memory ProfileRepository with the same revision semantics as
// the Mongo implementation. ReadErr/UpdateErr force failures.
type FakeProfileRepo struct {
	lock     sync.RWMutex
	profiles map[string]*domain.Profile

	ReadErr   error
	UpdateErr error

	// BeforeUpdate runs inside UpdateProfile before the revision check, so tests can
	// interleave a competing writer.
	BeforeUpdate func(userID string)

	Reads   int
	Updates int
}

func NewFakeProfileRepo() *FakeProfileRepo {
	return &FakeProfileRepo{profiles: make(map[string]*domain.Profile)}
}

// Put stores a profile as-is, replacing any existing one
func (r *FakeProfileRepo) Put(p *domain.Profile) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.profiles[p.UserID] = cloneProfile(p)
}

func (r *FakeProfileRepo) ReadProfile(_ context.Context, userID string) (*domain.Profile, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.Reads++
	if r.ReadErr != nil {
		return nil, r.ReadErr
	}
	p, ok := r.profiles[userID]
	if !ok {
		return nil, nil
	}
	return cloneProfile(p), nil
}

func (r *FakeProfileRepo) UpdateProfile(_ context.Context, userID string, update domain.ProfileUpdate) error {
	if r.BeforeUpdate != nil {
		r.BeforeUpdate(userID)
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	r.Updates++
	if r.UpdateErr != nil {
		return r.UpdateErr
	}

	p, ok := r.profiles[userID]
	if !ok {
		if update.ExpectedRevision != nil && *update.ExpectedRevision != 0 {
			return fmt.Errorf("%w: profile %s", domain.ErrRevisionConflict, userID)
		}
		p = &domain.Profile{
			UserID:    userID,
			Instances: map[domain.Instance]domain.InstanceProfile{},
			Changes:   domain.NewChangesDocument(),
		}
	}

	current := int64(0)
	if p.Changes != nil {
		current = p.Changes.Revision
	}
	if update.Changes != nil && update.ExpectedRevision != nil && *update.ExpectedRevision != current {
		return fmt.Errorf("%w: profile %s", domain.ErrRevisionConflict, userID)
	}

	for instance, u := range update.Instances {
		if u.Clear {
			delete(p.Instances, instance)
			continue
		}
		p.Instances[instance] = u.Apply(p.Instances[instance])
	}
	if update.Changes != nil {
		changes := update.Changes.Clone()
		changes.SchemaVersion = domain.ChangesSchemaVersion
		changes.Upgraded = false
		changes.Revision = current + 1
		p.Changes = changes
	}
	p.UpdatedAt = time.Now()

	r.profiles[userID] = p
	return nil
}

// Changes returns a copy of the stored changes document, nil when the user has no profile
func (r *FakeProfileRepo) Changes(userID string) *domain.ChangesDocument {
	r.lock.RLock()
	defer r.lock.RUnlock()
	p, ok := r.profiles[userID]
	if !ok || p.Changes == nil {
		return nil
	}
	return p.Changes.Clone()
}

func cloneProfile(p *domain.Profile) *domain.Profile {
	cp := &domain.Profile{
		UserID:    p.UserID,
		Instances: make(map[domain.Instance]domain.InstanceProfile, len(p.Instances)),
		UpdatedAt: p.UpdatedAt,
	}
	for k, v := range p.Instances {
		v.Scopes = append([]string(nil), v.Scopes...)
		cp.Instances[k] = v
	}
	if p.Changes != nil {
		cp.Changes = p.Changes.Clone()
	} else {
		cp.Changes = domain.NewChangesDocument()
	}
	return cp
}
