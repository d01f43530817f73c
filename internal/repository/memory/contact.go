package memory

import (
	"context"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/segmentation"
	"github.com/ignite/audience-dispatch/internal/service/campaign"
)

// ContactRepo implements campaign.ContactReader and segmentation.ContactQuerier
// by evaluating rules against every stored contact.
type ContactRepo struct{ s *Store }

var (
	_ campaign.ContactReader       = (*ContactRepo)(nil)
	_ segmentation.ContactQuerier = (*ContactRepo)(nil)
)

func (r *ContactRepo) GetMany(_ context.Context, ids []string) ([]domain.Contact, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Contact, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if c, ok := r.s.contacts[id]; ok {
			cp := *c
			cp.Tags = append([]string(nil), c.Tags...)
			out = append(out, cp)
		}
	}
	return out, nil
}

func (r *ContactRepo) CountContacts(ctx context.Context, q segmentation.ContactQuery) (int, error) {
	ids, err := r.ContactIDs(ctx, q)
	return len(ids), err
}

func (r *ContactRepo) ContactIDs(_ context.Context, q segmentation.ContactQuery) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	members := r.s.static[q.StaticAudienceID]
	var out []string
	for _, id := range r.s.contactOrder {
		c := r.s.contacts[id]
		_, static := members[id]
		if static || segmentation.Matches(q.Rules, c) {
			out = append(out, id)
		}
	}
	return out, nil
}

// AudienceRepo implements segmentation.AudienceRepository.
type AudienceRepo struct{ s *Store }

var _ segmentation.AudienceRepository = (*AudienceRepo)(nil)

func (r *AudienceRepo) Get(_ context.Context, id string) (*domain.Audience, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.audiences[id]
	if !ok {
		return nil, segmentation.ErrAudienceNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *AudienceRepo) UpdateMemberCount(_ context.Context, id string, count int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.audiences[id]
	if !ok {
		return segmentation.ErrAudienceNotFound
	}
	a.MemberCount = count
	return nil
}
