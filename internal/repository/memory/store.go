// Package memory provides in-process implementations of every storage port.
//
// A Store backs unit tests and the server's -store=memory mode. All
// repositories handed out by one Store share a single mutex, which makes
// each operation (including compare-and-set) atomic. Values are copied on
// the way in and out so callers can never alias stored state.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/ignite/audience-dispatch/internal/domain"
)

// Store holds all in-memory state.
type Store struct {
	mu sync.Mutex

	contacts     map[string]*domain.Contact
	contactOrder []string
	audiences    map[string]*domain.Audience
	static       map[string]map[string]struct{} // audience id -> contact ids
	campaigns    map[string]*domain.Campaign
	recipients   map[string]map[string]*domain.CampaignRecipient // campaign id -> contact id
	recipOrder   map[string][]string
	events       []domain.CampaignEvent
	suppressions map[string]*domain.Suppression
	settings     *domain.Settings

	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		contacts:     make(map[string]*domain.Contact),
		audiences:    make(map[string]*domain.Audience),
		static:       make(map[string]map[string]struct{}),
		campaigns:    make(map[string]*domain.Campaign),
		recipients:   make(map[string]map[string]*domain.CampaignRecipient),
		recipOrder:   make(map[string][]string),
		suppressions: make(map[string]*domain.Suppression),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// PutContact inserts or replaces a contact.
func (s *Store) PutContact(c domain.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[c.ID]; !ok {
		s.contactOrder = append(s.contactOrder, c.ID)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	c.Tags = append([]string(nil), c.Tags...)
	s.contacts[c.ID] = &c
}

// DeleteContact removes a contact and its static memberships. Recipient
// snapshots keep their copied address.
func (s *Store) DeleteContact(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contacts, id)
	for i, cid := range s.contactOrder {
		if cid == id {
			s.contactOrder = append(s.contactOrder[:i], s.contactOrder[i+1:]...)
			break
		}
	}
	for _, m := range s.static {
		delete(m, id)
	}
}

// PutAudience inserts or replaces an audience.
func (s *Store) PutAudience(a domain.Audience) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	a.UpdatedAt = s.now()
	s.audiences[a.ID] = &a
}

// AddStaticMembers adds contacts to an audience's static membership.
func (s *Store) AddStaticMembers(audienceID string, contactIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.static[audienceID]
	if !ok {
		m = make(map[string]struct{})
		s.static[audienceID] = m
	}
	for _, id := range contactIDs {
		m[id] = struct{}{}
	}
}

// Campaigns returns the campaign repository.
func (s *Store) Campaigns() *CampaignRepo { return &CampaignRepo{s: s} }

// Recipients returns the recipient repository.
func (s *Store) Recipients() *RecipientRepo { return &RecipientRepo{s: s} }

// Contacts returns the contact repository.
func (s *Store) Contacts() *ContactRepo { return &ContactRepo{s: s} }

// Audiences returns the audience repository.
func (s *Store) Audiences() *AudienceRepo { return &AudienceRepo{s: s} }

// Events returns the event repository.
func (s *Store) Events() *EventRepo { return &EventRepo{s: s} }

// Suppressions returns the suppression repository.
func (s *Store) Suppressions() *SuppressionRepo { return &SuppressionRepo{s: s} }

// Settings returns the settings repository.
func (s *Store) Settings() *SettingsRepo { return &SettingsRepo{s: s} }

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func sortByCreatedDesc(cs []domain.Campaign) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].CreatedAt.After(cs[j].CreatedAt) })
}
