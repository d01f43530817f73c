package domain

import "time"

// Contact is a single addressable person. The pipeline only reads contacts;
// list management lives elsewhere.
type Contact struct {
	ID             string     `json:"id" db:"id"`
	Email          string     `json:"email" db:"email"`
	Name           string     `json:"name" db:"name"`
	Tags           []string   `json:"tags" db:"tags"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at,omitempty" db:"unsubscribed_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// IsUnsubscribed reports whether the contact has opted out.
func (c *Contact) IsUnsubscribed() bool {
	return c.UnsubscribedAt != nil
}

// HasTag reports whether tag is one of the contact's tags.
func (c *Contact) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
