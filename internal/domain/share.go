package domain

import "time"

// SharedConfiguration is a modified page published under a short share ID.
type SharedConfiguration struct {
	ID           string     `json:"id"`
	OriginalURL  string     `json:"original_url"`
	ModifiedHTML string     `json:"modified_html"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	ViewCount    int        `json:"view_count"`
}

// Expired reports whether the share has passed its expiry, if it has one.
func (c *SharedConfiguration) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}
