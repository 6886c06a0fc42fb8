package models

import (
	"fmt"
	"maps"
	"slices"
)

// Profile is a user's profile record.
//
// Avatar and CoverImage are stored under their own keys so that large
// encoded images do not bloat the profile record; they are merged back in
// when the profile is loaded.
type Profile struct {
	// ID is the unique identifier for the profile (UUID format).
	ID   string `json:"id"`
	Name string `json:"name"`

	// Email always equals the owning identity's email. It is re-asserted on
	// every load and save.
	Email string `json:"email"`

	Phone      string `json:"phone,omitempty"`
	Avatar     string `json:"avatar,omitempty"`
	CoverImage string `json:"coverImage,omitempty"`
	Bio        string `json:"bio,omitempty"`
	Location   string `json:"location,omitempty"`
	Website    string `json:"website,omitempty"`
	Occupation string `json:"occupation,omitempty"`
	Education  string `json:"education,omitempty"`

	Interests   []string          `json:"interests"`
	SocialLinks map[string]string `json:"socialLinks"`

	// LastUpdated is the RFC 3339 time of the last save.
	LastUpdated string `json:"lastUpdated,omitempty"`
}

// Validate checks the stored shape of a profile.
func (p *Profile) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("profile: missing id")
	}
	if p.Email == "" {
		return fmt.Errorf("profile %s: missing email", p.ID)
	}
	return nil
}

// Clone returns a deep copy of p.
func (p *Profile) Clone() *Profile {
	c := *p
	c.Interests = slices.Clone(p.Interests)
	if p.SocialLinks != nil {
		c.SocialLinks = maps.Clone(p.SocialLinks)
	}
	return &c
}

// ProfilePatch holds the fields to change in a partial update. Nil fields are
// left untouched. A non-nil SocialLinks map is merged key by key; an empty
// URL removes that platform.
type ProfilePatch struct {
	Name        *string
	Phone       *string
	Avatar      *string
	CoverImage  *string
	Bio         *string
	Location    *string
	Website     *string
	Occupation  *string
	Education   *string
	Interests   []string
	SocialLinks map[string]string
}

// Apply merges the patch into p. ID and Email are never modified.
func (patch ProfilePatch) Apply(p *Profile) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.Name, patch.Name)
	set(&p.Phone, patch.Phone)
	set(&p.Avatar, patch.Avatar)
	set(&p.CoverImage, patch.CoverImage)
	set(&p.Bio, patch.Bio)
	set(&p.Location, patch.Location)
	set(&p.Website, patch.Website)
	set(&p.Occupation, patch.Occupation)
	set(&p.Education, patch.Education)

	if patch.Interests != nil {
		p.Interests = slices.Clone(patch.Interests)
	}
	if patch.SocialLinks != nil {
		if p.SocialLinks == nil {
			p.SocialLinks = make(map[string]string, len(patch.SocialLinks))
		}
		for platform, url := range patch.SocialLinks {
			if url == "" {
				delete(p.SocialLinks, platform)
				continue
			}
			p.SocialLinks[platform] = url
		}
	}
}
