package models

import (
	"time"
)

// ProjectStatus is the publication lifecycle of a project.
type ProjectStatus string

const (
	StatusDraft     ProjectStatus = "draft"
	StatusPublished ProjectStatus = "published"
	StatusArchived  ProjectStatus = "archived"
)

// Valid reports whether s is one of the known statuses.
func (s ProjectStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// Project is a portfolio entry. Images and Videos are a view joined from the
// media index on every read; the persisted copy always holds empty lists.
// CoverImage is denormalized and maintained directly by the project service.
type Project struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Technologies []string       `json:"technologies"`
	Tags         []string       `json:"tags"`
	Status       ProjectStatus  `json:"status"`
	Featured     bool           `json:"featured"`
	CoverImage   string         `json:"coverImage,omitempty"`
	Duration     string         `json:"duration,omitempty"`
	TeamSize     string         `json:"teamSize,omitempty"`
	Scope        string         `json:"scope,omitempty"`
	Images       []ProjectImage `json:"images"`
	Videos       []ProjectVideo `json:"videos"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Clone returns a deep copy so callers never alias table state.
func (p Project) Clone() Project {
	out := p
	out.Technologies = cloneStrings(p.Technologies)
	out.Tags = cloneStrings(p.Tags)
	out.Images = append([]ProjectImage{}, p.Images...)
	out.Videos = append([]ProjectVideo{}, p.Videos...)
	return out
}

// ProjectPatch carries a partial update. A nil field is left untouched; a
// non-nil field overwrites, even with a zero value.
type ProjectPatch struct {
	Title        *string        `json:"title"`
	Description  *string        `json:"description"`
	Technologies *[]string      `json:"technologies"`
	Tags         *[]string      `json:"tags"`
	Status       *ProjectStatus `json:"status"`
	Featured     *bool          `json:"featured"`
	CoverImage   *string        `json:"coverImage"`
	Duration     *string        `json:"duration"`
	TeamSize     *string        `json:"teamSize"`
	Scope        *string        `json:"scope"`
}

// Apply merges the set fields of patch into p. ID and CreatedAt are never touched.
func (patch ProjectPatch) Apply(p *Project) {
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Technologies != nil {
		p.Technologies = cloneStrings(*patch.Technologies)
	}
	if patch.Tags != nil {
		p.Tags = cloneStrings(*patch.Tags)
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if patch.Featured != nil {
		p.Featured = *patch.Featured
	}
	if patch.CoverImage != nil {
		p.CoverImage = *patch.CoverImage
	}
	if patch.Duration != nil {
		p.Duration = *patch.Duration
	}
	if patch.TeamSize != nil {
		p.TeamSize = *patch.TeamSize
	}
	if patch.Scope != nil {
		p.Scope = *patch.Scope
	}
}

// IsEmpty reports whether the patch sets no field at all.
func (patch ProjectPatch) IsEmpty() bool {
	return patch == ProjectPatch{}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return append([]string{}, in...)
}
