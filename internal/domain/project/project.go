// Package project defines the Project domain entity.
package project

import "time"

// Project is a TCOF assessment whose checklist tasks are scoped to it.
type Project struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Sector           string    `json:"sector"`
	OrganisationType string    `json:"organisationType"`
	CurrentStage     string    `json:"currentStage"`
	Version          int       `json:"version"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// CreateRequest holds the fields needed to create a new project.
type CreateRequest struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	Sector           string `json:"sector"`
	OrganisationType string `json:"organisationType"`
	CurrentStage     string `json:"currentStage"`
}

// UpdateRequest holds optional fields for a partial project update.
// Version must match the stored version for the update to apply.
type UpdateRequest struct {
	Name             *string `json:"name,omitempty"`
	Description      *string `json:"description,omitempty"`
	Sector           *string `json:"sector,omitempty"`
	OrganisationType *string `json:"organisationType,omitempty"`
	CurrentStage     *string `json:"currentStage,omitempty"`
	Version          *int    `json:"version,omitempty"`
}

// Apply copies the set fields of req onto p.
func (req UpdateRequest) Apply(p *Project) {
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Sector != nil {
		p.Sector = *req.Sector
	}
	if req.OrganisationType != nil {
		p.OrganisationType = *req.OrganisationType
	}
	if req.CurrentStage != nil {
		p.CurrentStage = *req.CurrentStage
	}
	if req.Version != nil {
		p.Version = *req.Version
	}
}
