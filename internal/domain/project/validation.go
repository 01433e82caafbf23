package project

import (
	"fmt"
	"unicode"

	"github.com/Strob0t/tcof/internal/domain"
	"github.com/Strob0t/tcof/internal/domain/task"
)

const (
	maxNameLen        = 255
	maxDescriptionLen = 2000
)

// ValidateCreateRequest validates the fields of a project creation request.
func ValidateCreateRequest(req CreateRequest) error {
	if req.Name == "" {
		return fmt.Errorf("name is required: %w", domain.ErrValidation)
	}
	if err := validateName(req.Name); err != nil {
		return err
	}
	if len(req.Description) > maxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters: %w", maxDescriptionLen, domain.ErrValidation)
	}
	return validateStage(req.CurrentStage)
}

// ValidateUpdateRequest validates the fields of a project update request.
func ValidateUpdateRequest(req UpdateRequest) error {
	if req.Name != nil {
		if *req.Name == "" {
			return fmt.Errorf("name cannot be empty: %w", domain.ErrValidation)
		}
		if err := validateName(*req.Name); err != nil {
			return err
		}
	}
	if req.Description != nil && len(*req.Description) > maxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters: %w", maxDescriptionLen, domain.ErrValidation)
	}
	if req.CurrentStage != nil {
		return validateStage(*req.CurrentStage)
	}
	return nil
}

func validateName(name string) error {
	if len(name) > maxNameLen {
		return fmt.Errorf("name exceeds %d characters: %w", maxNameLen, domain.ErrValidation)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("name contains control characters: %w", domain.ErrValidation)
		}
	}
	return nil
}

// An empty stage is allowed; the store defaults it to identification.
func validateStage(stage string) error {
	if stage != "" && !task.Stage(stage).Valid() {
		return fmt.Errorf("currentStage must be one of %v: %w", task.Stages, domain.ErrValidation)
	}
	return nil
}
