package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"not found", fmt.Errorf("get task t1: %w", ErrNotFound), CodeNotFound},
		{"update failed", fmt.Errorf("update task t1: %w", ErrUpdateFailed), CodeUpdateFailed},
		{"validation", fmt.Errorf("stage: %w", ErrValidation), CodeValidation},
		{"conflict", ErrConflict, CodeConflict},
		{"already exists", fmt.Errorf("task t1: %w", ErrAlreadyExists), CodeConflict},
		{"store fault", errors.New("connection refused"), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.want {
				t.Errorf("Code(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
