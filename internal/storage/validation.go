package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/ledgerline/internal/common"
	"github.com/Veraticus/ledgerline/internal/model"
)

// Validation errors.
var (
	ErrNilContext  = errors.New("context cannot be nil")
	ErrEmptyString = errors.New("string parameter cannot be empty")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s: %w", ErrEmptyString, paramName, common.Invalid(paramName, "must not be empty"))
	}
	return nil
}

// validateOwner ensures an owner scope is usable as a key.
func validateOwner(ctx context.Context, owner model.Owner) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return owner.Validate()
}

// checkStored rejects malformed documents read back from the database.
func checkStored(kind, id string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("stored %s %s is malformed: %w", kind, id, err)
}

func invalidRole(role model.Role) error {
	return common.Invalid("role", "unknown role "+string(role))
}
