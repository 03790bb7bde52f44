package playbook

import "errors"

var (
	// ErrInvalidRule indicates that a rule failed validation.
	ErrInvalidRule = errors.New("invalid playbook rule")

	// ErrDuplicateReason indicates that two rules share a reason key.
	ErrDuplicateReason = errors.New("duplicate reason key")

	// ErrNoRules indicates that a tenant has no stored playbook.
	ErrNoRules = errors.New("no playbook rules for tenant")
)
