package authz

import (
	"context"
	"errors"
	"fmt"
)

// Directory answers group membership and ownership questions for an identity.
// Implementations resolve pagination internally and wrap failures with ErrDirectoryUnavailable.
type Directory interface {
	// ListGroupsOfUser returns every group the identity currently belongs to
	ListGroupsOfUser(ctx context.Context, identity string) ([]string, error)

	// IsGroupOwner reports whether the identity is listed as an owner of the group
	IsGroupOwner(ctx context.Context, identity, groupID string) (bool, error)
}

// Reason explains how a decision was reached
type Reason string

const (
	ReasonNoRolesDeclared Reason = "no_roles_declared"
	ReasonMember          Reason = "member"
	ReasonOwner           Reason = "owner"
	ReasonNoMatchingGroup Reason = "no_matching_group"
)

// Decision is the outcome of evaluating one request
type Decision struct {
	Allowed         bool
	Reason          Reason
	MatchedRole     Role
	MatchedGroup    string
	OwnershipChecks int
}

// Evaluator decides whether a caller may perform an operation.
// It holds no per-request state and may be shared across goroutines.
type Evaluator struct {
	mapping   *RoleGroupMapping
	directory Directory
}

// NewEvaluator creates an evaluator bound to a mapping and a directory
func NewEvaluator(mapping *RoleGroupMapping, directory Directory) *Evaluator {
	return &Evaluator{
		mapping:   mapping,
		directory: directory,
	}
}

// Mapping returns the role mapping the evaluator was built with
func (e *Evaluator) Mapping() *RoleGroupMapping {
	return e.mapping
}

// Decide reports whether identity is admitted for an operation declaring allowed.
// A non-nil error means the decision is undetermined.
func (e *Evaluator) Decide(ctx context.Context, identity string, allowed AllowedRoles) (bool, error) {
	d, err := e.DecideWithReason(ctx, identity, allowed)
	if err != nil {
		return false, err
	}
	return d.Allowed, nil
}

// DecideWithReason runs the membership pass and, when it does not admit, the ownership pass
func (e *Evaluator) DecideWithReason(ctx context.Context, identity string, allowed AllowedRoles) (Decision, error) {
	if len(allowed) == 0 {
		return Decision{Reason: ReasonNoRolesDeclared}, nil
	}

	union := e.mapping.resolve(allowed)

	groups, err := e.directory.ListGroupsOfUser(ctx, identity)
	if err != nil {
		return Decision{}, unavailable("list groups of user", err)
	}
	for _, id := range groups {
		if _, ok := union[id]; ok {
			return Decision{
				Allowed:      true,
				Reason:       ReasonMember,
				MatchedRole:  e.roleOf(allowed, id),
				MatchedGroup: id,
			}, nil
		}
	}

	checks := 0
	for _, role := range allowed {
		for _, id := range e.mapping.Groups(role) {
			if err := ctx.Err(); err != nil {
				return Decision{}, unavailable("check group owner", err)
			}
			checks++
			owner, err := e.directory.IsGroupOwner(ctx, identity, id)
			if err != nil {
				return Decision{}, unavailable("check group owner", err)
			}
			if owner {
				return Decision{
					Allowed:         true,
					Reason:          ReasonOwner,
					MatchedRole:     role,
					MatchedGroup:    id,
					OwnershipChecks: checks,
				}, nil
			}
		}
	}

	return Decision{Reason: ReasonNoMatchingGroup, OwnershipChecks: checks}, nil
}

// roleOf returns the first allowed role backed by the group
func (e *Evaluator) roleOf(allowed AllowedRoles, groupID string) Role {
	for _, role := range allowed {
		for _, id := range e.mapping.Groups(role) {
			if id == groupID {
				return role
			}
		}
	}
	return ""
}

func unavailable(op string, err error) error {
	if errors.Is(err, ErrDirectoryUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrDirectoryUnavailable, err)
}
