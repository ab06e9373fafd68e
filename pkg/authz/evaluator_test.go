package authz

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDirectory records every call made by the evaluator
type fakeDirectory struct {
	groups     []string
	owned      map[string]bool
	listErr    error
	ownerErr   error
	listCalls  int
	ownerCalls []string
}

func (f *fakeDirectory) ListGroupsOfUser(ctx context.Context, identity string) ([]string, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.groups, nil
}

func (f *fakeDirectory) IsGroupOwner(ctx context.Context, identity, groupID string) (bool, error) {
	f.ownerCalls = append(f.ownerCalls, groupID)
	if f.ownerErr != nil {
		return false, f.ownerErr
	}
	return f.owned[groupID], nil
}

func testMapping(t *testing.T) *RoleGroupMapping {
	t.Helper()
	mapping, err := ParseRoleGroupMapping(map[string]string{
		"Admins":   "g1, g2",
		"Partners": "g3",
	})
	require.NoError(t, err)
	return mapping
}

func TestDecide_EmptyAllowedRolesDenies(t *testing.T) {
	dir := &fakeDirectory{groups: []string{"g1", "g2", "g3"}, owned: map[string]bool{"g1": true}}
	e := NewEvaluator(testMapping(t), dir)

	allowed, err := e.Decide(context.Background(), "user@contoso.com", AllowedRoles{})

	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, dir.listCalls)
	assert.Empty(t, dir.ownerCalls)

	allowed, err = e.Decide(context.Background(), "user@contoso.com", nil)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestDecide_MembershipAdmitsWithoutOwnershipCalls(t *testing.T) {
	dir := &fakeDirectory{groups: []string{"other", "g2"}}
	e := NewEvaluator(testMapping(t), dir)

	d, err := e.DecideWithReason(context.Background(), "user@contoso.com", AllowedRoles{RoleAdmins})

	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonMember, d.Reason)
	assert.Equal(t, RoleAdmins, d.MatchedRole)
	assert.Equal(t, "g2", d.MatchedGroup)
	assert.Equal(t, 1, dir.listCalls)
	assert.Empty(t, dir.ownerCalls)
}

func TestDecide_UnionAcrossRoles(t *testing.T) {
	dir := &fakeDirectory{groups: []string{"g3"}}
	e := NewEvaluator(testMapping(t), dir)

	allowed, err := e.Decide(context.Background(), "user@contoso.com", AllowedRoles{RoleAdmins, RolePartners})

	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Empty(t, dir.ownerCalls, "membership admit must not trigger ownership checks")
}

func TestDecide_OwnershipPassInConfigurationOrder(t *testing.T) {
	dir := &fakeDirectory{groups: []string{"g3"}, owned: map[string]bool{}}
	e := NewEvaluator(testMapping(t), dir)

	allowed, err := e.Decide(context.Background(), "user@contoso.com", AllowedRoles{RoleAdmins})

	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, []string{"g1", "g2"}, dir.ownerCalls)
}

func TestDecide_OwnershipStopsAtFirstTrue(t *testing.T) {
	mapping, err := ParseRoleGroupMapping(map[string]string{
		"Admins":    "g1,g2,g3",
		"Partners":  "g4",
		"SFRSUsers": "g5",
	})
	require.NoError(t, err)

	dir := &fakeDirectory{owned: map[string]bool{"g2": true, "g4": true}}
	e := NewEvaluator(mapping, dir)

	d, err := e.DecideWithReason(context.Background(), "owner@contoso.com", AllowedRoles{RoleAdmins, RolePartners})

	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonOwner, d.Reason)
	assert.Equal(t, "g2", d.MatchedGroup)
	assert.Equal(t, 2, d.OwnershipChecks)
	assert.Equal(t, []string{"g1", "g2"}, dir.ownerCalls)
}

func TestDecide_OwnershipFollowsDeclarationOrderAcrossRoles(t *testing.T) {
	dir := &fakeDirectory{owned: map[string]bool{"g3": true}}
	e := NewEvaluator(testMapping(t), dir)

	allowed, err := e.Decide(context.Background(), "owner@contoso.com", AllowedRoles{RolePartners, RoleAdmins})

	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, []string{"g3"}, dir.ownerCalls)
}

func TestDecide_NoMembershipNoOwnershipDenies(t *testing.T) {
	dir := &fakeDirectory{groups: []string{"x", "y"}, owned: map[string]bool{}}
	e := NewEvaluator(testMapping(t), dir)

	d, err := e.DecideWithReason(context.Background(), "user@contoso.com", AllowedRoles{RoleAdmins, RolePartners})

	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNoMatchingGroup, d.Reason)
	assert.Equal(t, 3, d.OwnershipChecks)
	assert.Equal(t, []string{"g1", "g2", "g3"}, dir.ownerCalls)
}

func TestDecide_MembershipFailurePropagates(t *testing.T) {
	dir := &fakeDirectory{listErr: fmt.Errorf("graph: %w", ErrDirectoryUnavailable)}
	e := NewEvaluator(testMapping(t), dir)

	allowed, err := e.Decide(context.Background(), "user@contoso.com", AllowedRoles{RoleAdmins})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDirectoryUnavailable))
	assert.False(t, allowed)
	assert.Empty(t, dir.ownerCalls)
}

func TestDecide_UnclassifiedFailureIsUnavailable(t *testing.T) {
	boom := errors.New("connection reset")
	dir := &fakeDirectory{ownerErr: boom}
	e := NewEvaluator(testMapping(t), dir)

	_, err := e.Decide(context.Background(), "user@contoso.com", AllowedRoles{RoleAdmins})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"g1"}, dir.ownerCalls)
}

func TestDecide_CancelledContextIsUnavailable(t *testing.T) {
	dir := &fakeDirectory{}
	e := NewEvaluator(testMapping(t), dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Decide(ctx, "user@contoso.com", AllowedRoles{RoleAdmins})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, dir.ownerCalls)
}

func TestDecide_UnmappedRoleContributesNothing(t *testing.T) {
	dir := &fakeDirectory{groups: []string{"g1"}}
	e := NewEvaluator(testMapping(t), dir)

	allowed, err := e.Decide(context.Background(), "user@contoso.com", AllowedRoles{RoleSFRSUsers})

	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Empty(t, dir.ownerCalls)

	allowed, err = e.Decide(context.Background(), "user@contoso.com", AllowedRoles{RoleSFRSUsers, RoleAdmins})
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestDecide_NilMappingDenies(t *testing.T) {
	dir := &fakeDirectory{groups: []string{"g1"}}
	e := NewEvaluator(nil, dir)

	allowed, err := e.Decide(context.Background(), "user@contoso.com", AllowedRoles{RoleAdmins})

	require.NoError(t, err)
	assert.False(t, allowed)
}

// identityDirectory answers per identity from read-only tables
type identityDirectory struct {
	groups  map[string][]string
	owned   map[string]string
	failing map[string]bool
}

func (d identityDirectory) ListGroupsOfUser(ctx context.Context, identity string) ([]string, error) {
	if d.failing[identity] {
		return nil, fmt.Errorf("graph: %w", ErrDirectoryUnavailable)
	}
	return d.groups[identity], nil
}

func (d identityDirectory) IsGroupOwner(ctx context.Context, identity, groupID string) (bool, error) {
	return d.owned[identity] == groupID, nil
}

func TestDecide_ConcurrentDecisionsAreIndependent(t *testing.T) {
	mapping := testMapping(t)
	e := NewEvaluator(mapping, identityDirectory{
		groups:  map[string][]string{"member@contoso.com": {"g3"}},
		owned:   map[string]string{"owner@contoso.com": "g2"},
		failing: map[string]bool{"broken@contoso.com": true},
	})
	allowed := AllowedRoles{RoleAdmins, RolePartners}

	tests := []struct {
		identity string
		allowed  bool
		reason   Reason
		failure  bool
	}{
		{identity: "member@contoso.com", allowed: true, reason: ReasonMember},
		{identity: "owner@contoso.com", allowed: true, reason: ReasonOwner},
		{identity: "stranger@contoso.com", reason: ReasonNoMatchingGroup},
		{identity: "broken@contoso.com", failure: true},
	}

	for i := 0; i < 25; i++ {
		for _, tt := range tests {
			tt := tt
			t.Run(fmt.Sprintf("%s/%d", tt.identity, i), func(t *testing.T) {
				t.Parallel()

				d, err := e.DecideWithReason(context.Background(), tt.identity, allowed)
				if tt.failure {
					assert.ErrorIs(t, err, ErrDirectoryUnavailable)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, tt.allowed, d.Allowed)
				assert.Equal(t, tt.reason, d.Reason)
			})
		}
	}

	t.Cleanup(func() {
		assert.Equal(t, []string{"g1", "g2"}, mapping.Groups(RoleAdmins))
		assert.Equal(t, []string{"g3"}, mapping.Groups(RolePartners))
	})
}
