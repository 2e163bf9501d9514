package access

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/davidleathers/secops-incident-engine/internal/domain/errors"
	"github.com/davidleathers/secops-incident-engine/internal/domain/role"
	"github.com/davidleathers/secops-incident-engine/internal/testutil/mocks"
)

func member(actor, org uuid.UUID, r role.OrgRole) role.Membership {
	return role.Membership{ActorID: actor, OrgID: org, Role: r, Active: true}
}

func TestResolver_PlatformRoleReduction(t *testing.T) {
	actor := uuid.New()
	org := uuid.New()

	tests := []struct {
		name      string
		rows      []role.PlatformRole
		err       error
		wantStaff bool
		wantRole  role.PlatformRole
	}{
		{name: "no rows", rows: nil},
		{name: "single director", rows: []role.PlatformRole{role.PlatformDirector}, wantStaff: true, wantRole: role.PlatformDirector},
		{
			name:      "highest priority wins",
			rows:      []role.PlatformRole{role.PlatformDispatcher, role.PlatformAdmin},
			wantStaff: true,
			wantRole:  role.PlatformAdmin,
		},
		{
			name:      "super admin beats everything",
			rows:      []role.PlatformRole{role.PlatformDirector, role.PlatformSuperAdmin, role.PlatformAdmin},
			wantStaff: true,
			wantRole:  role.PlatformSuperAdmin,
		},
		{name: "hidden by policy", err: errors.NewDeniedError("read platform roles")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mocks.RoleRepository{}
			repo.On("ActiveMemberships", mock.Anything, actor).Return([]role.Membership{member(actor, org, role.OrgGuard)}, nil)
			repo.On("ActivePlatformRoles", mock.Anything, actor).Return(tt.rows, tt.err)

			snap, err := NewResolver(repo, nil, nil, nil).Resolve(context.Background(), actor)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStaff, snap.IsStaff)
			assert.Equal(t, tt.wantRole, snap.PlatformRole)
			assert.Equal(t, role.OrgGuard, snap.OrgRole)
			assert.Equal(t, org, snap.OrgID)
		})
	}
}

func TestResolver_PlatformLookupOutcomes(t *testing.T) {
	actor := uuid.New()

	tests := []struct {
		name    string
		rows    []role.PlatformRole
		err     error
		want    PlatformOutcome
		wantErr bool
	}{
		{name: "none", want: PlatformNone},
		{name: "found", rows: []role.PlatformRole{role.PlatformAdmin}, want: PlatformFound},
		{name: "no access", err: errors.NewDeniedError("read platform roles"), want: PlatformNoAccess},
		{name: "store failure", err: stderrors.New("connection refused"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mocks.RoleRepository{}
			repo.On("ActivePlatformRoles", mock.Anything, actor).Return(tt.rows, tt.err)

			got, err := NewResolver(repo, nil, nil, nil).ResolvePlatformRole(context.Background(), actor)
			if tt.wantErr {
				assert.True(t, errors.IsTransient(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Outcome)
		})
	}
}

func TestResolver_MembershipFailures(t *testing.T) {
	actor := uuid.New()
	org := uuid.New()

	tests := []struct {
		name        string
		memberships []role.Membership
		err         error
		check       func(error) bool
	}{
		{name: "no memberships", check: errors.IsNoRoleAssigned},
		{
			name:        "only inactive memberships",
			memberships: []role.Membership{{ActorID: actor, OrgID: org, Role: role.OrgChief, Active: false}},
			check:       errors.IsNoRoleAssigned,
		},
		{name: "hidden by policy", err: errors.NewDeniedError("read memberships"), check: errors.IsNoRoleAssigned},
		{name: "store failure", err: stderrors.New("timeout"), check: errors.IsTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mocks.RoleRepository{}
			repo.On("ActiveMemberships", mock.Anything, actor).Return(tt.memberships, tt.err)

			_, err := NewResolver(repo, nil, nil, nil).Resolve(context.Background(), actor)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error %v", err)
			repo.AssertNotCalled(t, "ActivePlatformRoles", mock.Anything, mock.Anything)
		})
	}
}

func TestResolver_AmbiguousMembershipIsLogged(t *testing.T) {
	actor := uuid.New()
	repo := &mocks.RoleRepository{}
	repo.On("ActiveMemberships", mock.Anything, actor).Return([]role.Membership{
		member(actor, uuid.New(), role.OrgGuard),
		member(actor, uuid.New(), role.OrgChief),
	}, nil)

	core, logs := observer.New(zap.ErrorLevel)
	_, err := NewResolver(repo, nil, zap.New(core), nil).Resolve(context.Background(), actor)

	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeInternal, err.(*errors.AppError).Type)
	assert.Equal(t, 1, logs.FilterMessage("actor has more than one active membership").Len())
}

func TestResolver_ViewAsAffectsDisplayOnly(t *testing.T) {
	actor := uuid.New()
	org := uuid.New()

	repo := &mocks.RoleRepository{}
	repo.On("ActiveMemberships", mock.Anything, actor).Return([]role.Membership{member(actor, org, role.OrgSuperAdmin)}, nil)
	repo.On("ActivePlatformRoles", mock.Anything, actor).Return([]role.PlatformRole{role.PlatformSuperAdmin}, nil)

	store := &mocks.ViewAsStore{}
	store.On("Set", mock.Anything, actor, role.OrgGuard).Return(nil).Once()
	store.On("Get", mock.Anything, actor).Return(role.OrgGuard, true, nil)

	r := NewResolver(repo, store, nil, nil)
	_, err := r.SetViewAs(context.Background(), actor, role.OrgGuard)
	require.NoError(t, err)

	snap, err := r.Resolve(context.Background(), actor)
	require.NoError(t, err)

	display := snap.Display()
	assert.True(t, display.Impersonating)
	assert.Equal(t, role.Label(role.OrgGuard), display.Org)

	sub, err := snap.Subject(role.ScopeOrganization)
	require.NoError(t, err)
	assert.Equal(t, role.OrgSuperAdmin, sub.OrgRole(), "authorization keeps the true role")
	store.AssertExpectations(t)
}

func TestResolver_ViewAsRequiresPlatformSuperAdmin(t *testing.T) {
	actor := uuid.New()
	repo := &mocks.RoleRepository{}
	repo.On("ActiveMemberships", mock.Anything, actor).Return([]role.Membership{member(actor, uuid.New(), role.OrgAdmin)}, nil)
	repo.On("ActivePlatformRoles", mock.Anything, actor).Return([]role.PlatformRole{role.PlatformAdmin}, nil)

	store := &mocks.ViewAsStore{}
	_, err := NewResolver(repo, store, nil, nil).SetViewAs(context.Background(), actor, role.OrgClient)

	assert.True(t, errors.IsNotPermitted(err))
	store.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestResolver_ViewAsStoreFailureFallsBackToTrueRole(t *testing.T) {
	actor := uuid.New()
	repo := &mocks.RoleRepository{}
	repo.On("ActiveMemberships", mock.Anything, actor).Return([]role.Membership{member(actor, uuid.New(), role.OrgDispatcher)}, nil)
	repo.On("ActivePlatformRoles", mock.Anything, actor).Return([]role.PlatformRole{role.PlatformSuperAdmin}, nil)

	store := &mocks.ViewAsStore{}
	store.On("Get", mock.Anything, actor).Return(role.OrgRole(""), false, stderrors.New("redis down"))

	core, logs := observer.New(zap.WarnLevel)
	snap, err := NewResolver(repo, store, zap.New(core), nil).Resolve(context.Background(), actor)
	require.NoError(t, err)

	assert.False(t, snap.Display().Impersonating)
	assert.Equal(t, role.Label(role.OrgDispatcher), snap.Display().Org)
	assert.Equal(t, 1, logs.FilterMessage("view-as lookup failed").Len())
}

func TestResolver_ClearViewAs(t *testing.T) {
	actor := uuid.New()
	store := &mocks.ViewAsStore{}
	store.On("Clear", mock.Anything, actor).Return(nil).Once()

	require.NoError(t, NewResolver(&mocks.RoleRepository{}, store, nil, nil).ClearViewAs(context.Background(), actor))
	store.AssertExpectations(t)
}
