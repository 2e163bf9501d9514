package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/davidleathers/secops-incident-engine/internal/domain/incident"
	"github.com/davidleathers/secops-incident-engine/internal/domain/role"
)

// RoleRepository mock
type RoleRepository struct {
	mock.Mock
}

func (m *RoleRepository) ActiveMemberships(ctx context.Context, actorID uuid.UUID) ([]role.Membership, error) {
	args := m.Called(ctx, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]role.Membership), args.Error(1)
}

func (m *RoleRepository) ActivePlatformRoles(ctx context.Context, actorID uuid.UUID) ([]role.PlatformRole, error) {
	args := m.Called(ctx, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]role.PlatformRole), args.Error(1)
}

// ViewAsStore mock
type ViewAsStore struct {
	mock.Mock
}

func (m *ViewAsStore) Get(ctx context.Context, actorID uuid.UUID) (role.OrgRole, bool, error) {
	args := m.Called(ctx, actorID)
	return args.Get(0).(role.OrgRole), args.Bool(1), args.Error(2)
}

func (m *ViewAsStore) Set(ctx context.Context, actorID uuid.UUID, r role.OrgRole) error {
	args := m.Called(ctx, actorID, r)
	return args.Error(0)
}

func (m *ViewAsStore) Clear(ctx context.Context, actorID uuid.UUID) error {
	args := m.Called(ctx, actorID)
	return args.Error(0)
}

// AuditEmitter mock
type AuditEmitter struct {
	mock.Mock
}

func (m *AuditEmitter) Emit(ctx context.Context, ev incident.Event) {
	m.Called(ctx, ev)
}
