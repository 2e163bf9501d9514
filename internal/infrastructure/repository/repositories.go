package repository

import (
	"go.uber.org/zap"

	"github.com/davidleathers/secops-incident-engine/internal/infrastructure/database"
)

// Repositories holds the Postgres-backed stores sharing one pool.
type Repositories struct {
	Incidents *IncidentGateway
	Roles     *RoleRepository
	AuditLog  *AuditLogRepository
}

func NewRepositories(db *database.Pool, logger *zap.Logger) (*Repositories, error) {
	incidents, err := NewIncidentGateway(db, logger)
	if err != nil {
		return nil, err
	}
	roles, err := NewRoleRepository(db, logger)
	if err != nil {
		return nil, err
	}
	auditLog, err := NewAuditLogRepository(db, logger)
	if err != nil {
		return nil, err
	}
	return &Repositories{Incidents: incidents, Roles: roles, AuditLog: auditLog}, nil
}
