package postgres

import (
	"github.com/upb/workspace-authz/config"
	"github.com/upb/workspace-authz/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db       *DB
	dbConfig config.DatabaseConfig
	logger   *zap.Logger
}

// NewRepositoryFactory opens the pool described by cfg
func NewRepositoryFactory(cfg config.DatabaseConfig, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewRepositoryFactoryFromDB(db, cfg, logger), nil
}

// NewRepositoryFactoryFromDB builds a factory on an existing pool
func NewRepositoryFactoryFromDB(db *DB, cfg config.DatabaseConfig, logger *zap.Logger) *RepositoryFactory {
	return &RepositoryFactory{db: db, dbConfig: cfg, logger: logger}
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		RoleAssignments: NewRoleAssignmentRepository(f.db, f.dbConfig.QueryTimeout, f.logger),
		AuditLogs:       NewAuditRepository(f.db, f.logger),
	}
}

// GetTransactionManager returns a transaction manager
func (f *RepositoryFactory) GetTransactionManager() repositories.TransactionManager {
	return NewTransactionManager(f.db, f.logger)
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
