package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/upb/workspace-authz/config"
	"github.com/upb/workspace-authz/internal/auth"
	"github.com/upb/workspace-authz/internal/observability"
	"github.com/upb/workspace-authz/middleware"
	"github.com/upb/workspace-authz/repositories"
	"github.com/upb/workspace-authz/repositories/postgres"
	"github.com/upb/workspace-authz/services/assignment"
	"github.com/upb/workspace-authz/services/audit"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	DB      *postgres.DB
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	RoleAssignments repositories.RoleAssignmentRepository
	AuditLogs       repositories.AuditRepository
	TxManager       repositories.TransactionManager

	// Authorization
	Resolver *auth.Resolver
	Gate     *auth.Gate
	Tokens   *auth.TokenService

	// Services. AuditService is nil when auditing is disabled.
	AuditService      *audit.AuditService
	AuditLogReader    *audit.Reader
	AssignmentService *assignment.Service

	// HTTP middleware
	AuthMiddleware *middleware.AuthMiddleware
	Authorizer     *middleware.Authorizer
}

// NewDependencies opens the database and wires every component on top of it
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := factory.GetDB().InitSchema(ctx); err != nil {
			_ = factory.Close()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		logger.Info("database schema applied")
	}

	deps, err := NewDependenciesFromFactory(cfg, factory, logger)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	return deps, nil
}

// NewDependenciesFromFactory wires every component on an already opened pool.
// The audit writer is started when enabled.
func NewDependenciesFromFactory(cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		Metrics:     observability.NewMetrics(),
		RepoFactory: factory,
		DB:          factory.GetDB(),
	}

	deps.initRepositories()

	if err := deps.initAuth(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	if err := deps.initServices(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.initMiddleware(cfg)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.RoleAssignments = repos.RoleAssignments
	d.AuditLogs = repos.AuditLogs
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	d.Resolver = auth.NewResolver(d.RoleAssignments, d.Logger, auth.WithRecorder(d.Metrics))
	d.Gate = auth.NewGate(d.Resolver, d.Logger)

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		TTL:      cfg.Auth.TokenTTL,
	})
	if err != nil {
		return err
	}
	d.Tokens = tokens
	return nil
}

func (d *Dependencies) initServices(cfg *config.Config) error {
	if cfg.Audit.Enabled {
		d.AuditService = audit.NewAuditService(d.AuditLogs, d.Logger, d.Metrics, audit.Config{
			BufferSize:  cfg.Audit.BufferSize,
			WorkerCount: cfg.Audit.WorkerCount,
		})
		if err := d.AuditService.Start(); err != nil {
			return fmt.Errorf("failed to start audit service: %w", err)
		}
	} else {
		d.Logger.Warn("audit logging disabled, permission denials will not be recorded")
	}

	d.AuditLogReader = audit.NewReader(d.AuditLogs, d.Logger)
	d.AssignmentService = assignment.NewService(d.RoleAssignments, d.AuditLogs, d.TxManager, d.Gate, d.Logger)
	return nil
}

func (d *Dependencies) initMiddleware(cfg *config.Config) {
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Tokens, cfg.Auth.OrganizationHeader, d.Logger)

	var auditor middleware.DenialAuditor
	if d.AuditService != nil {
		auditor = d.AuditService
	}
	d.Authorizer = middleware.NewAuthorizer(d.Gate, auditor, d.Logger)
}

// Close gracefully shuts down all dependencies. Buffered audit entries are
// flushed before the database is closed.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.AuditService != nil {
		timeout := d.Config.Audit.FlushTimeout
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := time.Until(deadline); remaining < timeout {
				timeout = remaining
			}
		}
		if err := d.AuditService.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	return errors.Join(errs...)
}
