package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/upb/workspace-authz/models"
	"github.com/upb/workspace-authz/repositories"
	"go.uber.org/zap"
)

var (
	// ErrNotStarted is returned when events are submitted before Start or after Stop
	ErrNotStarted = errors.New("audit service not started")
	// ErrBufferFull is returned when an event is dropped because the buffer is full
	ErrBufferFull = errors.New("audit event buffer full")
)

// Outcomes reported to the EventRecorder
const (
	OutcomeWritten = "written"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

// EventRecorder receives one outcome per submitted event
type EventRecorder interface {
	RecordAuditEvent(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuditEvent(string) {}

// RequestInfo is the HTTP request metadata copied into audit rows
type RequestInfo struct {
	RequestID string
	IPAddress string
	UserAgent string
}

// AuditService writes audit rows on a pool of background workers so that
// callers on the request path never wait for the database.
type AuditService struct {
	auditRepo     repositories.AuditRepository
	logger        *zap.Logger
	recorder      EventRecorder
	eventChan     chan *models.AuditLog
	workerCount   int
	bufferSize    int
	insertTimeout time.Duration
	wg            sync.WaitGroup
	started       bool
	stopped       bool
	mu            sync.RWMutex

	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// Config holds configuration for the AuditService
type Config struct {
	BufferSize    int
	WorkerCount   int
	InsertTimeout time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:    1000,
		WorkerCount:   4,
		InsertTimeout: 5 * time.Second,
	}
}

// NewAuditService creates a new AuditService instance. A nil recorder disables
// outcome reporting.
func NewAuditService(auditRepo repositories.AuditRepository, logger *zap.Logger, recorder EventRecorder, config Config) *AuditService {
	defaults := DefaultConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaults.WorkerCount
	}
	if config.InsertTimeout <= 0 {
		config.InsertTimeout = defaults.InsertTimeout
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &AuditService{
		auditRepo:     auditRepo,
		logger:        logger,
		recorder:      recorder,
		eventChan:     make(chan *models.AuditLog, config.BufferSize),
		workerCount:   config.WorkerCount,
		bufferSize:    config.BufferSize,
		insertTimeout: config.InsertTimeout,
	}
}

// Start starts the background workers
func (s *AuditService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("audit service already started")
	}
	if s.stopped {
		return fmt.Errorf("audit service cannot be restarted")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started audit service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop closes the buffer and waits up to timeout for queued events to be written
func (s *AuditService) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.stopped = true
	s.logger.Info("stopping audit service", zap.Int("pending_events", len(s.eventChan)))
	close(s.eventChan)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("audit service stopped gracefully",
			zap.Int64("written", s.written.Load()),
			zap.Int64("failed", s.failed.Load()),
			zap.Int64("dropped", s.dropped.Load()))
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit service stop timeout after %v", timeout)
	}
}

// LogEvent queues an entry without blocking. When the buffer is full the entry
// is dropped and ErrBufferFull returned.
func (s *AuditService) LogEvent(entry *models.AuditLog) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started || s.stopped {
		return ErrNotStarted
	}

	select {
	case s.eventChan <- entry:
		return nil
	default:
		s.dropped.Add(1)
		s.recorder.RecordAuditEvent(OutcomeDropped)
		s.logger.Warn("audit event channel full, dropping event",
			zap.String("action", string(entry.Action)),
			zap.String("actor_id", entry.ActorID))
		return ErrBufferFull
	}
}

func (s *AuditService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("audit worker started", zap.Int("worker_id", id))

	for entry := range s.eventChan {
		if err := s.processEvent(entry); err != nil {
			s.failed.Add(1)
			s.recorder.RecordAuditEvent(OutcomeFailed)
			s.logger.Error("failed to process audit event",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("action", string(entry.Action)),
				zap.String("actor_id", entry.ActorID))
			continue
		}
		s.written.Add(1)
		s.recorder.RecordAuditEvent(OutcomeWritten)
	}

	s.logger.Debug("audit worker stopped", zap.Int("worker_id", id))
}

func (s *AuditService) processEvent(entry *models.AuditLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.insertTimeout)
	defer cancel()

	if err := s.auditRepo.Insert(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// GetStats returns statistics about the audit service
func (s *AuditService) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started && !s.stopped,
		Written:       s.written.Load(),
		Failed:        s.failed.Load(),
		Dropped:       s.dropped.Load(),
	}
}

// Stats represents audit service statistics
type Stats struct {
	BufferSize    int   `json:"buffer_size"`
	PendingEvents int   `json:"pending_events"`
	WorkerCount   int   `json:"worker_count"`
	Started       bool  `json:"started"`
	Written       int64 `json:"written"`
	Failed        int64 `json:"failed"`
	Dropped       int64 `json:"dropped"`
}

// PermissionDenied builds the entry written when the gate rejects a request
func PermissionDenied(actorID string, permission models.Permission, orgID string, req RequestInfo) *models.AuditLog {
	return models.NewAuditLog(actorID, models.AuditActionPermissionDenied, "permission").
		WithOrganization(orgID).
		WithResource(permission.String()).
		WithRequest(req.RequestID, req.IPAddress, req.UserAgent)
}

// RoleAssigned builds the entry written when an assignment is created
func RoleAssigned(actorID string, a *models.RoleAssignment, req RequestInfo) *models.AuditLog {
	return models.NewAuditLog(actorID, models.AuditActionRoleAssigned, "role_assignment").
		WithOrganization(a.Scope()).
		WithResource(a.ID.String()).
		WithDetails(map[string]string{"user_id": a.UserID, "role": a.Role.String()}).
		WithRequest(req.RequestID, req.IPAddress, req.UserAgent)
}

// RoleRevoked builds the entry written when an assignment is removed
func RoleRevoked(actorID string, a *models.RoleAssignment, req RequestInfo) *models.AuditLog {
	return models.NewAuditLog(actorID, models.AuditActionRoleRevoked, "role_assignment").
		WithOrganization(a.Scope()).
		WithResource(a.ID.String()).
		WithDetails(map[string]string{"user_id": a.UserID, "role": a.Role.String()}).
		WithRequest(req.RequestID, req.IPAddress, req.UserAgent)
}

// LogPermissionDenied queues a permission_denied entry
func (s *AuditService) LogPermissionDenied(actorID string, permission models.Permission, orgID string, req RequestInfo) error {
	return s.LogEvent(PermissionDenied(actorID, permission, orgID, req))
}
