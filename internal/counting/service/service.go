package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/inventory-counting/internal/counting/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/cuongbtq/inventory-counting/internal/counting/service"

// Config holds the collaborators of the counting service
type Config struct {
	Logger *slog.Logger
	Store  TxRunner
	Teams  TeamDirectory
	// Locker defaults to an in-process LocalLocker
	Locker Locker
	// Now defaults to time.Now
	Now func() time.Time
}

// Service implements the assignment, escalation, discrepancy and reset
// orchestrators on top of the entity store.
type Service struct {
	logger *slog.Logger
	store  TxRunner
	teams  TeamDirectory
	locker Locker
	now    func() time.Time
	tracer trace.Tracer
}

// New creates a new counting Service
func New(cfg Config) *Service {
	s := &Service{
		logger: cfg.Logger,
		store:  cfg.Store,
		teams:  cfg.Teams,
		locker: cfg.Locker,
		now:    cfg.Now,
		tracer: otel.Tracer(tracerName),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.locker == nil {
		s.locker = NewLocalLocker()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "counting."+op, trace.WithAttributes(attrs...))
}

// inTx runs fn in a transaction. A unique-constraint violation means another
// caller created the same row between our read and our write: the whole
// transaction is replayed once so that it re-reads and updates instead.
func (s *Service) inTx(ctx context.Context, op string, fn func(ctx context.Context, repos Repositories) error) error {
	err := s.store.WithinTx(ctx, fn)
	if !errors.Is(err, domain.ErrUniqueViolation) {
		return err
	}

	s.logger.Warn("Concurrent insert detected, retrying transaction",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)

	err = s.store.WithinTx(ctx, fn)
	if errors.Is(err, domain.ErrUniqueViolation) {
		conflict := domain.Conflictf("%s: concurrent modification detected, retry later", op)
		conflict.Err = err
		return conflict
	}
	return err
}

// finish is the error boundary of every operation. Typed errors propagate
// unchanged; anything else is logged in full and redacted into a CreationError.
func (s *Service) finish(span trace.Span, op string, err error) error {
	defer span.End()
	if err == nil {
		return nil
	}

	derr := s.classify(op, err)
	span.SetAttributes(attribute.String("error.kind", derr.Kind.String()))
	if derr.Kind == domain.KindCreation || derr.Kind == domain.KindConflict {
		span.RecordError(err)
		span.SetStatus(codes.Error, derr.Message)
	}
	return derr
}

func (s *Service) classify(op string, err error) *domain.Error {
	var derr *domain.Error
	if errors.As(err, &derr) && derr.Kind != domain.KindUnknown {
		if derr.Op == "" {
			derr.Op = op
		}
		return derr
	}

	s.logger.Error("Counting operation failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	return domain.NewCreationError(op, err)
}

func (s *Service) resolveTeam(ctx context.Context, teamID int64) (*domain.Team, error) {
	team, err := s.teams.ResolveActiveTeam(ctx, teamID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.NotFoundf("team %d not found or inactive", teamID).With("team_id", teamID)
		}
		return nil, fmt.Errorf("failed to resolve team %d: %w", teamID, err)
	}
	return team, nil
}

func validateIDs(field string, ids []int64) error {
	if len(ids) == 0 {
		return domain.Validationf("%s must not be empty", field)
	}

	seen := make(map[int64]struct{}, len(ids))
	var duplicates []int64
	for _, id := range ids {
		if id <= 0 {
			return domain.Validationf("%s must contain positive ids, got %d", field, id).With(field, ids)
		}
		if _, ok := seen[id]; ok {
			duplicates = append(duplicates, id)
			continue
		}
		seen[id] = struct{}{}
	}
	if len(duplicates) > 0 {
		return domain.Validationf("%s must be unique", field).With("duplicates", duplicates)
	}
	return nil
}

// loadJobs fetches every job or fails with NotFound listing the missing ids.
func loadJobs(ctx context.Context, jobs JobStore, ids []int64) ([]domain.Job, error) {
	found, err := jobs.GetJobsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]domain.Job, len(found))
	for _, job := range found {
		byID[job.ID] = job
	}

	ordered := make([]domain.Job, 0, len(ids))
	var missing []int64
	for _, id := range ids {
		job, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		ordered = append(ordered, job)
	}
	if len(missing) > 0 {
		return nil, domain.NotFoundf("jobs not found: %v", missing).With("job_ids", missing)
	}
	return ordered, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
