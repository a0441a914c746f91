package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/events"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/pipeline"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/repository"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/storage"
	"github.com/ecodeli/ecodeli-backend/pkg/errors"
	"github.com/ecodeli/ecodeli-backend/pkg/logger"
	"github.com/ecodeli/ecodeli-backend/pkg/messaging"
	"github.com/ecodeli/ecodeli-backend/pkg/metrics"
)

// AuditRecorder stores one row per validation
type AuditRecorder interface {
	Record(ctx context.Context, rec *repository.ValidationRecord) error
}

// EventPublisher announces finished validations
type EventPublisher interface {
	PublishValidated(ctx context.Context, event *messaging.DocumentValidatedEvent) error
}

// Request is a validation request as received from HTTP or the bus
type Request struct {
	FileReference    string
	ExpectedCategory domain.DocumentCategory
	UserID           string
	Metadata         map[string]string
}

// Verdict is the outcome of a validation together with its bookkeeping
type Verdict struct {
	ValidationID     string                   `json:"validationId"`
	UserID           string                   `json:"userId,omitempty"`
	FileReference    string                   `json:"fileReference"`
	ExpectedCategory domain.DocumentCategory  `json:"expectedCategory"`
	Fingerprint      string                   `json:"fingerprint,omitempty"`
	Backend          string                   `json:"backend"`
	FellBack         bool                     `json:"fellBack"`
	ValidatedAt      time.Time                `json:"validatedAt"`
	Result           *domain.ValidationResult `json:"result"`
}

// DocumentService resolves file references, runs the pipeline and records
// the outcome. Persistence and publishing are best effort.
type DocumentService struct {
	pipeline  *pipeline.Pipeline
	resolver  storage.Resolver
	audit     AuditRecorder
	publisher EventPublisher
	metrics   *metrics.ValidationMetrics
	logger    *logger.Logger
	now       func() time.Time
}

// Option configures a DocumentService
type Option func(*DocumentService)

// WithAudit records every validation through a
func WithAudit(a AuditRecorder) Option {
	return func(s *DocumentService) { s.audit = a }
}

// WithPublisher publishes a validated event after every validation
func WithPublisher(p EventPublisher) Option {
	return func(s *DocumentService) { s.publisher = p }
}

// WithMetrics records Prometheus metrics
func WithMetrics(m *metrics.ValidationMetrics) Option {
	return func(s *DocumentService) { s.metrics = m }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *DocumentService) { s.now = now }
}

// NewDocumentService creates a new document service
func NewDocumentService(p *pipeline.Pipeline, resolver storage.Resolver, log *logger.Logger, opts ...Option) *DocumentService {
	if log == nil {
		log = logger.Nop()
	}
	s := &DocumentService{
		pipeline: p,
		resolver: resolver,
		logger:   log.WithComponent("document-service"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate validates the referenced document. Errors are only returned when
// the reference cannot be resolved or storage cannot be reached. Everything
// else, a missing file included, is reported inside the verdict's result.
func (s *DocumentService) Validate(ctx context.Context, req Request) (*Verdict, error) {
	path, release, err := s.resolve(ctx, req.FileReference)
	if err != nil {
		if stderrors.Is(err, storage.ErrInvalidReference) {
			return nil, errors.InvalidFileReference(err)
		}
		return nil, errors.Wrap(err, "STORAGE_UNAVAILABLE", "document storage is unavailable", http.StatusServiceUnavailable)
	}
	defer release()

	s.metrics.StartValidation()

	validationID := uuid.New().String()
	log := s.logger.WithValidationID(validationID).WithUserID(req.UserID)

	result, report := s.pipeline.Run(ctx, pipeline.Request{
		Path:     path,
		Expected: req.ExpectedCategory,
		UserID:   req.UserID,
		Metadata: req.Metadata,
	})

	verdict := &Verdict{
		ValidationID:     validationID,
		UserID:           req.UserID,
		FileReference:    req.FileReference,
		ExpectedCategory: req.ExpectedCategory,
		Backend:          report.Outcome.Backend,
		FellBack:         report.Outcome.FellBack,
		ValidatedAt:      s.now().UTC(),
		Result:           result,
	}
	if !report.Rejected {
		verdict.Fingerprint = storage.Fingerprint(path)
	}

	s.metrics.FinishValidation(observation(result, report))
	s.record(ctx, log, verdict, report)
	s.publish(ctx, log, verdict, report)

	log.Info().
		Str("category", string(result.DocumentCategory)).
		Bool("valid", result.IsValid).
		Float64("confidence", result.Confidence).
		Str("backend", report.Outcome.Backend).
		Bool("fell_back", report.Outcome.FellBack).
		Dur("duration", report.Duration).
		Msg("document validation completed")

	return verdict, nil
}

// resolve maps a reference to a local path. A referenced document that does
// not exist is passed through so the file checks report it like any other
// missing file.
func (s *DocumentService) resolve(ctx context.Context, ref string) (string, func(), error) {
	if s.resolver == nil {
		return ref, func() {}, nil
	}
	path, release, err := s.resolver.Resolve(ctx, ref)
	if stderrors.Is(err, storage.ErrNotFound) {
		return ref, func() {}, nil
	}
	if err != nil {
		return "", nil, err
	}
	return path, release, nil
}

func (s *DocumentService) record(ctx context.Context, log *logger.Logger, v *Verdict, report pipeline.Report) {
	if s.audit == nil {
		return
	}
	issues, _ := json.Marshal(v.Result.Issues)
	suggestions, _ := json.Marshal(v.Result.Suggestions)

	rec := &repository.ValidationRecord{
		ID:               v.ValidationID,
		UserID:           v.UserID,
		FileReference:    v.FileReference,
		Fingerprint:      v.Fingerprint,
		ExpectedCategory: string(v.ExpectedCategory),
		DetectedCategory: string(v.Result.DocumentCategory),
		IsValid:          v.Result.IsValid,
		Confidence:       v.Result.Confidence,
		Issues:           issues,
		Suggestions:      suggestions,
		Backend:          v.Backend,
		FellBack:         v.FellBack,
		FallbackReason:   report.Outcome.Reason,
		DurationMS:       report.Duration.Milliseconds(),
	}
	if err := s.audit.Record(ctx, rec); err != nil {
		log.Warn().Err(err).Msg("failed to record validation")
	}
}

func (s *DocumentService) publish(ctx context.Context, log *logger.Logger, v *Verdict, report pipeline.Report) {
	if s.publisher == nil {
		return
	}
	event := events.NewValidatedEvent(events.Validation{
		ID:            v.ValidationID,
		UserID:        v.UserID,
		FileReference: v.FileReference,
		Fingerprint:   v.Fingerprint,
		Expected:      v.ExpectedCategory,
		Result:        v.Result,
		Outcome:       report.Outcome,
		At:            v.ValidatedAt,
	})
	if err := s.publisher.PublishValidated(ctx, event); err != nil {
		log.Warn().Err(err).Msg("failed to publish validation event")
	}
}

func observation(result *domain.ValidationResult, report pipeline.Report) metrics.Observation {
	outcome := metrics.OutcomeInvalid
	switch {
	case report.Panicked:
		outcome = metrics.OutcomeFailed
	case report.Rejected:
		outcome = metrics.OutcomeRejected
	case result.IsValid:
		outcome = metrics.OutcomeValid
	}

	labels := make([]metrics.IssueLabel, 0, len(result.Issues))
	for _, issue := range result.Issues {
		labels = append(labels, metrics.IssueLabel{Code: issue.Code, Severity: string(issue.Severity)})
	}

	return metrics.Observation{
		Backend:    report.Outcome.Backend,
		Outcome:    outcome,
		Category:   string(result.DocumentCategory),
		Confidence: result.Confidence,
		FellBack:   report.Outcome.FellBack,
		Reason:     report.Outcome.Reason,
		Duration:   report.Duration,
		Issues:     labels,
	}
}
