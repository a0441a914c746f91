package pipeline

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/composer"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/precheck"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/processor"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/rules"
	"github.com/ecodeli/ecodeli-backend/pkg/logger"
)

// Dependencies are the collaborators of a Pipeline. Every field is optional.
type Dependencies struct {
	// Classifier is the remote backend selected from configuration.
	// Nil means every request uses the filename classifier.
	Classifier processor.Classifier
	Breaker    processor.BreakerConfig
	Finder     rules.ApprovedDocumentFinder
	Logger     *logger.Logger
	Clock      func() time.Time
}

// Request is a single validation request
type Request struct {
	Path     string
	Expected domain.DocumentCategory
	UserID   string
	Metadata map[string]string
}

// Report describes how a request went through the stages
type Report struct {
	Outcome  processor.Outcome
	Rejected bool // stopped by the file checks
	Panicked bool
	Duration time.Duration
}

// Pipeline chains the file checks, the backend dispatch, the business rules
// and the suggestion composer. It is safe for concurrent use.
type Pipeline struct {
	cfg        domain.ValidationConfig
	checker    *precheck.Checker
	dispatcher *processor.Dispatcher
	rules      *rules.Engine
	composer   *composer.Composer
	now        func() time.Time
	log        *logger.Logger
}

// New builds a pipeline. cfg is copied and never re-read.
func New(cfg domain.ValidationConfig, deps Dependencies) *Pipeline {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		cfg:        cfg,
		checker:    precheck.NewChecker(cfg),
		dispatcher: processor.NewDispatcher(cfg, deps.Classifier, deps.Breaker, log),
		rules:      rules.NewEngine(cfg, deps.Finder, log, rules.WithClock(now)),
		composer:   composer.New(),
		now:        now,
		log:        log.WithComponent("pipeline"),
	}
}

// Config returns the configuration the pipeline was built with
func (p *Pipeline) Config() domain.ValidationConfig {
	return p.cfg
}

// Backend returns the name of the configured classification backend
func (p *Pipeline) Backend() string {
	return p.dispatcher.Backend()
}

// ValidateDocument validates the file at fileRef. It always returns a result.
func (p *Pipeline) ValidateDocument(ctx context.Context, fileRef string, expected domain.DocumentCategory, userID string, metadata map[string]string) *domain.ValidationResult {
	result, _ := p.Run(ctx, Request{Path: fileRef, Expected: expected, UserID: userID, Metadata: metadata})
	return result
}

// Run validates a request and reports how it was processed.
// Internal faults, panics included, produce a VALIDATION_FAILED result.
func (p *Pipeline) Run(ctx context.Context, req Request) (result *domain.ValidationResult, report Report) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error().
				Str("panic", fmt.Sprint(rec)).
				Str("stack", string(debug.Stack())).
				Msg("validation pipeline panicked")
			result = domain.FailedResult("Document validation failed unexpectedly")
			report.Panicked = true
		}
		report.Duration = time.Since(start)
	}()

	checked := p.checker.Check(ctx, req.Path)
	if checked.HasErrors() {
		report.Rejected = true
		return p.composer.Compose(ctx, checked), report
	}

	classified, outcome := p.dispatcher.Dispatch(ctx, processor.Submission{
		Path:       req.Path,
		Expected:   req.Expected,
		Metadata:   req.Metadata,
		ReceivedAt: p.now(),
	})
	report.Outcome = outcome

	merged := merge(checked, classified)
	ruled := p.rules.Apply(ctx, merged, rules.Subject{
		UserID:       req.UserID,
		Expected:     req.Expected,
		FilenameOnly: outcome.Backend == processor.BasicBackend,
	})

	if p.cfg.StrictMode() && ruled.Confidence < p.cfg.MinimumConfidence() {
		ruled.AddIssue(domain.NewIssue(domain.SeverityError, domain.CodeLowConfidence,
			fmt.Sprintf("Confidence %.2f is below the required %.2f", ruled.Confidence, p.cfg.MinimumConfidence())))
	}

	result = p.composer.Compose(ctx, ruled)

	p.log.Debug().
		Str("category", string(result.DocumentCategory)).
		Bool("valid", result.IsValid).
		Float64("confidence", result.Confidence).
		Str("backend", outcome.Backend).
		Bool("fell_back", outcome.FellBack).
		Int("issues", len(result.Issues)).
		Msg("document validated")

	return result, report
}

// merge seeds the classification with the checker's findings
func merge(checked, classified *domain.ValidationResult) *domain.ValidationResult {
	out := classified.Clone()
	out.Issues = append(append(make([]domain.Issue, 0, len(checked.Issues)+len(out.Issues)), checked.Issues...), out.Issues...)
	out.SetConfidence(math.Min(checked.Confidence, classified.Confidence))
	return out
}
