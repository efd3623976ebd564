package captcha

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"euserv-renewer/internal/components/assert"
	"euserv-renewer/internal/components/telemetry"
)

const (
	report_solver_solve = "solver.solve"
)

// ErrUnrecognized is returned when the image could not be processed or the
// classifier failed, there is no answer to submit.
var ErrUnrecognized = errors.New("captcha: unrecognized")

// Classifier is the OCR engine: cleaned image bytes in, raw text out.
type Classifier interface {
	Classify(ctx context.Context, image []byte) (string, error)
}

// exclusiveClassifier lets one caller at a time into the wrapped classifier.
type exclusiveClassifier struct {
	mu    sync.Mutex
	inner Classifier
}

func (c *exclusiveClassifier) Classify(ctx context.Context, image []byte) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Classify(ctx, image)
}

// Solver turns captcha images into answers. One Solver is shared by every
// account worker, only the classification step is serialized.
type Solver struct {
	classifier *exclusiveClassifier
	filter     Filter
	tel        telemetry.API
}

func NewSolver(classifier Classifier, filter Filter, tel telemetry.API) *Solver {
	assert.NotNil(classifier)
	assert.NotNil(tel)

	return &Solver{
		classifier: &exclusiveClassifier{inner: classifier},
		filter:     filter,
		tel:        telemetry.NewScopedAPI("captcha", tel),
	}
}

// Solve returns the answer for a captcha image. The error is ErrUnrecognized
// only when preprocessing or classification fails or produces no text.
func (s *Solver) Solve(ctx context.Context, image []byte) (string, error) {
	cleaned, err := Preprocess(image, s.filter)
	if err != nil {
		s.tel.ReportBroken(report_solver_solve, err)
		return "", fmt.Errorf("%w: %w", ErrUnrecognized, err)
	}

	text, err := s.classifier.Classify(ctx, cleaned)
	if err != nil {
		s.tel.ReportBroken(report_solver_solve, fmt.Errorf("classify: %w", err))
		return "", fmt.Errorf("%w: %w", ErrUnrecognized, err)
	}

	answer := Decide(text)
	if answer == "" {
		s.tel.ReportWarning(report_solver_solve, "classifier returned no text")
		return "", ErrUnrecognized
	}

	s.tel.ReportDebug("solved captcha", text, answer)
	return answer, nil
}
