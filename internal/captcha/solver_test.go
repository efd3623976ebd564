package captcha

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"euserv-renewer/internal/components/telemetry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClassifier struct {
	text    string
	err     error
	active  atomic.Int32
	overlap atomic.Bool
}

func (c *fakeClassifier) Classify(ctx context.Context, image []byte) (string, error) {
	if c.active.Add(1) > 1 {
		c.overlap.Store(true)
	}
	defer c.active.Add(-1)
	time.Sleep(time.Millisecond)
	return c.text, c.err
}

func testImage(t *testing.T) []byte {
	return encodeTestImage(t, image.NewNRGBA(image.Rect(0, 0, 30, 30)))
}

func TestSolverSolve(t *testing.T) {
	solver := NewSolver(&fakeClassifier{text: " 2+3 "}, DefaultFilter, telemetry.Noop{})
	answer, err := solver.Solve(context.Background(), testImage(t))
	require.NoError(t, err)
	require.Equal(t, "5", answer)
}

func TestSolverUnrecognized(t *testing.T) {
	table := []struct {
		name       string
		classifier *fakeClassifier
		image      []byte
	}{
		{name: "bad image", classifier: &fakeClassifier{text: "2+3"}, image: []byte("garbage")},
		{name: "classifier fault", classifier: &fakeClassifier{err: errors.New("model crashed")}, image: testImage(t)},
		{name: "no text", classifier: &fakeClassifier{text: "   "}, image: testImage(t)},
	}

	for _, test := range table {
		t.Run(test.name, func(t *testing.T) {
			solver := NewSolver(test.classifier, DefaultFilter, telemetry.Noop{})
			_, err := solver.Solve(context.Background(), test.image)
			require.ErrorIs(t, err, ErrUnrecognized)
		})
	}
}

func TestSolverSerializesClassifier(t *testing.T) {
	classifier := &fakeClassifier{text: "abcdef"}
	solver := NewSolver(classifier, DefaultFilter, telemetry.Noop{})
	img := testImage(t)

	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			answer, err := solver.Solve(context.Background(), img)
			assert.NoError(t, err)
			assert.Equal(t, "ABCDEF", answer)
		}()
	}
	wg.Wait()

	require.False(t, classifier.overlap.Load())
}
