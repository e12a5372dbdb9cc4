package compose

import (
	"context"
	"image"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/clinic-rx/internal/assets"
	"github.com/wolfman30/clinic-rx/internal/overlay"
	"github.com/wolfman30/clinic-rx/pkg/logging"
)

var composeTracer = otel.Tracer("clinicrx.internal.compose")

// DefaultPrintDelay gives the print document time to lay out before the
// browser print dialog opens.
const DefaultPrintDelay = 500 * time.Millisecond

// Artifact is the content being composed.
type Artifact struct {
	SourceImage string
	Notes       string
	Date        time.Time
}

// Patient is the patient block printed on the document.
type Patient struct {
	FirstName   string
	LastName    string
	MRNumber    string
	Gender      string
	DateOfBirth *time.Time
}

// FullName joins first and last name.
func (p Patient) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// Observer receives composition outcomes. The metrics package implements it.
type Observer interface {
	ObserveComposition(target, outcome string, seconds float64)
	ObserveLogoDegraded(target string)
}

type noopObserver struct{}

func (noopObserver) ObserveComposition(string, string, float64) {}
func (noopObserver) ObserveLogoDegraded(string)                 {}

// Engine renders artifacts with clinic overlays into every output target.
type Engine struct {
	loader     assets.Loader
	logger     *logging.Logger
	observer   Observer
	printDelay time.Duration
	browserRef func(ctx context.Context, ref string) string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver sets the metrics sink.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithPrintDelay overrides how long the print document waits before
// opening the print dialog.
func WithPrintDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.printDelay = d
		}
	}
}

// WithBrowserRefs rewrites stored image references (for example s3://
// refs) into URLs a browser can fetch in previews and print documents. An
// empty result drops the image.
func WithBrowserRefs(fn func(ctx context.Context, ref string) string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.browserRef = fn
		}
	}
}

// NewEngine creates an engine that resolves image references with loader.
func NewEngine(loader assets.Loader, opts ...Option) *Engine {
	if loader == nil {
		panic("compose: loader cannot be nil")
	}
	e := &Engine{
		loader:     loader,
		logger:     logging.Default(),
		observer:   noopObserver{},
		printDelay: DefaultPrintDelay,
		browserRef: func(_ context.Context, ref string) string { return ref },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PrintDelay reports the configured print dialog delay.
func (e *Engine) PrintDelay() time.Duration { return e.printDelay }

type inputs struct {
	source image.Image
	logo   image.Image
}

// loadInputs fetches the source image and the header logo concurrently and
// returns only once both have settled. A failed source aborts; a failed logo
// is logged and dropped.
func (e *Engine) loadInputs(ctx context.Context, target Target, sourceRef string, header overlay.Overlay) (*inputs, error) {
	ctx, span := composeTracer.Start(ctx, "compose.load_inputs")
	defer span.End()
	span.SetAttributes(
		attribute.String("compose.target", string(target)),
		attribute.Bool("compose.has_logo", header.HasLogo()),
	)

	if strings.TrimSpace(sourceRef) == "" {
		return nil, &SourceImageLoadError{Err: ErrMissingSource}
	}

	in := &inputs{}
	var logoErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		img, err := e.loader.Load(gctx, sourceRef)
		if err != nil {
			return &SourceImageLoadError{Ref: sourceRef, Err: err}
		}
		in.source = img
		return nil
	})
	if header.HasLogo() {
		ref := header.Logo.Ref
		g.Go(func() error {
			img, err := e.loader.Load(gctx, ref)
			if err != nil {
				logoErr = &LogoLoadError{Ref: ref, Err: err}
				return nil
			}
			in.logo = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if logoErr != nil {
		e.logger.Warn("logo unavailable, composing without it", "target", target, "error", logoErr)
		e.observer.ObserveLogoDegraded(string(target))
		span.SetAttributes(attribute.Bool("compose.logo_degraded", true))
	}
	return in, nil
}

func (e *Engine) observe(target Target, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.observer.ObserveComposition(string(target), outcome, time.Since(start).Seconds())
}
