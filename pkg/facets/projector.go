package facets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/labrinth-go/labrinth/pkg/async"
	"github.com/labrinth-go/labrinth/pkg/loaderfields"
	"github.com/labrinth-go/labrinth/pkg/observability"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var projectorTracer = otel.Tracer("labrinth/facets/projector")

// VersionSource reads the versions of projects
type VersionSource interface {
	ProjectIDs(ctx context.Context) ([]loaderfields.ProjectID, error)
	ProjectVersionIDs(ctx context.Context, projectID loaderfields.ProjectID) ([]loaderfields.VersionID, error)
	GetFieldsBulk(ctx context.Context, versionIDs []loaderfields.VersionID) (map[loaderfields.VersionID]*loaderfields.VersionMetadata, error)
}

// Index is where documents are pushed
type Index interface {
	Index(ctx context.Context, doc Document) error
	Remove(ctx context.Context, projectID loaderfields.ProjectID) error
}

// RetryQueue holds projects awaiting another projection attempt
type RetryQueue interface {
	Enqueue(ctx context.Context, projectID loaderfields.ProjectID) error
	Dequeue(ctx context.Context, n int) ([]loaderfields.ProjectID, error)
	Len(ctx context.Context) (int64, error)
}

// Projector builds facet documents and pushes them to an Index
type Projector struct {
	source  VersionSource
	index   Index
	queue   RetryQueue
	metrics *observability.Metrics
	log     *logrus.Logger
	workers int
	timeout time.Duration
}

// ProjectorOption configures a Projector
type ProjectorOption func(*Projector)

// WithProjectorMetrics records projection outcomes and queue depth
func WithProjectorMetrics(m *observability.Metrics) ProjectorOption {
	return func(p *Projector) { p.metrics = m }
}

// WithWorkers bounds concurrent projections during drains and reindexes
func WithWorkers(n int) ProjectorOption {
	return func(p *Projector) { p.workers = n }
}

// WithTimeout bounds each projection during drains and reindexes
func WithTimeout(d time.Duration) ProjectorOption {
	return func(p *Projector) { p.timeout = d }
}

// NewProjector creates a projector. queue may be nil, in which case failures
// are only logged.
func NewProjector(source VersionSource, index Index, queue RetryQueue, log *logrus.Logger, opts ...ProjectorOption) *Projector {
	if log == nil {
		log = logrus.New()
	}
	p := &Projector{
		source:  source,
		index:   index,
		queue:   queue,
		log:     log,
		workers: 4,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProjectProject rebuilds and pushes one project's document. On failure the
// project is queued for retry and an error wrapping ErrProjection returned.
func (p *Projector) ProjectProject(ctx context.Context, projectID loaderfields.ProjectID) error {
	err := p.project(ctx, projectID)
	if err == nil {
		return nil
	}

	if p.queue != nil {
		if qerr := p.queue.Enqueue(context.WithoutCancel(ctx), projectID); qerr != nil {
			p.log.WithError(qerr).WithField("project_id", projectID).Error("Failed to queue projection retry")
		}
	}
	return err
}

func (p *Projector) project(ctx context.Context, projectID loaderfields.ProjectID) (err error) {
	ctx, span := projectorTracer.Start(ctx, "ProjectProject",
		trace.WithAttributes(attribute.Int64("project_id", int64(projectID))),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "projection failed")
			p.metrics.RecordProjection("error")
		} else {
			p.metrics.RecordProjection("ok")
		}
		span.End()
	}()

	versionIDs, err := p.source.ProjectVersionIDs(ctx, projectID)
	if err != nil {
		return fmt.Errorf("%w: project %d: %w", loaderfields.ErrProjection, projectID, err)
	}
	if len(versionIDs) == 0 {
		if err := p.index.Remove(ctx, projectID); err != nil {
			return fmt.Errorf("%w: project %d: %w", loaderfields.ErrProjection, projectID, err)
		}
		return nil
	}

	versions, err := p.source.GetFieldsBulk(ctx, versionIDs)
	if err != nil {
		return fmt.Errorf("%w: project %d: %w", loaderfields.ErrProjection, projectID, err)
	}

	doc := BuildDocument(projectID, versions)
	if err := p.index.Index(ctx, doc); err != nil {
		return fmt.Errorf("%w: project %d: %w", loaderfields.ErrProjection, projectID, err)
	}
	return nil
}

// DrainRetries re-projects up to batch queued projects. Projects that fail
// again go back on the queue, as do projects a cancellation kept from
// running. It returns how many succeeded.
func (p *Projector) DrainRetries(ctx context.Context, batch int) (int, error) {
	if p.queue == nil {
		return 0, nil
	}

	ids, err := p.queue.Dequeue(ctx, batch)
	if err != nil {
		return 0, err
	}

	// A projection that ran has either been indexed or queued itself again
	var mu sync.Mutex
	ran := make(map[loaderfields.ProjectID]bool, len(ids))
	succeeded := 0
	errs := async.Batch(ctx, ids, p.workers, p.timeout, func(ctx context.Context, id loaderfields.ProjectID) error {
		mu.Lock()
		ran[id] = true
		mu.Unlock()
		if err := p.ProjectProject(ctx, id); err != nil {
			return err
		}
		mu.Lock()
		succeeded++
		mu.Unlock()
		return nil
	})
	if ctx.Err() != nil {
		requeued := 0
		for _, id := range ids {
			if ran[id] {
				continue
			}
			requeued++
			if err := p.queue.Enqueue(context.WithoutCancel(ctx), id); err != nil {
				p.log.WithError(err).WithField("project_id", id).Error("Failed to requeue projection")
			}
		}
		p.log.WithField("requeued", requeued).Warn("Projection retry drain interrupted")
	}
	if depth, err := p.queue.Len(context.WithoutCancel(ctx)); err == nil {
		p.metrics.SetProjectionRetryDepth(depth)
	}

	p.log.WithFields(logrus.Fields{
		"attempted": len(ids),
		"succeeded": succeeded,
	}).Info("Drained projection retries")

	if len(errs) > 0 {
		return succeeded, fmt.Errorf("%d of %d retried projections did not complete: %w", len(ids)-succeeded, len(ids), errors.Join(errs...))
	}
	return succeeded, nil
}

// ReindexAll re-projects every project that has versions
func (p *Projector) ReindexAll(ctx context.Context) error {
	ids, err := p.source.ProjectIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}

	start := time.Now()
	errs := async.Batch(ctx, ids, p.workers, p.timeout, p.ProjectProject)

	p.log.WithFields(logrus.Fields{
		"projects": len(ids),
		"failed":   len(errs),
		"duration": time.Since(start).String(),
	}).Info("Reindexed project facets")

	if len(errs) > 0 {
		return fmt.Errorf("%d of %d projections failed: %w", len(errs), len(ids), errors.Join(errs...))
	}
	return nil
}
