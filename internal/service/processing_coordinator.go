package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/rendus-api/internal/dto"
	"github.com/noah-isme/rendus-api/internal/models"
	"github.com/noah-isme/rendus-api/internal/observability"
	"github.com/noah-isme/rendus-api/internal/report"
	"github.com/noah-isme/rendus-api/internal/repository"
	"github.com/noah-isme/rendus-api/pkg/coursebackend"
)

// ErrProcessingInFlight is returned when the same workflow already runs for a TP.
var ErrProcessingInFlight = errors.New("processing already in progress for this tp")

// ProcessingState is the coordinator state of one TP.
type ProcessingState string

const (
	ProcessingIdle        ProcessingState = "idle"
	ProcessingTriggering  ProcessingState = "triggering"
	ProcessingReconciling ProcessingState = "reconciling"
	ProcessingRefreshing  ProcessingState = "refreshing"
)

const (
	defaultRunTimeout  = 2 * time.Minute
	journalWriteBudget = 5 * time.Second
)

// ProcessingCoordinator serialises the restructure and refresh workflows per TP.
type ProcessingCoordinator interface {
	// Trigger schedules a restructure run and returns once the TP is reserved.
	Trigger(ctx context.Context, courseID uint, tpNo int, actorID uint) error
	// Refresh schedules a status refresh run.
	Refresh(ctx context.Context, courseID uint, tpNo int, actorID uint) error
	// Run executes a restructure run synchronously.
	Run(ctx context.Context, courseID uint, tpNo int, actorID uint) (models.ProcessingRun, error)
	// RunRefresh executes a refresh run synchronously.
	RunRefresh(ctx context.Context, courseID uint, tpNo int, actorID uint) (models.ProcessingRun, error)
	Snapshot(courseID uint) []dto.ProcessingStatusResponse
	View(courseID uint) report.ProcessingView
	Runs(ctx context.Context, filter repository.ProcessingRunFilter) ([]models.ProcessingRun, int64, error)
	// LatestRuns returns the last journaled run of every TP of the course, ordered by TP number.
	LatestRuns(ctx context.Context, courseID uint) ([]models.ProcessingRun, error)
	Shutdown(ctx context.Context) error
}

// CoordinatorConfig tunes the processing coordinator.
type CoordinatorConfig struct {
	Settler    Settler
	RunTimeout time.Duration
}

type processingKey struct {
	courseID uint
	tpNo     int
}

type processingEntry struct {
	state     ProcessingState
	startedAt time.Time
}

type processingCoordinator struct {
	backend ProcessingBackend
	runs    repository.ProcessingRunRepository
	cache   *SnapshotCache
	events  EventPublisher
	settler Settler
	timeout time.Duration
	logger  zerolog.Logger
	tracer  trace.Tracer
	now     func() time.Time

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	restructure map[processingKey]processingEntry
	refreshing  map[processingKey]processingEntry
}

// NewProcessingCoordinator constructs the coordinator. The journal, cache and event
// publisher are optional.
func NewProcessingCoordinator(backend ProcessingBackend, runs repository.ProcessingRunRepository, cache *SnapshotCache, events EventPublisher, cfg CoordinatorConfig, logger zerolog.Logger) ProcessingCoordinator {
	settler := cfg.Settler
	if settler == nil {
		settler = NewFixedDelaySettler(defaultSettleDelay)
	}
	timeout := cfg.RunTimeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}

	base, cancel := context.WithCancel(context.Background())
	return &processingCoordinator{
		backend:     backend,
		runs:        runs,
		cache:       cache,
		events:      events,
		settler:     settler,
		timeout:     timeout,
		logger:      logger.With().Str("component", "processing_coordinator").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/rendus-api/internal/service/processing"),
		now:         time.Now,
		base:        base,
		cancel:      cancel,
		restructure: make(map[processingKey]processingEntry),
		refreshing:  make(map[processingKey]processingEntry),
	}
}

func (c *processingCoordinator) Trigger(ctx context.Context, courseID uint, tpNo int, actorID uint) error {
	key := processingKey{courseID: courseID, tpNo: tpNo}
	if err := c.reserve(c.restructure, key, ProcessingTriggering); err != nil {
		return err
	}
	c.background(ctx, func(runCtx context.Context) {
		_, _ = c.restructureRun(runCtx, key, actorID)
	})
	return nil
}

func (c *processingCoordinator) Refresh(ctx context.Context, courseID uint, tpNo int, actorID uint) error {
	key := processingKey{courseID: courseID, tpNo: tpNo}
	if err := c.reserve(c.refreshing, key, ProcessingRefreshing); err != nil {
		return err
	}
	c.background(ctx, func(runCtx context.Context) {
		_, _ = c.refreshRun(runCtx, key, actorID)
	})
	return nil
}

func (c *processingCoordinator) Run(ctx context.Context, courseID uint, tpNo int, actorID uint) (models.ProcessingRun, error) {
	key := processingKey{courseID: courseID, tpNo: tpNo}
	if err := c.reserve(c.restructure, key, ProcessingTriggering); err != nil {
		return models.ProcessingRun{}, err
	}
	return c.restructureRun(ctx, key, actorID)
}

func (c *processingCoordinator) RunRefresh(ctx context.Context, courseID uint, tpNo int, actorID uint) (models.ProcessingRun, error) {
	key := processingKey{courseID: courseID, tpNo: tpNo}
	if err := c.reserve(c.refreshing, key, ProcessingRefreshing); err != nil {
		return models.ProcessingRun{}, err
	}
	return c.refreshRun(ctx, key, actorID)
}

// background runs fn detached from the request, bounded by the run timeout and
// cancelled on shutdown. The caller's bearer token and correlation id are carried over.
func (c *processingCoordinator) background(ctx context.Context, fn func(context.Context)) {
	token := coursebackend.TokenFromContext(ctx)
	correlation := coursebackend.CorrelationIDFromContext(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		runCtx, cancel := context.WithTimeout(c.base, c.timeout)
		defer cancel()
		runCtx = coursebackend.WithCorrelationID(coursebackend.WithToken(runCtx, token), correlation)
		fn(runCtx)
	}()
}

func (c *processingCoordinator) restructureRun(ctx context.Context, key processingKey, actorID uint) (models.ProcessingRun, error) {
	kind := models.ProcessingKindRestructure
	started := c.now().UTC()
	observability.ProcessingInFlight().WithLabelValues(string(kind)).Inc()
	defer observability.ProcessingInFlight().WithLabelValues(string(kind)).Dec()

	spanCtx, span := c.tracer.Start(ctx, "processing.restructure", trace.WithAttributes(
		attribute.Int64("course.id", int64(key.courseID)),
		attribute.Int("tp.no", key.tpNo),
		attribute.String("settler", c.settler.Name()),
	))
	defer span.End()

	c.publish(spanCtx, key, dto.EventProcessingStarted, ProcessingTriggering, "Traitement démarré")

	if err := c.backend.StartProcessing(spanCtx, key.courseID, key.tpNo); err != nil {
		if abandoned(spanCtx) {
			return c.abandon(c.restructure, key, kind)
		}
		c.release(c.restructure, key)
		span.RecordError(err)
		span.SetStatus(codes.Error, "trigger failed")
		c.logger.Error().Err(err).Uint("course_id", key.courseID).Int("tp_no", key.tpNo).Msg("processing trigger failed")
		c.publish(spanCtx, key, dto.EventProcessingFailed, ProcessingIdle, "Échec du déclenchement du traitement")
		run := c.journal(spanCtx, key, kind, models.ProcessingTriggerFailed, err, actorID, started)
		return run, fmt.Errorf("trigger processing: %w", backendError(err))
	}

	c.setState(c.restructure, key, ProcessingReconciling)

	if err := c.settler.Settle(spanCtx, key.courseID, key.tpNo); err != nil && abandoned(spanCtx) {
		return c.abandon(c.restructure, key, kind)
	}

	tp, err := c.backend.ManageTP(spanCtx, key.courseID, key.tpNo)
	if err != nil {
		if abandoned(spanCtx) {
			return c.abandon(c.restructure, key, kind)
		}
		c.release(c.restructure, key)
		span.RecordError(err)
		// The restructured archive exists even though statuses were not reconciled.
		c.cache.Invalidate(spanCtx, key.courseID)
		c.logger.Warn().Err(err).Uint("course_id", key.courseID).Int("tp_no", key.tpNo).Msg("status reconciliation failed after processing")
		c.publish(spanCtx, key, dto.EventProcessingStale, ProcessingIdle, "Traitement terminé, statuts non mis à jour")
		return c.journal(spanCtx, key, kind, models.ProcessingStaleStatuses, err, actorID, started), nil
	}

	c.release(c.restructure, key)
	c.cache.Invalidate(spanCtx, key.courseID)
	c.publish(spanCtx, key, dto.EventProcessingCompleted, ProcessingIdle, "Traitement terminé")
	run := c.journal(spanCtx, key, kind, models.ProcessingSucceeded, nil, actorID, started,
		"downloadable", tp.Downloadable(), "status_count", len(tp.StatusStudents))
	return run, nil
}

func (c *processingCoordinator) refreshRun(ctx context.Context, key processingKey, actorID uint) (models.ProcessingRun, error) {
	kind := models.ProcessingKindRefresh
	started := c.now().UTC()
	observability.ProcessingInFlight().WithLabelValues(string(kind)).Inc()
	defer observability.ProcessingInFlight().WithLabelValues(string(kind)).Dec()

	spanCtx, span := c.tracer.Start(ctx, "processing.refresh", trace.WithAttributes(
		attribute.Int64("course.id", int64(key.courseID)),
		attribute.Int("tp.no", key.tpNo),
	))
	defer span.End()

	c.publish(spanCtx, key, dto.EventRefreshStarted, ProcessingRefreshing, "Actualisation des statuts")

	statuses, err := c.backend.RefreshStatuses(spanCtx, key.courseID, key.tpNo)
	if err != nil {
		if abandoned(spanCtx) {
			return c.abandon(c.refreshing, key, kind)
		}
		c.release(c.refreshing, key)
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		c.logger.Error().Err(err).Uint("course_id", key.courseID).Int("tp_no", key.tpNo).Msg("status refresh failed")
		c.publish(spanCtx, key, dto.EventRefreshFailed, ProcessingIdle, "Échec de l'actualisation des statuts")
		run := c.journal(spanCtx, key, kind, models.ProcessingRefreshFailed, err, actorID, started)
		return run, fmt.Errorf("refresh statuses: %w", backendError(err))
	}

	c.release(c.refreshing, key)
	c.cache.Invalidate(spanCtx, key.courseID)
	c.publish(spanCtx, key, dto.EventRefreshCompleted, ProcessingIdle, "Statuts actualisés")
	return c.journal(spanCtx, key, kind, models.ProcessingSucceeded, nil, actorID, started, "status_count", len(statuses)), nil
}

func abandoned(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}

// abandon clears the TP state without emitting events or journaling.
func (c *processingCoordinator) abandon(states map[processingKey]processingEntry, key processingKey, kind models.ProcessingKind) (models.ProcessingRun, error) {
	c.release(states, key)
	c.logger.Info().Uint("course_id", key.courseID).Int("tp_no", key.tpNo).Str("kind", string(kind)).Msg("processing run abandoned")
	return models.ProcessingRun{}, context.Canceled
}

func (c *processingCoordinator) reserve(states map[processingKey]processingEntry, key processingKey, state ProcessingState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := states[key]; busy {
		return ErrProcessingInFlight
	}
	states[key] = processingEntry{state: state, startedAt: c.now().UTC()}
	return nil
}

func (c *processingCoordinator) setState(states map[processingKey]processingEntry, key processingKey, state ProcessingState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := states[key]; ok {
		entry.state = state
		states[key] = entry
	}
}

func (c *processingCoordinator) release(states map[processingKey]processingEntry, key processingKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(states, key)
}

func (c *processingCoordinator) publish(ctx context.Context, key processingKey, eventType dto.ProcessingEventType, state ProcessingState, message string) {
	if c.events == nil {
		return
	}
	c.events.Publish(ctx, dto.ProcessingEvent{
		Type:       eventType,
		CourseID:   key.courseID,
		TPNo:       key.tpNo,
		State:      string(state),
		Message:    message,
		OccurredAt: c.now().UTC(),
	})
}

// journal records the run. Failures to persist are logged and never change the outcome.
func (c *processingCoordinator) journal(ctx context.Context, key processingKey, kind models.ProcessingKind, outcome models.ProcessingOutcome, cause error, actorID uint, started time.Time, metadata ...interface{}) models.ProcessingRun {
	observability.ProcessingRuns().WithLabelValues(string(kind), string(outcome)).Inc()

	run := models.ProcessingRun{
		CourseID:   key.courseID,
		TPNo:       key.tpNo,
		Kind:       kind,
		Outcome:    outcome,
		ActorID:    actorID,
		StartedAt:  started,
		FinishedAt: c.now().UTC(),
		Metadata:   datatypes.JSONMap{"settler": c.settler.Name()},
	}
	if cause != nil {
		run.Error = cause.Error()
	}
	for i := 0; i+1 < len(metadata); i += 2 {
		if name, ok := metadata[i].(string); ok {
			run.Metadata[name] = metadata[i+1]
		}
	}

	if c.runs == nil {
		return run
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalWriteBudget)
	defer cancel()
	if err := c.runs.Create(writeCtx, &run); err != nil {
		c.logger.Warn().Err(err).Uint("course_id", key.courseID).Int("tp_no", key.tpNo).Msg("failed to journal processing run")
	}
	return run
}

func (c *processingCoordinator) Snapshot(courseID uint) []dto.ProcessingStatusResponse {
	c.mu.Lock()
	byTP := make(map[int]*dto.ProcessingStatusResponse)
	for key, entry := range c.restructure {
		if key.courseID != courseID {
			continue
		}
		byTP[key.tpNo] = &dto.ProcessingStatusResponse{
			CourseID:  courseID,
			TPNo:      key.tpNo,
			State:     string(entry.state),
			StartedAt: entry.startedAt,
		}
	}
	for key, entry := range c.refreshing {
		if key.courseID != courseID {
			continue
		}
		item, ok := byTP[key.tpNo]
		if !ok {
			item = &dto.ProcessingStatusResponse{
				CourseID:  courseID,
				TPNo:      key.tpNo,
				State:     string(ProcessingIdle),
				StartedAt: entry.startedAt,
			}
			byTP[key.tpNo] = item
		}
		item.Refreshing = true
	}
	c.mu.Unlock()

	items := make([]dto.ProcessingStatusResponse, 0, len(byTP))
	for _, item := range byTP {
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].TPNo < items[j].TPNo })
	return items
}

// processingView is a point-in-time copy of the coordinator state of one course.
type processingView struct {
	processing map[int]bool
	refreshing map[int]bool
}

func (v processingView) IsProcessing(tpNo int) bool { return v.processing[tpNo] }
func (v processingView) IsRefreshing(tpNo int) bool { return v.refreshing[tpNo] }

func (c *processingCoordinator) View(courseID uint) report.ProcessingView {
	view := processingView{processing: map[int]bool{}, refreshing: map[int]bool{}}
	for _, item := range c.Snapshot(courseID) {
		if item.State != string(ProcessingIdle) {
			view.processing[item.TPNo] = true
		}
		if item.Refreshing {
			view.refreshing[item.TPNo] = true
		}
	}
	return view
}

func (c *processingCoordinator) Runs(ctx context.Context, filter repository.ProcessingRunFilter) ([]models.ProcessingRun, int64, error) {
	if c.runs == nil {
		return []models.ProcessingRun{}, 0, nil
	}
	return c.runs.List(ctx, filter)
}

func (c *processingCoordinator) LatestRuns(ctx context.Context, courseID uint) ([]models.ProcessingRun, error) {
	if c.runs == nil {
		return []models.ProcessingRun{}, nil
	}
	byTP, err := c.runs.LatestByTP(ctx, courseID)
	if err != nil {
		return nil, err
	}

	runs := make([]models.ProcessingRun, 0, len(byTP))
	for _, run := range byTP {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].TPNo < runs[j].TPNo })
	return runs, nil
}

// Shutdown cancels pending runs and waits for them to return.
func (c *processingCoordinator) Shutdown(ctx context.Context) error {
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
