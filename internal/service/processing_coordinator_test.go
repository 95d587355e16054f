package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rendus-api/internal/dto"
	"github.com/noah-isme/rendus-api/internal/models"
	"github.com/noah-isme/rendus-api/internal/repository"
)

func newTestCoordinator(t *testing.T, backend *fakeBackend, settler Settler) (ProcessingCoordinator, *recordingPublisher, repository.ProcessingRunRepository, *SnapshotCache) {
	t.Helper()
	_, client := setupTestRedis(t)
	cache := NewSnapshotCache(client, time.Minute, testLogger())
	runs := repository.NewProcessingRunRepository(setupServiceTestDB(t))
	events := &recordingPublisher{}
	if settler == nil {
		settler = noSettle{}
	}
	coordinator := NewProcessingCoordinator(backend, runs, cache, events, CoordinatorConfig{Settler: settler, RunTimeout: 5 * time.Second}, testLogger())
	t.Cleanup(func() { _ = coordinator.Shutdown(context.Background()) })
	return coordinator, events, runs, cache
}

func TestProcessingCoordinatorRunSucceeds(t *testing.T) {
	course := sampleCourse()
	backend := newFakeBackend(course)
	coordinator, events, runs, cache := newTestCoordinator(t, backend, nil)
	ctx := context.Background()

	cache.Set(ctx, course)
	_, cached := cache.Get(ctx, course.ID)
	require.True(t, cached)

	run, err := coordinator.Run(ctx, course.ID, 1, 5)
	require.NoError(t, err)
	require.Equal(t, models.ProcessingSucceeded, run.Outcome)
	require.Equal(t, uint(5), run.ActorID)
	require.Equal(t, true, run.Metadata["downloadable"])

	start, manage, _ := backend.counts()
	require.Equal(t, 1, start)
	require.Equal(t, 1, manage)

	require.Equal(t, []dto.ProcessingEventType{dto.EventProcessingStarted, dto.EventProcessingCompleted}, events.types())

	_, cached = cache.Get(ctx, course.ID)
	require.False(t, cached, "successful reconcile must invalidate the snapshot")

	stored, total, err := runs.List(ctx, repository.ProcessingRunFilter{CourseID: course.ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, models.ProcessingKindRestructure, stored[0].Kind)
	require.Empty(t, coordinator.Snapshot(course.ID))
}

func TestProcessingCoordinatorTriggerFailure(t *testing.T) {
	backend := newFakeBackend(sampleCourse())
	backend.startErr = errBackendDown
	coordinator, events, _, _ := newTestCoordinator(t, backend, nil)

	run, err := coordinator.Run(context.Background(), 7, 1, 0)
	require.ErrorIs(t, err, ErrBackendUnavailable)
	require.Equal(t, models.ProcessingTriggerFailed, run.Outcome)
	require.NotEmpty(t, run.Error)

	_, manage, _ := backend.counts()
	require.Zero(t, manage, "no reconcile after a failed trigger")
	require.Equal(t, []dto.ProcessingEventType{dto.EventProcessingStarted, dto.EventProcessingFailed}, events.types())
	require.Empty(t, coordinator.Snapshot(7))
}

func TestProcessingCoordinatorStaleStatusesIsWarning(t *testing.T) {
	backend := newFakeBackend(sampleCourse())
	backend.manageErr = errBackendDown
	coordinator, events, _, cache := newTestCoordinator(t, backend, nil)
	ctx := context.Background()
	cache.Set(ctx, sampleCourse())

	run, err := coordinator.Run(ctx, 7, 2, 0)
	require.NoError(t, err)
	require.Equal(t, models.ProcessingStaleStatuses, run.Outcome)

	_, cached := cache.Get(ctx, 7)
	require.False(t, cached, "the published archive must show up on the next read")

	types := events.types()
	require.Equal(t, dto.EventProcessingStale, types[len(types)-1])
	require.NotContains(t, types, dto.EventProcessingFailed)
	require.Empty(t, coordinator.Snapshot(7))
}

func TestProcessingCoordinatorRejectsDuplicateTrigger(t *testing.T) {
	backend := newFakeBackend(sampleCourse())
	gate := make(chan struct{})
	backend.startGate = gate
	coordinator, events, _, _ := newTestCoordinator(t, backend, nil)
	ctx := context.Background()

	require.NoError(t, coordinator.Trigger(ctx, 7, 1, 0))
	require.ErrorIs(t, coordinator.Trigger(ctx, 7, 1, 0), ErrProcessingInFlight)
	_, err := coordinator.Run(ctx, 7, 1, 0)
	require.ErrorIs(t, err, ErrProcessingInFlight)

	// Other TPs and the refresh workflow are independent.
	require.NoError(t, coordinator.Trigger(ctx, 7, 2, 0))
	require.NoError(t, coordinator.Refresh(ctx, 7, 1, 0))

	require.Eventually(t, func() bool {
		start, _, _ := backend.counts()
		return start == 2
	}, time.Second, 10*time.Millisecond)

	snapshot := coordinator.Snapshot(7)
	require.Len(t, snapshot, 2)
	require.Equal(t, 1, snapshot[0].TPNo)
	require.Equal(t, string(ProcessingTriggering), snapshot[0].State)

	view := coordinator.View(7)
	require.True(t, view.IsProcessing(1))
	require.True(t, view.IsProcessing(2))
	require.False(t, view.IsProcessing(3))

	close(gate)
	require.Eventually(t, func() bool {
		return len(coordinator.Snapshot(7)) == 0
	}, 2*time.Second, 10*time.Millisecond)

	start, manage, refresh := backend.counts()
	assert.Equal(t, 2, start, "duplicate triggers must not reach the backend")
	assert.Equal(t, 2, manage)
	assert.Equal(t, 1, refresh)
	assert.Contains(t, events.types(), dto.EventRefreshCompleted)
}

func TestProcessingCoordinatorRefresh(t *testing.T) {
	backend := newFakeBackend(sampleCourse())
	coordinator, events, _, _ := newTestCoordinator(t, backend, nil)

	run, err := coordinator.RunRefresh(context.Background(), 7, 1, 3)
	require.NoError(t, err)
	require.Equal(t, models.ProcessingKindRefresh, run.Kind)
	require.EqualValues(t, 2, run.Metadata["status_count"])
	require.Equal(t, []dto.ProcessingEventType{dto.EventRefreshStarted, dto.EventRefreshCompleted}, events.types())

	backend.mu.Lock()
	backend.refreshErr = errBackendDown
	backend.mu.Unlock()

	run, err = coordinator.RunRefresh(context.Background(), 7, 1, 3)
	require.ErrorIs(t, err, ErrBackendUnavailable)
	require.Equal(t, models.ProcessingRefreshFailed, run.Outcome)

	_, err = coordinator.RunRefresh(context.Background(), 7, 2, 3)
	require.Error(t, err)

	latest, err := coordinator.LatestRuns(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	require.Equal(t, 1, latest[0].TPNo)
	require.Equal(t, models.ProcessingRefreshFailed, latest[0].Outcome)
	require.Equal(t, 2, latest[1].TPNo)
}

func TestProcessingCoordinatorShutdownAbandonsRuns(t *testing.T) {
	backend := newFakeBackend(sampleCourse())
	backend.startGate = make(chan struct{})
	coordinator, events, runs, _ := newTestCoordinator(t, backend, nil)

	require.NoError(t, coordinator.Trigger(context.Background(), 7, 1, 0))
	require.Eventually(t, func() bool {
		start, _, _ := backend.counts()
		return start == 1
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, coordinator.Shutdown(ctx))

	require.Empty(t, coordinator.Snapshot(7))
	require.Equal(t, []dto.ProcessingEventType{dto.EventProcessingStarted}, events.types())
	_, total, err := runs.List(context.Background(), repository.ProcessingRunFilter{CourseID: 7})
	require.NoError(t, err)
	require.Zero(t, total, "abandoned runs are not journaled")
}

func TestFixedDelaySettler(t *testing.T) {
	settler := NewFixedDelaySettler(20 * time.Millisecond)
	require.Equal(t, SettleModeDelay, settler.Name())

	start := time.Now()
	require.NoError(t, settler.Settle(context.Background(), 1, 1))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, NewFixedDelaySettler(time.Hour).Settle(ctx, 1, 1), context.Canceled)

	require.Equal(t, defaultSettleDelay, NewFixedDelaySettler(0).Delay)
}

func TestPollSettler(t *testing.T) {
	backend := newFakeBackend(sampleCourse())
	backend.downloadableAfter = 3
	settler := NewPollSettler(backend, 5*time.Millisecond, 10, testLogger())

	require.NoError(t, settler.Settle(context.Background(), 7, 1))
	require.Equal(t, 3, backend.getTPCalls)

	never := newFakeBackend(sampleCourse())
	bounded := NewPollSettler(never, time.Millisecond, 4, testLogger())
	require.NoError(t, bounded.Settle(context.Background(), 7, 1), "exhausted budget falls through")
	require.Equal(t, 4, never.getTPCalls)
}

func TestNewSettlerSelectsMode(t *testing.T) {
	backend := newFakeBackend(sampleCourse())
	require.Equal(t, SettleModePoll, NewSettler(SettleModePoll, backend, 0, 0, 0, testLogger()).Name())
	require.Equal(t, SettleModeDelay, NewSettler("delay", backend, 0, 0, 0, testLogger()).Name())
	require.Equal(t, SettleModeDelay, NewSettler(SettleModePoll, nil, 0, 0, 0, testLogger()).Name())
}
