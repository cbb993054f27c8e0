package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lusia-studio/cli/internal/domain"
	"github.com/lusia-studio/cli/internal/realtime"
)

// fakeDocumentService is a configurable in-memory DocumentService
type fakeDocumentService struct {
	mu sync.Mutex

	processing []domain.Artifact
	jobs       map[string]*domain.JobStatus
	artifacts  map[string]*domain.Artifact

	jobErrs      map[string]error
	retryJob     *domain.JobStatus
	retryErr     error
	statusCalls  map[string]int
	artifactErrs map[string]error
}

func newFakeDocumentService() *fakeDocumentService {
	return &fakeDocumentService{
		jobs:         make(map[string]*domain.JobStatus),
		artifacts:    make(map[string]*domain.Artifact),
		jobErrs:      make(map[string]error),
		statusCalls:  make(map[string]int),
		artifactErrs: make(map[string]error),
	}
}

func (f *fakeDocumentService) ListProcessing(ctx context.Context) ([]domain.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Artifact(nil), f.processing...), nil
}

func (f *fakeDocumentService) GetJobStatus(ctx context.Context, jobID string) (*domain.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statusCalls[jobID]++
	if err := f.jobErrs[jobID]; err != nil {
		return nil, err
	}
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	copied := *job
	return &copied, nil
}

func (f *fakeDocumentService) RetryArtifact(ctx context.Context, artifactID string) (*domain.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.retryErr != nil {
		return nil, f.retryErr
	}
	copied := *f.retryJob
	return &copied, nil
}

func (f *fakeDocumentService) GetArtifact(ctx context.Context, artifactID string) (*domain.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.artifactErrs[artifactID]; err != nil {
		return nil, err
	}
	artifact, ok := f.artifacts[artifactID]
	if !ok {
		return nil, fmt.Errorf("artifact not found: %s", artifactID)
	}
	copied := *artifact
	return &copied, nil
}

func (f *fakeDocumentService) statusCallCount(jobID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls[jobID]
}

func itemIDs(items []domain.ProcessingItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func TestTrackerLoadSkipsProcessedArtifacts(t *testing.T) {
	svc := newFakeDocumentService()
	svc.processing = []domain.Artifact{
		{ID: "a1", ArtifactName: "one.pdf", JobID: "j1", JobStatus: "parsing"},
		{ID: "a2", ArtifactName: "two.pdf", IsProcessed: true},
		{ID: "a3", ArtifactName: "three.pdf", JobID: "j3"},
	}

	tracker := NewProcessingTracker(svc, 0, nil)
	require.NoError(t, tracker.Load(context.Background()))

	items := tracker.Items()
	assert.Equal(t, []string{"a1", "a3"}, itemIDs(items))
	assert.Equal(t, domain.StepParsing, items[0].CurrentStep)
	assert.Equal(t, domain.StepPending, items[1].CurrentStep)
}

func TestTrackerAddItemsPrependsAndDeduplicates(t *testing.T) {
	svc := newFakeDocumentService()
	tracker := NewProcessingTracker(svc, 0, nil)

	tracker.AddItems(domain.Artifact{ID: "a1", ArtifactName: "one.pdf"})
	tracker.AddItems(
		domain.Artifact{ID: "a2", ArtifactName: "two.pdf"},
		domain.Artifact{ID: "a3", ArtifactName: "three.pdf"},
	)

	// newest batch first, batch order preserved
	assert.Equal(t, []string{"a2", "a3", "a1"}, itemIDs(tracker.Items()))

	// re-adding an existing id is a no-op
	tracker.AddItems(domain.Artifact{ID: "a1", ArtifactName: "one.pdf"})
	assert.Len(t, tracker.Items(), 3)
}

func TestTrackerReaddRevokesCompleted(t *testing.T) {
	svc := newFakeDocumentService()
	svc.artifacts["a1"] = &domain.Artifact{ID: "a1"}

	tracker := NewProcessingTracker(svc, 0, nil)
	tracker.AddItems(domain.Artifact{ID: "a1"})
	tracker.complete(context.Background(), "a1")
	require.Equal(t, []string{"a1"}, tracker.CompletedIDs())

	tracker.AddItems(domain.Artifact{ID: "a1"})
	assert.Equal(t, []string{"a1"}, itemIDs(tracker.Items()))
	assert.Empty(t, tracker.CompletedIDs())
}

func TestTrackerPollIsolatesPerItemFailures(t *testing.T) {
	svc := newFakeDocumentService()
	svc.jobErrs["j1"] = fmt.Errorf("boom")
	svc.jobs["j2"] = &domain.JobStatus{ID: "j2", Status: "structuring"}

	tracker := NewProcessingTracker(svc, 0, nil)
	tracker.AddItems(
		domain.Artifact{ID: "a1", JobID: "j1", JobStatus: "parsing"},
		domain.Artifact{ID: "a2", JobID: "j2", JobStatus: "parsing"},
	)

	tracker.pollOnce(context.Background())

	items := tracker.Items()
	require.Len(t, items, 2)
	assert.Equal(t, domain.StepParsing, items[0].CurrentStep, "failed poll leaves the item untouched")
	assert.Equal(t, domain.StepStructuring, items[1].CurrentStep)
	assert.False(t, items[0].Failed, "a poll error is not a job failure")
}

func TestTrackerPollSkipsUnpollableItems(t *testing.T) {
	svc := newFakeDocumentService()
	svc.jobs["j1"] = &domain.JobStatus{ID: "j1", Status: "parsing"}
	svc.jobs["j2"] = &domain.JobStatus{ID: "j2", Status: "parsing"}

	tracker := NewProcessingTracker(svc, 0, nil)
	tracker.AddItems(
		domain.Artifact{ID: "a0"},                                     // no job id
		domain.Artifact{ID: "a1", JobID: "j1"},                        // pollable
		domain.Artifact{ID: "a2", JobID: "j2", ProcessingFailed: true}, // failed
	)

	tracker.pollOnce(context.Background())

	assert.Equal(t, 1, svc.statusCallCount("j1"))
	assert.Equal(t, 0, svc.statusCallCount("j2"))
}

func TestTrackerPollCompletion(t *testing.T) {
	svc := newFakeDocumentService()
	svc.jobs["j1"] = &domain.JobStatus{ID: "j1", Status: "completed"}
	svc.artifacts["a1"] = &domain.Artifact{ID: "a1", ArtifactName: "one.pdf", IsProcessed: true}

	var ready []string
	tracker := NewProcessingTracker(svc, 0, func(a domain.Artifact) {
		ready = append(ready, a.ID)
	})
	tracker.AddItems(domain.Artifact{ID: "a1", JobID: "j1"})

	tracker.pollOnce(context.Background())

	assert.Empty(t, tracker.Items())
	assert.Equal(t, []string{"a1"}, tracker.CompletedIDs())
	assert.Equal(t, []string{"a1"}, ready)
}

func TestTrackerPollFailure(t *testing.T) {
	svc := newFakeDocumentService()
	svc.jobs["j1"] = &domain.JobStatus{ID: "j1", Status: "failed", ErrorMessage: "parse error"}

	tracker := NewProcessingTracker(svc, 0, nil)
	tracker.AddItems(domain.Artifact{ID: "a1", JobID: "j1", JobStatus: "parsing"})

	tracker.pollOnce(context.Background())

	items := tracker.Items()
	require.Len(t, items, 1)
	assert.True(t, items[0].Failed)
	assert.Equal(t, "parse error", items[0].ErrorMessage)
	// the poll path keeps the last known step
	assert.Equal(t, domain.StepParsing, items[0].CurrentStep)
	assert.Empty(t, tracker.CompletedIDs(), "failed items never enter the completed set")
}

func TestTrackerRowEventCompletion(t *testing.T) {
	svc := newFakeDocumentService()
	svc.artifacts["a1"] = &domain.Artifact{ID: "a1", ArtifactName: "one.pdf", IsProcessed: true}

	var ready []string
	tracker := NewProcessingTracker(svc, 0, func(a domain.Artifact) {
		ready = append(ready, a.ID)
	})
	tracker.AddItems(domain.Artifact{ID: "a1", JobID: "j1"})

	tracker.handleRowEvent(context.Background(), realtime.RowEvent{ID: "a1", IsProcessed: true})

	assert.Empty(t, tracker.Items())
	assert.Equal(t, []string{"a1"}, tracker.CompletedIDs())
	assert.Equal(t, []string{"a1"}, ready)
}

func TestTrackerRowEventFailureResetsStep(t *testing.T) {
	svc := newFakeDocumentService()
	tracker := NewProcessingTracker(svc, 0, nil)
	tracker.AddItems(domain.Artifact{ID: "a1", JobID: "j1", JobStatus: "structuring"})

	tracker.handleRowEvent(context.Background(), realtime.RowEvent{
		ID:               "a1",
		ProcessingFailed: true,
		ProcessingError:  "worker crashed",
	})

	items := tracker.Items()
	require.Len(t, items, 1)
	assert.True(t, items[0].Failed)
	assert.Equal(t, "worker crashed", items[0].ErrorMessage)
	assert.Equal(t, domain.StepPending, items[0].CurrentStep)
}

func TestTrackerCompletionIsIdempotentAcrossSources(t *testing.T) {
	svc := newFakeDocumentService()
	svc.jobs["j1"] = &domain.JobStatus{ID: "j1", Status: "completed"}
	svc.artifacts["a1"] = &domain.Artifact{ID: "a1", IsProcessed: true}

	var mu sync.Mutex
	readyCount := 0
	tracker := NewProcessingTracker(svc, 0, func(a domain.Artifact) {
		mu.Lock()
		readyCount++
		mu.Unlock()
	})
	tracker.AddItems(domain.Artifact{ID: "a1", JobID: "j1"})

	// both sources observe completion concurrently; whichever wins the
	// removal, the other observation is a no-op
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tracker.pollOnce(context.Background())
	}()
	go func() {
		defer wg.Done()
		tracker.handleRowEvent(context.Background(), realtime.RowEvent{ID: "a1", IsProcessed: true})
	}()
	wg.Wait()

	assert.Empty(t, tracker.Items())
	assert.Equal(t, []string{"a1"}, tracker.CompletedIDs())
	assert.Equal(t, 1, readyCount)
}

func TestTrackerCompletionForUnknownIDIsNoOp(t *testing.T) {
	svc := newFakeDocumentService()
	tracker := NewProcessingTracker(svc, 0, func(a domain.Artifact) {
		t.Fatal("onReady must not fire for unknown ids")
	})

	tracker.handleRowEvent(context.Background(), realtime.RowEvent{ID: "ghost", IsProcessed: true})

	assert.Empty(t, tracker.Items())
	assert.Empty(t, tracker.CompletedIDs())
}

func TestTrackerCompletionWithArtifactFetchFailure(t *testing.T) {
	svc := newFakeDocumentService()
	svc.artifactErrs["a1"] = fmt.Errorf("gone")

	tracker := NewProcessingTracker(svc, 0, func(a domain.Artifact) {
		t.Fatal("onReady must not fire when the artifact fetch fails")
	})
	tracker.AddItems(domain.Artifact{ID: "a1", JobID: "j1"})

	tracker.handleRowEvent(context.Background(), realtime.RowEvent{ID: "a1", IsProcessed: true})

	// the terminal transition still happened
	assert.Empty(t, tracker.Items())
	assert.Equal(t, []string{"a1"}, tracker.CompletedIDs())
}

func TestTrackerRetrySuccess(t *testing.T) {
	svc := newFakeDocumentService()
	svc.retryJob = &domain.JobStatus{ID: "j-new", Status: "pending", CreatedAt: "2026-08-21T09:00:00Z"}

	tracker := NewProcessingTracker(svc, 0, nil)
	tracker.AddItems(domain.Artifact{
		ID:               "a1",
		JobID:            "j-old",
		ProcessingFailed: true,
		ProcessingError:  "parse error",
	})

	require.NoError(t, tracker.RetryItem(context.Background(), "a1"))

	items := tracker.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "j-new", items[0].JobID)
	assert.False(t, items[0].Failed)
	assert.Empty(t, items[0].ErrorMessage)
	assert.Equal(t, domain.StepPending, items[0].CurrentStep)
	assert.False(t, tracker.IsRetrying("a1"))
}

func TestTrackerRetryFailureLeavesItemUntouched(t *testing.T) {
	svc := newFakeDocumentService()
	svc.retryErr = fmt.Errorf("service unavailable")

	tracker := NewProcessingTracker(svc, 0, nil)
	tracker.AddItems(domain.Artifact{
		ID:               "a1",
		JobID:            "j-old",
		ProcessingFailed: true,
		ProcessingError:  "parse error",
	})

	assert.Error(t, tracker.RetryItem(context.Background(), "a1"))

	items := tracker.Items()
	require.Len(t, items, 1)
	assert.True(t, items[0].Failed)
	assert.Equal(t, "parse error", items[0].ErrorMessage)
	assert.Equal(t, "j-old", items[0].JobID)
	assert.False(t, tracker.IsRetrying("a1"))
}

func TestTrackerRetryUnknownItem(t *testing.T) {
	svc := newFakeDocumentService()
	tracker := NewProcessingTracker(svc, 0, nil)

	assert.Error(t, tracker.RetryItem(context.Background(), "ghost"))
}

func TestTrackerClearCompleted(t *testing.T) {
	svc := newFakeDocumentService()
	svc.artifacts["a1"] = &domain.Artifact{ID: "a1"}

	tracker := NewProcessingTracker(svc, 0, nil)
	tracker.AddItems(domain.Artifact{ID: "a1"})
	tracker.complete(context.Background(), "a1")
	require.Equal(t, []string{"a1"}, tracker.CompletedIDs())

	tracker.ClearCompleted("a1")
	assert.Empty(t, tracker.CompletedIDs())

	// clearing an unknown id is a no-op
	tracker.ClearCompleted("ghost")
}

func TestTrackerDropsSignalsAfterClose(t *testing.T) {
	svc := newFakeDocumentService()
	svc.artifacts["a1"] = &domain.Artifact{ID: "a1"}

	tracker := NewProcessingTracker(svc, 0, func(a domain.Artifact) {
		t.Fatal("onReady must not fire after close")
	})
	tracker.AddItems(domain.Artifact{ID: "a1", JobID: "j1"})
	tracker.Close()

	tracker.handleRowEvent(context.Background(), realtime.RowEvent{ID: "a1", IsProcessed: true})
	tracker.fail("a1", "late failure", true)
	tracker.updateStep("a1", domain.StepParsing)

	items := tracker.Items()
	require.Len(t, items, 1)
	assert.False(t, items[0].Failed)
	assert.Equal(t, domain.StepPending, items[0].CurrentStep)
	assert.Empty(t, tracker.CompletedIDs())
}

func TestTrackerListenAppliesPushEvents(t *testing.T) {
	svc := newFakeDocumentService()
	svc.artifacts["a1"] = &domain.Artifact{ID: "a1", IsProcessed: true}

	done := make(chan struct{})
	tracker := NewProcessingTracker(svc, 0, func(a domain.Artifact) {
		close(done)
	})
	tracker.AddItems(domain.Artifact{ID: "a1", JobID: "j1"})

	events := make(chan realtime.RowEvent, 1)
	tracker.Listen(context.Background(), events)

	events <- realtime.RowEvent{ID: "a1", IsProcessed: true}
	close(events)

	<-done
	tracker.Close()

	assert.Empty(t, tracker.Items())
	assert.Equal(t, []string{"a1"}, tracker.CompletedIDs())
}

func TestTrackerFailIsIdempotent(t *testing.T) {
	svc := newFakeDocumentService()
	tracker := NewProcessingTracker(svc, 0, nil)
	tracker.AddItems(domain.Artifact{ID: "a1", JobID: "j1"})

	tracker.fail("a1", "first", false)
	tracker.fail("a1", "second", false)

	items := tracker.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "first", items[0].ErrorMessage)
}
