package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lusia-studio/cli/internal/domain"
	"github.com/lusia-studio/cli/internal/logger"
	"github.com/lusia-studio/cli/internal/realtime"
)

// DefaultPollInterval governs staleness tolerance for job status polling
const DefaultPollInterval = 2500 * time.Millisecond

// ProcessingTracker is the single source of truth for in-flight
// document processing jobs. It merges two uncoordinated completion
// sources, the periodic job status poller and the push channel, into
// one consistent view.
//
// Invariants:
//   - an id belongs to at most one of {active items, completed set}
//   - terminal transitions are idempotent per id: whichever source
//     observes completion first performs the removal, the second
//     observation is a no-op
//   - "retrying" membership is independent and may overlap with active
type ProcessingTracker struct {
	client       domain.DocumentService
	pollInterval time.Duration
	onReady      func(domain.Artifact)

	mu        sync.Mutex
	items     []*domain.ProcessingItem
	completed map[string]struct{}
	retrying  map[string]struct{}
	closed    bool

	recount chan struct{}
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewProcessingTracker creates a tracker polling at the given interval
// (DefaultPollInterval when zero). onReady fires once per completed
// item with the full artifact record; it may be nil.
func NewProcessingTracker(client domain.DocumentService, pollInterval time.Duration, onReady func(domain.Artifact)) *ProcessingTracker {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	return &ProcessingTracker{
		client:       client,
		pollInterval: pollInterval,
		onReady:      onReady,
		completed:    make(map[string]struct{}),
		retrying:     make(map[string]struct{}),
		recount:      make(chan struct{}, 1),
	}
}

// Load seeds the tracker with the current in-progress snapshot
func (t *ProcessingTracker) Load(ctx context.Context) error {
	artifacts, err := t.client.ListProcessing(ctx)
	if err != nil {
		return err
	}

	items := make([]*domain.ProcessingItem, 0, len(artifacts))
	for _, artifact := range artifacts {
		if artifact.IsProcessed {
			continue
		}
		item := domain.ItemFromArtifact(artifact)
		items = append(items, &item)
	}

	t.mu.Lock()
	t.items = items
	t.mu.Unlock()
	t.signalRecount()

	logger.Debug("processing snapshot loaded", "items", len(items))
	return nil
}

// AddItems prepends newly uploaded artifacts as pending items. No
// network calls are made.
func (t *ProcessingTracker) AddItems(artifacts ...domain.Artifact) {
	t.mu.Lock()
	changed := false
	for i := len(artifacts) - 1; i >= 0; i-- {
		artifact := artifacts[i]
		if t.findLocked(artifact.ID) != nil {
			continue
		}
		// re-adding an id revokes its completed membership so the
		// exclusivity invariant holds
		delete(t.completed, artifact.ID)

		item := domain.ItemFromArtifact(artifact)
		t.items = append([]*domain.ProcessingItem{&item}, t.items...)
		changed = true
	}
	t.mu.Unlock()

	if changed {
		t.signalRecount()
	}
}

// RetryItem re-enqueues a failed item. On success the item receives the
// fresh job id and step and its failed flag is cleared; on failure the
// item is left untouched and only the retrying marker is cleared.
func (t *ProcessingTracker) RetryItem(ctx context.Context, id string) error {
	t.mu.Lock()
	if t.findLocked(id) == nil {
		t.mu.Unlock()
		return fmt.Errorf("item not tracked: %s", id)
	}
	t.retrying[id] = struct{}{}
	t.mu.Unlock()

	job, err := t.client.RetryArtifact(ctx, id)

	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.retrying, id)

	if err != nil {
		logger.Debug("retry failed", "artifact_id", id, "error", err)
		return err
	}

	item := t.findLocked(id)
	if item == nil {
		return nil
	}

	item.JobID = job.ID
	item.Failed = false
	item.ErrorMessage = ""
	item.CurrentStep = domain.StepPending
	if job.Status != "" {
		item.CurrentStep = domain.ProcessingStep(job.Status)
	}
	if createdAt, err := time.Parse(time.RFC3339, job.CreatedAt); err == nil {
		item.CreatedAt = createdAt
	}

	return nil
}

// ClearCompleted dismisses an id from the completed set. The active
// set is never touched.
func (t *ProcessingTracker) ClearCompleted(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.completed, id)
}

// Items returns a snapshot of the active items
func (t *ProcessingTracker) Items() []domain.ProcessingItem {
	t.mu.Lock()
	defer t.mu.Unlock()

	items := make([]domain.ProcessingItem, 0, len(t.items))
	for _, item := range t.items {
		items = append(items, *item)
	}
	return items
}

// CompletedIDs returns the ids awaiting a "just finished" dismissal
func (t *ProcessingTracker) CompletedIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.completed))
	for id := range t.completed {
		ids = append(ids, id)
	}
	return ids
}

// IsRetrying reports whether a retry is in flight for id
func (t *ProcessingTracker) IsRetrying(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.retrying[id]
	return ok
}

// Start launches the job status poll loop. Polling fires immediately,
// then on the fixed interval; the interval is restarted only when the
// tracked-item count changes.
func (t *ProcessingTracker) Start(ctx context.Context) {
	pollCtx, cancel := context.WithCancel(ctx)
	t.stop = cancel

	t.wg.Add(1)
	go t.pollLoop(pollCtx)
}

// Listen consumes push channel events until the channel closes or ctx
// ends. Events arriving after Close are dropped.
func (t *ProcessingTracker) Listen(ctx context.Context, events <-chan realtime.RowEvent) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				t.handleRowEvent(ctx, event)
			}
		}
	}()
}

// Close stops the poller and listener goroutines; subsequent signals
// from either source are dropped, not applied.
func (t *ProcessingTracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	if t.stop != nil {
		t.stop()
	}
	t.wg.Wait()
}

func (t *ProcessingTracker) pollLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	t.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.recount:
			ticker.Reset(t.pollInterval)
			t.pollOnce(ctx)
		case <-ticker.C:
			t.pollOnce(ctx)
		}
	}
}

type pollTarget struct {
	id    string
	jobID string
}

// pollOnce fetches status for every pollable item. Failures are
// isolated per item and silently retried on the next tick.
func (t *ProcessingTracker) pollOnce(ctx context.Context) {
	t.mu.Lock()
	batch := make([]pollTarget, 0, len(t.items))
	for _, item := range t.items {
		if item.JobID == "" || item.Failed || item.CurrentStep.Terminal() {
			continue
		}
		batch = append(batch, pollTarget{id: item.ID, jobID: item.JobID})
	}
	t.mu.Unlock()

	for _, target := range batch {
		status, err := t.client.GetJobStatus(ctx, target.jobID)
		if err != nil {
			logger.Debug("job status poll failed", "job_id", target.jobID, "error", err)
			continue
		}
		t.applyJobStatus(ctx, target.id, status)
	}
}

func (t *ProcessingTracker) applyJobStatus(ctx context.Context, id string, status *domain.JobStatus) {
	switch domain.ProcessingStep(status.Status) {
	case domain.StepCompleted:
		t.complete(ctx, id)
	case domain.StepFailed:
		t.fail(id, status.ErrorMessage, false)
	default:
		t.updateStep(id, domain.ProcessingStep(status.Status))
	}
}

func (t *ProcessingTracker) handleRowEvent(ctx context.Context, event realtime.RowEvent) {
	switch {
	case event.IsProcessed:
		t.complete(ctx, event.ID)
	case event.ProcessingFailed:
		// failed items display the initial-step icon
		t.fail(event.ID, event.ProcessingError, true)
	}
}

// complete performs the terminal transition for id exactly once,
// whichever source observed it first, then fires the one-shot artifact
// fetch and ready notification
func (t *ProcessingTracker) complete(ctx context.Context, id string) {
	if !t.markCompleted(id) {
		return
	}

	artifact, err := t.client.GetArtifact(ctx, id)
	if err != nil {
		// the ready notification is simply not fired; no retry
		logger.Debug("completed artifact fetch failed", "artifact_id", id, "error", err)
		return
	}

	if t.onReady != nil {
		t.onReady(*artifact)
	}
}

// markCompleted moves id from the active set to the completed set.
// Returns false when id is already absent or already completed, making
// the transition idempotent per id.
func (t *ProcessingTracker) markCompleted(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}

	if !t.removeActiveLocked(id) {
		return false
	}
	t.completed[id] = struct{}{}
	t.signalRecountLocked()
	return true
}

// fail marks an item failed and records the error; the item keeps its
// jobId but is excluded from future poll batches
func (t *ProcessingTracker) fail(id, message string, resetStep bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	item := t.findLocked(id)
	if item == nil || item.Failed {
		return
	}

	item.Failed = true
	item.ErrorMessage = message
	if resetStep {
		item.CurrentStep = domain.StepPending
	}
}

func (t *ProcessingTracker) updateStep(id string, step domain.ProcessingStep) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	if item := t.findLocked(id); item != nil && !item.Failed {
		item.CurrentStep = step
	}
}

func (t *ProcessingTracker) findLocked(id string) *domain.ProcessingItem {
	for _, item := range t.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// removeActiveLocked is removeIfPresent over the active set
func (t *ProcessingTracker) removeActiveLocked(id string) bool {
	for i, item := range t.items {
		if item.ID == id {
			t.items = append(t.items[:i], t.items[i+1:]...)
			return true
		}
	}
	return false
}

func (t *ProcessingTracker) signalRecount() {
	select {
	case t.recount <- struct{}{}:
	default:
	}
}

func (t *ProcessingTracker) signalRecountLocked() {
	t.signalRecount()
}
