package services

import (
	"encoding/json"
	"fmt"

	"github.com/lusia-studio/cli/internal/domain"
)

// ToolCallTable tracks multi-phase tool invocations for one stream
// session. Repeated calls to the same tool are disambiguated with a
// per-name occurrence counter producing keys name, name-2, name-3, ...
// assigned in call order.
//
// Correlation is best-effort by design: args and results are matched to
// the most recently started, not yet final entry with the same name,
// and frames with no match are dropped rather than rejected.
type ToolCallTable struct {
	order   []string
	entries map[string]*domain.ToolCallState
	counts  map[string]int
}

// NewToolCallTable creates an empty tool call table
func NewToolCallTable() *ToolCallTable {
	t := &ToolCallTable{}
	t.Reset()
	return t
}

// Reset clears all entries and occurrence counters
func (t *ToolCallTable) Reset() {
	t.order = nil
	t.entries = make(map[string]*domain.ToolCallState)
	t.counts = make(map[string]int)
}

// Begin records the start of a tool invocation and returns its
// disambiguated key
func (t *ToolCallTable) Begin(name string) string {
	t.counts[name]++

	key := name
	if t.counts[name] > 1 {
		key = fmt.Sprintf("%s-%d", name, t.counts[name])
	}

	t.entries[key] = &domain.ToolCallState{
		Name:    name,
		Started: true,
	}
	t.order = append(t.order, key)

	return key
}

// SetArgs attaches full arguments to the latest pending invocation of
// name. Returns the matched key, or "" when the frame has no match and
// was dropped.
func (t *ToolCallTable) SetArgs(name string, args json.RawMessage) string {
	key, entry := t.latestPending(name)
	if entry == nil {
		return ""
	}

	entry.Args = args
	return key
}

// Finish finalizes the latest pending invocation of name with its
// result. Returns the matched key, or "" when dropped.
func (t *ToolCallTable) Finish(name, result string) string {
	key, entry := t.latestPending(name)
	if entry == nil {
		return ""
	}

	entry.Final = true
	entry.Result = result
	return key
}

// latestPending scans insertion order from most recent for a non-final
// entry with the given name
func (t *ToolCallTable) latestPending(name string) (string, *domain.ToolCallState) {
	for i := len(t.order) - 1; i >= 0; i-- {
		key := t.order[i]
		entry := t.entries[key]
		if entry.Name == name && !entry.Final {
			return key, entry
		}
	}
	return "", nil
}

// Get returns the state for a disambiguated key
func (t *ToolCallTable) Get(key string) (domain.ToolCallState, bool) {
	entry, ok := t.entries[key]
	if !ok {
		return domain.ToolCallState{}, false
	}
	return *entry, true
}

// Entries returns all tracked invocations in insertion order
func (t *ToolCallTable) Entries() []domain.ToolCallView {
	views := make([]domain.ToolCallView, 0, len(t.order))
	for _, key := range t.order {
		views = append(views, domain.ToolCallView{
			Key:   key,
			State: *t.entries[key],
		})
	}
	return views
}
