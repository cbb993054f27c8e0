package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/lusia-studio/cli/internal/domain"
	"github.com/lusia-studio/cli/internal/logger"
	"github.com/lusia-studio/cli/internal/sse"
)

// ChatSession owns one active chat stream at a time. Starting a new
// stream cancels any prior one; all session-scoped state (accumulated
// text, tool call table, error) is reset per session.
//
// A session generation counter guards against dangling updates: frames
// decoded by a superseded or cancelled reader goroutine are dropped,
// never applied.
type ChatSession struct {
	client domain.ChatStreamer

	mu         sync.RWMutex
	generation int
	status     domain.StreamStatus
	text       strings.Builder
	errMsg     string
	runID      string
	toolCalls  *ToolCallTable
	cancel     context.CancelFunc
}

// NewChatSession creates an idle chat session
func NewChatSession(client domain.ChatStreamer) *ChatSession {
	return &ChatSession{
		client:    client,
		status:    domain.StreamIdle,
		toolCalls: NewToolCallTable(),
	}
}

// Start cancels any prior session, opens a new stream and begins
// decoding it. Events for incremental rendering are delivered on the
// returned channel, which is closed when the session ends.
func (s *ChatSession) Start(ctx context.Context, conversationID, message string, images []string) (<-chan domain.ChatEvent, error) {
	if strings.TrimSpace(message) == "" && len(images) == 0 {
		return nil, fmt.Errorf("message or image required")
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	generation := s.generation

	s.status = domain.StreamStreaming
	s.text.Reset()
	s.errMsg = ""
	s.runID = ""
	s.toolCalls.Reset()

	streamCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	events := make(chan domain.ChatEvent, 100)

	go s.run(streamCtx, generation, conversationID, domain.SendMessageRequest{
		Message: message,
		Images:  images,
	}, events)

	return events, nil
}

// Cancel aborts the active transport read and returns the session to
// idle. Cancelling is never an error state.
func (s *ChatSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}

	s.cancel()
	s.cancel = nil
	s.generation++
	s.status = domain.StreamIdle
}

// Reset clears accumulated text, status and error. It is a caller
// error to reset mid-stream.
func (s *ChatSession) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.StreamStreaming {
		return fmt.Errorf("cannot reset an active stream")
	}

	s.status = domain.StreamIdle
	s.text.Reset()
	s.errMsg = ""
	s.runID = ""
	s.toolCalls.Reset()
	return nil
}

// Status returns the current session status
func (s *ChatSession) Status() domain.StreamStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Text returns the text accumulated so far
func (s *ChatSession) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text.String()
}

// ErrorMessage returns the recorded stream error, if any
func (s *ChatSession) ErrorMessage() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

// RunID returns the run identifier of the current response
func (s *ChatSession) RunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runID
}

// ToolCalls returns the tracked tool invocations in call order
func (s *ChatSession) ToolCalls() []domain.ToolCallView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.toolCalls.Entries()
}

// run reads the stream to completion and folds frames into the session
func (s *ChatSession) run(ctx context.Context, generation int, conversationID string, req domain.SendMessageRequest, events chan<- domain.ChatEvent) {
	defer close(events)

	body, err := s.client.StreamMessage(ctx, conversationID, req)
	if err != nil {
		s.finishTransportError(ctx, generation, err, events)
		return
	}
	defer func() {
		_ = body.Close()
	}()

	s.emit(events, domain.ChatStartEvent{
		BaseChatEvent:  domain.BaseChatEvent{Timestamp: time.Now()},
		ConversationID: conversationID,
	})

	reader := sse.NewReader(body)
	for {
		payload, err := reader.Next()
		if err == io.EOF {
			// read-completion is an implicit done when no terminal
			// frame was seen
			s.finishNaturalEnd(generation, events)
			return
		}
		if err != nil {
			s.finishTransportError(ctx, generation, err, events)
			return
		}

		frame, err := domain.DecodeFrame(payload)
		if err != nil {
			logger.Debug("dropping undecodable frame", "error", err)
			continue
		}

		out, stop := s.apply(generation, frame)
		for _, event := range out {
			s.emit(events, event)
		}
		if stop {
			return
		}
	}
}

// apply folds one frame into session state. Returns events to publish
// and whether the session reached a terminal status. Frames belonging
// to a superseded generation are dropped.
func (s *ChatSession) apply(generation int, frame domain.StreamFrame) ([]domain.ChatEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		return nil, true
	}

	base := domain.BaseChatEvent{RunID: frame.RunID, Timestamp: time.Now()}

	switch frame.Type {
	case domain.FrameRunStatus:
		if frame.RunID != "" {
			s.runID = frame.RunID
		}
		if frame.Status == domain.RunStatusDone {
			s.status = domain.StreamDone
			return []domain.ChatEvent{domain.ChatCompleteEvent{
				BaseChatEvent: base,
				Text:          s.text.String(),
				ToolCalls:     s.toolCalls.Entries(),
			}}, true
		}
		return nil, false

	case domain.FrameToken:
		s.text.WriteString(frame.Delta)
		return []domain.ChatEvent{domain.ChatChunkEvent{
			BaseChatEvent: base,
			Delta:         frame.Delta,
		}}, false

	case domain.FrameToolCall:
		key := s.toolCalls.Begin(frame.Name)
		if len(frame.Args) > 0 {
			s.toolCalls.SetArgs(frame.Name, frame.Args)
		}
		state, _ := s.toolCalls.Get(key)
		return []domain.ChatEvent{domain.ToolCallUpdateEvent{
			BaseChatEvent: base,
			Key:           key,
			State:         state,
		}}, false

	case domain.FrameToolCallArgs:
		key := s.toolCalls.SetArgs(frame.Name, frame.Args)
		if key == "" {
			logger.Debug("dropping unmatched tool_call_args frame", "tool", frame.Name)
			return nil, false
		}
		state, _ := s.toolCalls.Get(key)
		return []domain.ChatEvent{domain.ToolCallUpdateEvent{
			BaseChatEvent: base,
			Key:           key,
			State:         state,
		}}, false

	case domain.FrameToolResult:
		key := s.toolCalls.Finish(frame.Name, frame.Content)
		if key == "" {
			logger.Debug("dropping unmatched tool_result frame", "tool", frame.Name)
			return nil, false
		}
		state, _ := s.toolCalls.Get(key)
		return []domain.ChatEvent{domain.ToolCallUpdateEvent{
			BaseChatEvent: base,
			Key:           key,
			State:         state,
		}}, false

	case domain.FrameError:
		s.status = domain.StreamErrored
		s.errMsg = frame.Message
		return []domain.ChatEvent{domain.ChatErrorEvent{
			BaseChatEvent: base,
			Error:         fmt.Errorf("%s", frame.Message),
		}}, true
	}

	return nil, false
}

// finishNaturalEnd closes out a stream whose transport ended without a
// terminal frame
func (s *ChatSession) finishNaturalEnd(generation int, events chan<- domain.ChatEvent) {
	s.mu.Lock()
	if generation != s.generation || s.status != domain.StreamStreaming {
		s.mu.Unlock()
		return
	}
	s.status = domain.StreamDone
	event := domain.ChatCompleteEvent{
		BaseChatEvent: domain.BaseChatEvent{RunID: s.runID, Timestamp: time.Now()},
		Text:          s.text.String(),
		ToolCalls:     s.toolCalls.Entries(),
	}
	s.mu.Unlock()

	s.emit(events, event)
}

// finishTransportError records a transport failure unless the read was
// cancelled by the user, in which case the session is already idle
func (s *ChatSession) finishTransportError(ctx context.Context, generation int, err error, events chan<- domain.ChatEvent) {
	if ctx.Err() == context.Canceled {
		s.mu.Lock()
		if generation == s.generation && s.status == domain.StreamStreaming {
			s.status = domain.StreamIdle
		}
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		return
	}
	s.status = domain.StreamErrored
	s.errMsg = err.Error()
	s.mu.Unlock()

	logger.Error("chat stream failed", "error", err)
	s.emit(events, domain.ChatErrorEvent{
		BaseChatEvent: domain.BaseChatEvent{Timestamp: time.Now()},
		Error:         err,
	})
}

// emit publishes an event without blocking a stalled consumer
func (s *ChatSession) emit(events chan<- domain.ChatEvent, event domain.ChatEvent) {
	select {
	case events <- event:
	default:
		logger.Warn("dropping chat event: channel full")
	}
}
