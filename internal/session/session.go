// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session holds the in-memory state of one running conversation:
// the active model, message history, cumulative usage counters, and the
// command history buffer.
//
// History mutation is transactional. A chat exchange is opened with
// BeginExchange, which appends the pending user message, and is closed with
// either Commit (appends the reply and bumps counters) or Rollback (removes
// the pending message and leaves counters untouched). A failed transport
// call therefore never leaves a dangling user entry or a partial counter
// update.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/morganforge/grokcli/internal/model"
)

// CommandHistoryCap bounds the command history buffer. Oldest entries are
// dropped once the cap is reached.
const CommandHistoryCap = 100

var (
	// ErrBusy indicates an exchange is already in flight.
	ErrBusy = errors.New("an exchange is already in flight")

	// ErrNoExchange indicates Commit or Rollback without a pending exchange.
	ErrNoExchange = errors.New("no exchange in flight")

	// ErrTerminated indicates the session has been terminated.
	ErrTerminated = errors.New("session terminated")
)

// =============================================================================
// MESSAGES
// =============================================================================

// Message is a single conversation entry.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", or "system"
	Content string `json:"content"`
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// =============================================================================
// LIFECYCLE STATES
// =============================================================================

// State is the session lifecycle state.
type State int

const (
	// StateIdle - at the prompt, no exchange in flight
	StateIdle State = iota

	// StateAwaitingResponse - a transport call is blocking
	StateAwaitingResponse

	// StateErrorDisplayed - the last exchange failed and was rolled back
	StateErrorDisplayed

	// StateTerminated - the session has ended (terminal)
	StateTerminated
)

// String returns the string representation of a state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAwaitingResponse:
		return "AwaitingResponse"
	case StateErrorDisplayed:
		return "ErrorDisplayed"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// =============================================================================
// USAGE
// =============================================================================

// Usage carries the token counters reported for one completed exchange.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	Cost             float64
}

// Stats is a point-in-time snapshot of session counters.
type Stats struct {
	InputTokens  int
	OutputTokens int
	Cost         float64
	Exchanges    int
	Messages     int
	Duration     time.Duration
}

// TotalTokens returns input plus output tokens.
func (s Stats) TotalTokens() int {
	return s.InputTokens + s.OutputTokens
}

// =============================================================================
// SESSION
// =============================================================================

// Session is the state of one running conversation. Counters are monotonic
// and updated exactly once per committed exchange.
type Session struct {
	mu sync.Mutex

	id        string
	modelID   string
	messages  []Message
	commands  []string
	state     State
	startTime time.Time

	inputTokens  int
	outputTokens int
	cost         float64
	exchanges    int
}

// New creates a session with the given active model.
// The model must resolve against the registry.
func New(modelID string) (*Session, error) {
	info, err := model.Resolve(modelID)
	if err != nil {
		return nil, err
	}

	return &Session{
		id:        uuid.NewString(),
		modelID:   info.ID,
		messages:  make([]Message, 0),
		commands:  make([]string, 0),
		state:     StateIdle,
		startTime: time.Now(),
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Model returns the active model id.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modelID
}

// SetModel switches the active model. Unknown ids are rejected with
// ErrUnknownModel and the active model is left unchanged.
func (s *Session) SetModel(nameOrAlias string) error {
	info, err := model.Resolve(nameOrAlias)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return ErrTerminated
	}
	s.modelID = info.ID
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartTime returns when the session began.
func (s *Session) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// =============================================================================
// EXCHANGE TRANSACTION
// =============================================================================

// BeginExchange appends the user message and marks an exchange in flight.
// Only one exchange may be in flight at a time.
func (s *Session) BeginExchange(userText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateTerminated:
		return ErrTerminated
	case StateAwaitingResponse:
		return ErrBusy
	}

	s.messages = append(s.messages, NewUserMessage(userText))
	s.state = StateAwaitingResponse
	return nil
}

// Commit closes the in-flight exchange: appends the assistant reply and
// updates the cumulative counters from the reported usage. This is the only
// place counters move.
func (s *Session) Commit(assistantText string, usage Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingResponse {
		return ErrNoExchange
	}
	if usage.PromptTokens < 0 || usage.CompletionTokens < 0 || usage.Cost < 0 {
		// Malformed usage fails the exchange. The pending user message is
		// dropped and counters stay untouched, exactly as on a transport
		// failure; leaving the session awaiting would wedge it.
		s.rollbackLocked()
		return fmt.Errorf("negative usage reported: %+v", usage)
	}

	s.messages = append(s.messages, NewAssistantMessage(assistantText))
	s.inputTokens += usage.PromptTokens
	s.outputTokens += usage.CompletionTokens
	s.cost += usage.Cost
	s.exchanges++
	s.state = StateIdle
	return nil
}

// Rollback abandons the in-flight exchange, removing the pending user
// message. Counters are not touched.
func (s *Session) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingResponse {
		return ErrNoExchange
	}

	s.rollbackLocked()
	return nil
}

// rollbackLocked removes the pending user message and marks the failure.
// Caller holds s.mu.
func (s *Session) rollbackLocked() {
	if n := len(s.messages); n > 0 && s.messages[n-1].Role == "user" {
		s.messages = s.messages[:n-1]
	}
	s.state = StateErrorDisplayed
}

// AcknowledgeError returns the session to idle after a failure was reported.
func (s *Session) AcknowledgeError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateErrorDisplayed {
		s.state = StateIdle
	}
}

// Terminate moves the session to its terminal state. Valid from any state.
func (s *Session) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateTerminated
}

// =============================================================================
// HISTORY ACCESS
// =============================================================================

// Messages returns a copy of the conversation history.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// RestoreMessages replaces the conversation history, used when resuming a
// persisted session. Invalid outside the idle state.
func (s *Session) RestoreMessages(messages []Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrBusy
	}
	s.messages = make([]Message, len(messages))
	copy(s.messages, messages)
	return nil
}

// ClearMessages resets the conversation history. Counters are preserved:
// clearing the conversation does not un-spend tokens.
func (s *Session) ClearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = s.messages[:0]
}

// RecordCommand appends a line to the command history buffer, dropping the
// oldest entry once the cap is reached.
func (s *Session) RecordCommand(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, line)
	if len(s.commands) > CommandHistoryCap {
		s.commands = s.commands[len(s.commands)-CommandHistoryCap:]
	}
}

// CommandHistory returns a copy of the command history buffer.
func (s *Session) CommandHistory() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// RestoreCommandHistory replaces the command history buffer, used when
// resuming a persisted session.
func (s *Session) RestoreCommandHistory(commands []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(commands) > CommandHistoryCap {
		commands = commands[len(commands)-CommandHistoryCap:]
	}
	s.commands = make([]string, len(commands))
	copy(s.commands, commands)
}

// ClearCommandHistory empties the command history buffer.
func (s *Session) ClearCommandHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = s.commands[:0]
}

// Stats returns a snapshot of the cumulative counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		InputTokens:  s.inputTokens,
		OutputTokens: s.outputTokens,
		Cost:         s.cost,
		Exchanges:    s.exchanges,
		Messages:     len(s.messages),
		Duration:     time.Since(s.startTime),
	}
}
