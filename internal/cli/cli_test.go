// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/morganforge/grokcli/internal/auth"
	"github.com/morganforge/grokcli/internal/config"
	"github.com/morganforge/grokcli/internal/grok"
	"github.com/morganforge/grokcli/internal/model"
	"github.com/morganforge/grokcli/internal/session"
	"github.com/morganforge/grokcli/internal/tools"
)

// =============================================================================
// EXIT CODES
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"config error", NewConfigError("bad config", nil), ExitConfigError},
		{"wrapped config error", errors.New("config file unreadable"), ExitConfigError},
		{"not configured", grok.ErrNotConfigured, ExitAuthError},
		{"auth failed", grok.ErrAuthFailed, ExitAuthError},
		{"not elevated", auth.ErrNotElevated, ExitAuthError},
		{"invalid code", auth.ErrInvalidCode, ExitAuthError},
		{"rate limited", grok.ErrRateLimited, ExitNetworkError},
		{"unknown model", model.ErrUnknownModel, ExitNotFoundError},
		{"model not found", grok.ErrModelNotFound, ExitNotFoundError},
		{"timeout", context.DeadlineExceeded, ExitTimeoutError},
		{"usage message", errors.New("usage: /tokens <text>"), ExitUsageError},
		{"network message", errors.New("network unreachable"), ExitNetworkError},
		{"generic", errors.New("something broke"), ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.want {
				t.Errorf("GetExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestConfigErrorUnwrap(t *testing.T) {
	inner := errors.New("toml parse failure")
	err := NewConfigError("cannot load config", inner)

	if !errors.Is(err, inner) {
		t.Error("ConfigError should unwrap to the inner error")
	}
	if GetExitCode(err) != ExitConfigError {
		t.Errorf("GetExitCode(ConfigError) = %d, want %d", GetExitCode(err), ExitConfigError)
	}
}

// =============================================================================
// FORMATTING
// =============================================================================

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
	}

	for _, tt := range tests {
		if got := formatNumber(tt.n); got != tt.want {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

// =============================================================================
// EXCHANGE PROCESSING
// =============================================================================

func newTestREPL(t *testing.T, handler http.HandlerFunc) *REPL {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	sess, err := session.New(model.DefaultModel)
	if err != nil {
		t.Fatalf("session.New() error: %v", err)
	}

	cfg := config.Default()
	cfg.UI.Quiet = true
	cfg.UI.Markdown = false

	client := grok.NewClient("xai-test-key").
		WithBaseURL(server.URL).
		WithMaxRetries(0)

	return &REPL{
		Config:  cfg,
		Session: sess,
		Client:  client,
	}
}

func TestProcessMessageCommit(t *testing.T) {
	repl := newTestREPL(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "resp-1",
			"model": "grok-2-latest",
			"choices": [{"message": {"role": "assistant", "content": "Hi there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	})

	if err := repl.processMessage("hello"); err != nil {
		t.Fatalf("processMessage() error: %v", err)
	}

	messages := repl.Session.Messages()
	if len(messages) != 2 {
		t.Fatalf("len(Messages()) = %d, want 2", len(messages))
	}
	if messages[0].Role != "user" || messages[0].Content != "hello" {
		t.Errorf("messages[0] = %+v, want user/hello", messages[0])
	}
	if messages[1].Role != "assistant" || messages[1].Content != "Hi there" {
		t.Errorf("messages[1] = %+v, want assistant/Hi there", messages[1])
	}

	stats := repl.Session.Stats()
	if stats.InputTokens != 10 || stats.OutputTokens != 5 {
		t.Errorf("tokens = %d in / %d out, want 10 / 5", stats.InputTokens, stats.OutputTokens)
	}
	if stats.Exchanges != 1 {
		t.Errorf("Exchanges = %d, want 1", stats.Exchanges)
	}
	if stats.Cost <= 0 {
		t.Errorf("Cost = %f, want > 0", stats.Cost)
	}
	if repl.Session.State() != session.StateIdle {
		t.Errorf("State() = %v, want idle", repl.Session.State())
	}
}

// recordingExecutor stands in for a real tool and captures its invocations.
type recordingExecutor struct {
	invoked int
	last    map[string]interface{}
}

func (e *recordingExecutor) Execute(ctx context.Context, params map[string]interface{}) (tools.Result, error) {
	e.invoked++
	e.last = params
	return tools.Result{Success: true, Output: "18C, clear skies"}, nil
}

func TestProcessMessageRunsToolRound(t *testing.T) {
	var requests int
	var secondBody grok.ChatRequest

	repl := newTestREPL(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")

		if requests == 1 {
			var req grok.ChatRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("request decode failed: %v", err)
			}
			if len(req.Tools) != 1 || req.Tools[0].Function.Name != "weather" {
				t.Errorf("declared tools = %+v, want one weather declaration", req.Tools)
			}
			w.Write([]byte(`{
				"id": "resp-1",
				"model": "grok-2-latest",
				"choices": [{"message": {"role": "assistant", "content": "",
					"tool_calls": [{"id": "call-1", "type": "function",
						"function": {"name": "weather", "arguments": "{\"location\": \"Oslo\"}"}}]},
					"finish_reason": "tool_calls"}],
				"usage": {"prompt_tokens": 10, "completion_tokens": 4, "total_tokens": 14}
			}`))
			return
		}

		if err := json.NewDecoder(r.Body).Decode(&secondBody); err != nil {
			t.Errorf("request decode failed: %v", err)
		}
		w.Write([]byte(`{
			"id": "resp-2",
			"model": "grok-2-latest",
			"choices": [{"message": {"role": "assistant", "content": "Clear skies in Oslo at 18C."},
				"finish_reason": "stop"}],
			"usage": {"prompt_tokens": 30, "completion_tokens": 8, "total_tokens": 38}
		}`))
	})

	exec := &recordingExecutor{}
	registry := tools.NewRegistry()
	registry.Register(&tools.Tool{
		Name:        "weather",
		Description: "Get current weather for a location",
		Risk:        tools.RiskMedium,
		Required:    []string{"location"},
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"location": map[string]interface{}{"type": "string"},
			},
			"required": []string{"location"},
		},
		Executor: exec,
	})
	repl.Tools = registry

	if err := repl.processMessage("weather in Oslo?"); err != nil {
		t.Fatalf("processMessage() error: %v", err)
	}

	if requests != 2 {
		t.Fatalf("requests = %d, want 2", requests)
	}
	if exec.invoked != 1 {
		t.Fatalf("tool invoked %d times, want 1", exec.invoked)
	}
	if loc, _ := exec.last["location"].(string); loc != "Oslo" {
		t.Errorf("tool location = %q, want %q", loc, "Oslo")
	}

	// The follow-up request carries the tool reply keyed to the call ID.
	var toolMsg *grok.ChatMessage
	for i := range secondBody.Messages {
		if secondBody.Messages[i].Role == "tool" {
			toolMsg = &secondBody.Messages[i]
		}
	}
	if toolMsg == nil {
		t.Fatal("follow-up request has no tool message")
	}
	if toolMsg.ToolCallID != "call-1" {
		t.Errorf("ToolCallID = %q, want %q", toolMsg.ToolCallID, "call-1")
	}
	if toolMsg.Content != "18C, clear skies" {
		t.Errorf("tool message content = %q, want the tool output", toolMsg.Content)
	}

	// The exchange commits the final answer with usage summed across rounds.
	messages := repl.Session.Messages()
	if len(messages) != 2 || messages[1].Content != "Clear skies in Oslo at 18C." {
		t.Fatalf("committed messages = %+v, want the final answer", messages)
	}
	stats := repl.Session.Stats()
	if stats.InputTokens != 40 || stats.OutputTokens != 12 {
		t.Errorf("tokens = %d in / %d out, want 40 / 12", stats.InputTokens, stats.OutputTokens)
	}
	if repl.Session.State() != session.StateIdle {
		t.Errorf("State() = %v, want idle", repl.Session.State())
	}
}

func TestProcessMessageRollbackOnFailure(t *testing.T) {
	repl := newTestREPL(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "invalid api key"}}`))
	})

	err := repl.processMessage("hello")
	if err == nil {
		t.Fatal("processMessage() should fail on 401")
	}
	if !errors.Is(err, grok.ErrAuthFailed) {
		t.Errorf("error = %v, want ErrAuthFailed", err)
	}

	// The pending user message is removed and counters stay untouched.
	if n := len(repl.Session.Messages()); n != 0 {
		t.Errorf("len(Messages()) = %d, want 0 after rollback", n)
	}
	stats := repl.Session.Stats()
	if stats.InputTokens != 0 || stats.OutputTokens != 0 || stats.Cost != 0 || stats.Exchanges != 0 {
		t.Errorf("counters moved on failed exchange: %+v", stats)
	}

	// The loop displays the error and then acknowledges it.
	if repl.Session.State() != session.StateErrorDisplayed {
		t.Errorf("State() = %v, want error-displayed", repl.Session.State())
	}
	repl.Session.AcknowledgeError()
	if repl.Session.State() != session.StateIdle {
		t.Errorf("State() = %v after acknowledge, want idle", repl.Session.State())
	}
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestTakeCancelSingleUse(t *testing.T) {
	repl := newTestREPL(t, func(w http.ResponseWriter, r *http.Request) {})

	if cancel := repl.takeCancel(); cancel != nil {
		t.Error("takeCancel() with nothing in flight should return nil")
	}

	fired := 0
	repl.setCancel(func() { fired++ })

	// The interrupt path and the completion path both take; only one side
	// may win, and the loser sees nil.
	first := repl.takeCancel()
	if first == nil {
		t.Fatal("takeCancel() should return the installed cancel func")
	}
	if second := repl.takeCancel(); second != nil {
		t.Error("takeCancel() should hand the cancel func to exactly one caller")
	}

	first()
	if fired != 1 {
		t.Errorf("cancel fired %d times, want 1", fired)
	}
}

// =============================================================================
// LIVE CONFIG
// =============================================================================

func TestReloadConfigSwapsObservedSettings(t *testing.T) {
	repl := newTestREPL(t, func(w http.ResponseWriter, r *http.Request) {})

	if !repl.config().UI.Quiet {
		t.Fatal("test fixture should start quiet")
	}

	next := config.Default()
	next.UI.Quiet = false
	next.DefaultModel = "grok-3-latest"
	repl.ReloadConfig(next)

	got := repl.config()
	if got != next {
		t.Fatalf("config() = %p, want the reloaded config %p", got, next)
	}
	if got.UI.Quiet || got.DefaultModel != "grok-3-latest" {
		t.Errorf("reloaded settings not observed: %+v", got)
	}

	// A nil reload keeps the current config.
	repl.ReloadConfig(nil)
	if repl.config() != next {
		t.Error("nil reload should not replace the active config")
	}
}

func TestProcessMessageNotConfigured(t *testing.T) {
	sess, err := session.New(model.DefaultModel)
	if err != nil {
		t.Fatalf("session.New() error: %v", err)
	}

	repl := &REPL{
		Config:  config.Default(),
		Session: sess,
		Client:  grok.NewClient(""),
	}

	if err := repl.processMessage("hello"); !errors.Is(err, grok.ErrNotConfigured) {
		t.Errorf("processMessage() = %v, want ErrNotConfigured", err)
	}
	if n := len(sess.Messages()); n != 0 {
		t.Errorf("len(Messages()) = %d, want 0", n)
	}
}

// =============================================================================
// COST
// =============================================================================

func TestExchangeCost(t *testing.T) {
	sess, err := session.New("grok-2-latest")
	if err != nil {
		t.Fatalf("session.New() error: %v", err)
	}
	repl := &REPL{Session: sess}

	info, err := model.Resolve("grok-2-latest")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	usage := grok.Usage{PromptTokens: 1000, CompletionTokens: 2000}
	want := info.PromptCostPer1K + 2*info.CompletionCostPer1K
	if got := repl.exchangeCost(usage); got != want {
		t.Errorf("exchangeCost(%+v) = %f, want %f", usage, got, want)
	}
}
