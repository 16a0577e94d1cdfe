// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeExecutor struct {
	result Result
	err    error
	calls  int
}

func (f *fakeExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	f.calls++
	return f.result, f.err
}

func testRegistry(exec Executor) *Registry {
	r := NewRegistry()
	r.Register(&Tool{
		Name:     "exec",
		Risk:     RiskCritical,
		Required: []string{"command"},
		Executor: exec,
	})
	return r
}

func TestInvokeUnknownTool(t *testing.T) {
	fake := &fakeExecutor{}
	r := testRegistry(fake)

	_, err := r.Invoke(context.Background(), "make_coffee", nil)
	if !errors.Is(err, ErrUnknownTool) {
		t.Errorf("Invoke(make_coffee) error = %v, want ErrUnknownTool", err)
	}
	if fake.calls != 0 {
		t.Errorf("executor called %d times for unknown tool, want 0", fake.calls)
	}
}

func TestInvokeMissingArgument(t *testing.T) {
	fake := &fakeExecutor{}
	r := testRegistry(fake)

	tests := []map[string]interface{}{
		nil,
		{},
		{"command": ""},
	}
	for _, params := range tests {
		_, err := r.Invoke(context.Background(), "exec", params)
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("Invoke(exec, %v) error = %v, want ErrInvalidArgument", params, err)
		}
	}
	if fake.calls != 0 {
		t.Errorf("executor called %d times with invalid args, want 0", fake.calls)
	}
}

func TestInvokeSuccess(t *testing.T) {
	fake := &fakeExecutor{result: Result{Success: true, Output: "PONG"}}
	r := testRegistry(fake)

	output, err := r.Invoke(context.Background(), "exec", map[string]interface{}{"command": "ping"})
	if err != nil {
		t.Fatalf("Invoke error = %v", err)
	}
	if output != "PONG" {
		t.Errorf("Invoke output = %q, want %q", output, "PONG")
	}
}

func TestInvokeExecutionError(t *testing.T) {
	fake := &fakeExecutor{err: errors.New("boom")}
	r := testRegistry(fake)

	_, err := r.Invoke(context.Background(), "exec", map[string]interface{}{"command": "ping"})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Invoke error = %T, want *ExecutionError", err)
	}
	if execErr.Tool != "exec" {
		t.Errorf("ExecutionError.Tool = %q, want exec", execErr.Tool)
	}
	if !errors.Is(err, fake.err) {
		t.Error("ExecutionError should wrap the underlying error")
	}
}

func TestInvokeFailedResult(t *testing.T) {
	fake := &fakeExecutor{result: Result{Success: false, Error: "exit code 1"}}
	r := testRegistry(fake)

	_, err := r.Invoke(context.Background(), "exec", map[string]interface{}{"command": "ping"})
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("Invoke error = %T, want *ExecutionError", err)
	}
	if !strings.Contains(execErr.Error(), "exit code 1") {
		t.Errorf("ExecutionError = %q, want to contain result error", execErr.Error())
	}
}

func TestInvokePassesThroughInvalidArgument(t *testing.T) {
	fake := &fakeExecutor{err: fmt.Errorf("%w: command is required", ErrInvalidArgument)}
	r := testRegistry(fake)

	_, err := r.Invoke(context.Background(), "exec", map[string]interface{}{"command": "x"})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Invoke error = %v, want ErrInvalidArgument passthrough", err)
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		t.Error("argument errors must not be wrapped as ExecutionError")
	}
}

func TestInvokePassesThroughCommandRejections(t *testing.T) {
	exec, spawns := countingExecutor()
	r := NewDefaultRegistry(exec)

	tests := []struct {
		command string
		want    error
	}{
		{"rm -rf /", ErrCommandNotAllowed},
		{"ping; rm -rf /", ErrCommandRejected},
	}

	for _, tt := range tests {
		_, err := r.Invoke(context.Background(), "exec", map[string]interface{}{"command": tt.command})
		if !errors.Is(err, tt.want) {
			t.Errorf("Invoke(exec, %q) error = %v, want %v", tt.command, err, tt.want)
		}
		var execErr *ExecutionError
		if errors.As(err, &execErr) {
			t.Errorf("Invoke(exec, %q) wrapped a pre-spawn rejection as ExecutionError", tt.command)
		}
	}
	if *spawns != 0 {
		t.Errorf("spawns = %d, want 0", *spawns)
	}
}

func TestRiskLevelString(t *testing.T) {
	tests := []struct {
		level RiskLevel
		want  string
	}{
		{RiskLow, "Low"},
		{RiskMedium, "Medium"},
		{RiskCritical, "Critical"},
		{RiskLevel(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("RiskLevel(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestDefaultRegistryTools(t *testing.T) {
	r := NewDefaultRegistry(NewSystemCommandExecutor(time.Second, 1000, nil))
	for _, name := range []string{"exec", "weather", "web_search"} {
		if r.Get(name) == nil {
			t.Errorf("default registry missing %q", name)
		}
	}
}

// =============================================================================
// WEATHER
// =============================================================================

func TestWeatherExecutor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "Oslo") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		fmt.Fprintln(w, "Oslo: +4°C")
	}))
	defer server.Close()

	e := NewWeatherExecutor()
	e.BaseURL = server.URL

	result, err := e.Execute(context.Background(), map[string]interface{}{"location": "Oslo"})
	if err != nil {
		t.Fatalf("Execute error = %v", err)
	}
	if !result.Success {
		t.Fatalf("Success = false, error = %s", result.Error)
	}
	if result.Output != "Oslo: +4°C" {
		t.Errorf("Output = %q, want trimmed report", result.Output)
	}
}

func TestWeatherExecutorMissingLocation(t *testing.T) {
	e := NewWeatherExecutor()
	_, err := e.Execute(context.Background(), map[string]interface{}{})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Execute without location error = %v, want ErrInvalidArgument", err)
	}
}

func TestWeatherExecutorServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	e := NewWeatherExecutor()
	e.BaseURL = server.URL

	result, err := e.Execute(context.Background(), map[string]interface{}{"location": "Oslo"})
	if err != nil {
		t.Fatalf("Execute error = %v", err)
	}
	if result.Success {
		t.Error("Success = true for 503 response, want false")
	}
}

// =============================================================================
// WEB SEARCH
// =============================================================================

const ddgFixture = `
<div class="result results_links results_links_deep web-result">
  <h2 class="result__title">
    <a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&amp;rut=abc">Go Documentation</a>
  </h2>
  <a class="result__snippet" href="#">Learn &amp; explore the <b>Go</b> programming language.</a>
</div>
<div class="result results_links results_links_deep web-result">
  <h2 class="result__title">
    <a rel="nofollow" class="result__a" href="https://pkg.go.dev/">Go Packages</a>
  </h2>
  <a class="result__snippet" href="#">Package discovery site.</a>
</div>`

func TestWebSearchParseHTML(t *testing.T) {
	e := &DuckDuckGoSearchExecutor{}
	results := e.parseHTML(ddgFixture)

	if len(results) != 2 {
		t.Fatalf("parseHTML returned %d results, want 2", len(results))
	}
	if results[0].Title != "Go Documentation" {
		t.Errorf("Title = %q, want %q", results[0].Title, "Go Documentation")
	}
	if results[0].URL != "https://go.dev/doc/" {
		t.Errorf("URL = %q, want unwrapped redirect target", results[0].URL)
	}
	if !strings.Contains(results[0].Snippet, "Learn & explore") {
		t.Errorf("Snippet = %q, want decoded entities and stripped tags", results[0].Snippet)
	}
	if results[1].URL != "https://pkg.go.dev/" {
		t.Errorf("URL = %q, want direct URL preserved", results[1].URL)
	}
}

func TestWebSearchExecute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "golang context" {
			t.Errorf("query = %q, want %q", got, "golang context")
		}
		io.WriteString(w, ddgFixture)
	}))
	defer server.Close()

	e := &DuckDuckGoSearchExecutor{BaseURL: server.URL + "/"}
	result, err := e.Execute(context.Background(), map[string]interface{}{
		"query":       "golang context",
		"max_results": 1,
	})
	if err != nil {
		t.Fatalf("Execute error = %v", err)
	}
	if !result.Success {
		t.Fatalf("Success = false, error = %s", result.Error)
	}
	if !strings.Contains(result.Output, "Go Documentation") {
		t.Errorf("Output missing first result:\n%s", result.Output)
	}
	if strings.Contains(result.Output, "Go Packages") {
		t.Errorf("Output contains second result despite max_results=1:\n%s", result.Output)
	}
}

func TestWebSearchMissingQuery(t *testing.T) {
	e := &DuckDuckGoSearchExecutor{}
	_, err := e.Execute(context.Background(), map[string]interface{}{})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Execute without query error = %v, want ErrInvalidArgument", err)
	}
}

func TestExtractActualURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fpage", "https://example.com/page"},
		{"https://example.com/direct", "https://example.com/direct"},
		{"javascript:alert(1)", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := extractActualURL(tt.in); got != tt.want {
			t.Errorf("extractActualURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
