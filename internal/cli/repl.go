// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// repl.go - Interactive chat loop for grokcli.
//
// The loop is single threaded: one user turn is fully processed before the
// next prompt is shown. Ctrl+C cancels an in-flight request; Ctrl+D or /exit
// leaves the program.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/morganforge/grokcli/internal/auth"
	"github.com/morganforge/grokcli/internal/commands"
	"github.com/morganforge/grokcli/internal/config"
	"github.com/morganforge/grokcli/internal/grok"
	"github.com/morganforge/grokcli/internal/model"
	"github.com/morganforge/grokcli/internal/pricing"
	"github.com/morganforge/grokcli/internal/session"
	"github.com/morganforge/grokcli/internal/storage"
	"github.com/morganforge/grokcli/internal/tools"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for the interactive loop.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a new ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		// Fallback to temp directory if config dir unavailable
		configDir = os.TempDir()
	}
	historyFile := filepath.Join(configDir, "chat_history")

	cli := &ChatCLI{
		line:        line,
		historyFile: historyFile,
	}

	cli.LoadHistory()

	return cli
}

// LoadHistory loads command history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
// Supports history navigation with arrow keys.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}

	return input, nil
}

// ReadSecret reads a line without echo, for TOTP codes.
func (c *ChatCLI) ReadSecret(prompt string) (string, error) {
	if err := RequiresTTY("read a code"); err != nil {
		return "", err
	}
	return c.line.PasswordPrompt(prompt)
}

// SaveHistory persists command history to file with secure permissions.
func (c *ChatCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}

	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()

	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// REPL
// =============================================================================

// REPL holds everything the interactive loop needs.
type REPL struct {
	Config    *config.Config
	Session   *session.Session
	Client    *grok.Client
	Estimator *pricing.Estimator
	Elevator  *auth.Elevator
	Snapshots *storage.SnapshotStore
	Tools     *tools.Registry

	dispatcher *commands.Dispatcher
	cmdCtx     *commands.Context
	input      *ChatCLI

	// liveCfg carries the latest reloaded configuration; the startup
	// Config stays as the fallback when no reload has happened.
	liveCfg atomic.Pointer[config.Config]

	// cancelFunc aborts the in-flight API request, if any. Written by the
	// loop, taken by the signal goroutine, so it needs the mutex.
	cancelMu   sync.Mutex
	cancelFunc context.CancelFunc
}

// NewREPL wires up a REPL from loaded configuration.
func NewREPL(cfg *config.Config, sess *session.Session, client *grok.Client) *REPL {
	elevator := auth.NewElevator(cfg.Admin.TOTPSecret, cfg.ElevationWindow())
	executor := tools.NewSystemCommandExecutor(cfg.ExecTimeout(), cfg.Tools.MaxOutputBytes, elevator)

	input := NewChatCLI()

	cmdCtx := &commands.Context{
		Ctx:        context.Background(),
		Config:     cfg,
		Session:    sess,
		Grok:       client,
		Estimator:  pricing.NewEstimator(),
		Tools:      tools.NewDefaultRegistry(executor),
		Elevator:   elevator,
		ReadSecret: input.ReadSecret,
	}

	repl := &REPL{
		Config:     cfg,
		Session:    sess,
		Client:     client,
		Estimator:  cmdCtx.Estimator,
		Elevator:   elevator,
		Tools:      cmdCtx.Tools,
		dispatcher: commands.NewDispatcher(cmdCtx),
		cmdCtx:     cmdCtx,
		input:      input,
	}
	repl.liveCfg.Store(cfg)
	return repl
}

// SetSnapshotStore wires session persistence into the loop.
func (r *REPL) SetSnapshotStore(store *storage.SnapshotStore) {
	r.Snapshots = store
	r.cmdCtx.Snapshots = store
}

// ReloadConfig swaps in a freshly loaded configuration. Safe to call from
// the config watcher goroutine; the loop picks it up on its next turn.
func (r *REPL) ReloadConfig(cfg *config.Config) {
	if cfg != nil {
		r.liveCfg.Store(cfg)
	}
}

// config returns the configuration the current turn should use.
func (r *REPL) config() *config.Config {
	if cfg := r.liveCfg.Load(); cfg != nil {
		return cfg
	}
	return r.Config
}

// setCancel installs the cancel func for the in-flight request.
func (r *REPL) setCancel(cancel context.CancelFunc) {
	r.cancelMu.Lock()
	r.cancelFunc = cancel
	r.cancelMu.Unlock()
}

// takeCancel removes and returns the in-flight cancel func, or nil.
func (r *REPL) takeCancel() context.CancelFunc {
	r.cancelMu.Lock()
	cancel := r.cancelFunc
	r.cancelFunc = nil
	r.cancelMu.Unlock()
	return cancel
}

// Run drives the interactive loop until exit. The returned error is nil for
// clean exits; startup has already validated configuration.
func (r *REPL) Run() error {
	if !r.config().UI.Quiet {
		r.printWelcome()
	}

	defer r.input.Close()
	defer r.saveSnapshot()

	// Ctrl+C during a request cancels that request only; at the prompt,
	// liner surfaces it as ErrPromptAborted.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		for range sigChan {
			if cancel := r.takeCancel(); cancel != nil {
				cancel()
				fmt.Fprintln(os.Stderr, "\n"+warningStyle.Render("[Cancelled]"))
			}
		}
	}()

	for {
		// Pick up config reloads between turns; handlers run on this
		// goroutine, so the swap is race-free.
		r.cmdCtx.Config = r.config()

		input, err := r.input.ReadInput(promptStyle.Render("grok> "))
		if err != nil {
			// Ctrl+C at the prompt, EOF (Ctrl+D), or a read error all end
			// the session cleanly.
			fmt.Println()
			r.printExitSummary()
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			output, err := r.dispatcher.Dispatch(input)
			if errors.Is(err, commands.ErrExitRequested) {
				r.printExitSummary()
				return nil
			}
			if err != nil {
				DisplayError(err)
				continue
			}
			if output != "" {
				fmt.Println(output)
			}
			continue
		}

		// Bare exit/quit work without the slash.
		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			r.printExitSummary()
			return nil
		}

		if err := r.processMessage(input); err != nil {
			DisplayError(err)
			// The failed exchange has been rolled back; the error has been
			// shown, so the session returns to idle.
			r.Session.AcknowledgeError()
		}
	}
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// maxToolRounds caps how many times the model may call tools within one
// exchange before it must answer in text.
const maxToolRounds = 4

// processMessage sends one user message and commits the exchange. The model
// is offered the registry's callable tools; any tool calls it makes are run
// and fed back until it answers in text.
//
// On any failure after BeginExchange the pending user message is rolled back,
// so the conversation and the usage counters stay exactly as they were before
// the turn started.
func (r *REPL) processMessage(input string) error {
	cfg := r.config()

	if !r.Client.IsConfigured() {
		return grok.ErrNotConfigured
	}

	if err := r.Session.BeginExchange(input); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout())
	r.setCancel(cancel)
	defer func() {
		r.takeCancel()
		cancel()
	}()

	startTime := time.Now()

	messages := make([]grok.ChatMessage, 0, len(r.Session.Messages()))
	for _, msg := range r.Session.Messages() {
		messages = append(messages, grok.ChatMessage{Role: msg.Role, Content: msg.Content})
	}

	decls := r.toolDeclarations()

	var usage grok.Usage
	resp, err := r.Client.ChatWithTools(ctx, r.Session.Model(), messages, decls)
	if err != nil {
		return r.failExchange(err)
	}
	accumulateUsage(&usage, resp.Usage)

	for round := 0; round < maxToolRounds && len(resp.GetToolCalls()) > 0; round++ {
		messages = append(messages, resp.Choices[0].Message)
		for _, call := range resp.GetToolCalls() {
			messages = append(messages, grok.NewToolMessage(call.ID, r.runToolCall(ctx, call)))
		}

		resp, err = r.Client.ChatWithTools(ctx, r.Session.Model(), messages, decls)
		if err != nil {
			return r.failExchange(err)
		}
		accumulateUsage(&usage, resp.Usage)
	}

	content := resp.GetContent()
	cost := r.exchangeCost(usage)

	if err := r.Session.Commit(content, session.Usage{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		Cost:             cost,
	}); err != nil {
		return err
	}

	fmt.Println()
	displayResponse(content, cfg.UI.Markdown)
	fmt.Println()

	if !cfg.UI.Quiet {
		r.showBriefStats(usage, cost, time.Since(startTime))
	}

	return nil
}

// failExchange rolls the pending user message back and wraps the cause.
func (r *REPL) failExchange(err error) error {
	if rbErr := r.Session.Rollback(); rbErr != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), rbErr)
	}
	return fmt.Errorf("request failed: %w", err)
}

// toolDeclarations builds the tool list offered to the model.
func (r *REPL) toolDeclarations() []grok.Tool {
	if r.Tools == nil {
		return nil
	}
	specs := r.Tools.Specs()
	decls := make([]grok.Tool, 0, len(specs))
	for _, spec := range specs {
		decls = append(decls, grok.Tool{
			Type: "function",
			Function: grok.FunctionDef{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		})
	}
	return decls
}

// runToolCall executes one model-requested tool call. Failures are reported
// back to the model as text rather than failing the exchange.
func (r *REPL) runToolCall(ctx context.Context, call grok.ToolCall) string {
	var params map[string]interface{}
	if err := json.Unmarshal([]byte(call.Function.Arguments), &params); err != nil {
		return fmt.Sprintf("tool arguments could not be parsed: %v", err)
	}

	output, err := r.Tools.Invoke(ctx, call.Function.Name, params)
	if err != nil {
		return fmt.Sprintf("tool %s failed: %v", call.Function.Name, err)
	}
	if strings.TrimSpace(output) == "" {
		return "(no output)"
	}
	return output
}

// accumulateUsage sums token counters across the rounds of one exchange.
func accumulateUsage(total *grok.Usage, round grok.Usage) {
	total.PromptTokens += round.PromptTokens
	total.CompletionTokens += round.CompletionTokens
	total.TotalTokens += round.TotalTokens
}

// exchangeCost prices one exchange with the active model's table.
func (r *REPL) exchangeCost(usage grok.Usage) float64 {
	info, err := model.Resolve(r.Session.Model())
	if err != nil {
		return 0
	}
	promptCost := float64(usage.PromptTokens) / 1000.0 * info.PromptCostPer1K
	completionCost := float64(usage.CompletionTokens) / 1000.0 * info.CompletionCostPer1K
	return promptCost + completionCost
}

// showBriefStats shows brief stats after a response.
func (r *REPL) showBriefStats(usage grok.Usage, cost float64, duration time.Duration) {
	tokens := usage.PromptTokens + usage.CompletionTokens
	if cost > 0 {
		fmt.Fprintf(os.Stderr, "%s %d tokens | %s | %s\n",
			infoStyle.Render("[Stats]"),
			tokens,
			duration.Round(time.Millisecond),
			pricing.FormatCost(cost))
	} else {
		fmt.Fprintf(os.Stderr, "%s %d tokens | %s\n",
			infoStyle.Render("[Stats]"),
			tokens,
			duration.Round(time.Millisecond))
	}
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// saveSnapshot persists the trailing session state, if enabled.
func (r *REPL) saveSnapshot() {
	if r.Snapshots == nil || !r.config().History.SaveSession {
		return
	}
	if err := r.Snapshots.Save(r.Session); err != nil {
		fmt.Fprintf(os.Stderr, "%s could not save session: %v\n",
			warningStyle.Render("[Warning]"), err)
	}
}

// =============================================================================
// DISPLAY FUNCTIONS
// =============================================================================

// printWelcome prints the welcome banner.
func (r *REPL) printWelcome() {
	fmt.Println()
	fmt.Println(welcomeStyle.Render("grokcli interactive chat"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 30)))
	fmt.Printf("%s %s\n",
		infoStyle.Render("Model:"),
		commandStyle.Render(r.Session.Model()))

	if r.Client.IsConfigured() {
		fmt.Printf("%s %s\n",
			infoStyle.Render("API key:"),
			commandStyle.Render(r.Client.APIKeyMasked()))
	} else {
		fmt.Printf("%s %s\n",
			infoStyle.Render("API key:"),
			warningStyle.Render("missing (set GROK_API_KEY)"))
	}

	if restored := len(r.Session.Messages()); restored > 0 {
		fmt.Printf("%s %d messages restored\n",
			infoStyle.Render("Resumed:"), restored)
	}

	fmt.Println()
	fmt.Println(infoStyle.Render("Type your message and press Enter. Commands: /help, /exit"))
	fmt.Println()
}

// printExitSummary prints the session summary on exit.
func (r *REPL) printExitSummary() {
	stats := r.Session.Stats()
	r.Session.Terminate()

	if stats.Exchanges == 0 {
		fmt.Println(infoStyle.Render("Goodbye!"))
		return
	}

	elapsed := stats.Duration.Round(time.Second)

	fmt.Println()
	fmt.Println(summaryHeaderStyle.Render("Session Summary"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 15)))

	fmt.Printf("  %s %d\n",
		infoStyle.Render("Exchanges:"),
		stats.Exchanges)
	fmt.Printf("  %s %s in / %s out\n",
		infoStyle.Render("Tokens:"),
		formatNumber(stats.InputTokens),
		formatNumber(stats.OutputTokens))
	fmt.Printf("  %s %s\n",
		infoStyle.Render("Cost:"),
		pricing.FormatCost(stats.Cost))
	fmt.Printf("  %s %s\n",
		infoStyle.Render("Duration:"),
		elapsed.String())

	fmt.Println()
	fmt.Println(infoStyle.Render("Goodbye!"))
}
