// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/morganforge/grokcli/internal/auth"
	"github.com/morganforge/grokcli/internal/config"
	"github.com/morganforge/grokcli/internal/grok"
	"github.com/morganforge/grokcli/internal/model"
	"github.com/morganforge/grokcli/internal/pricing"
	"github.com/morganforge/grokcli/internal/util"
)

// =============================================================================
// SESSION COMMANDS
// =============================================================================

// HandleModel switches the active model. The name argument is mandatory;
// /info shows the current one.
func HandleModel(ctx *Context, args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("missing required argument: name (usage: /model <name>)")
	}

	name := args[0]
	if err := ctx.Session.SetModel(name); err != nil {
		return "", fmt.Errorf("%w\nAvailable models: %s\nUse /models for details",
			err, strings.Join(model.IDs(), ", "))
	}

	info, _ := model.Resolve(ctx.Session.Model())
	return fmt.Sprintf("Switched to %s (%s)", info.ID, info.Name), nil
}

// HandleModels lists known models. With "remote" it queries the API instead.
func HandleModels(ctx *Context, args []string) (string, error) {
	if len(args) > 0 && strings.EqualFold(args[0], "remote") {
		return listRemoteModels(ctx)
	}

	var b strings.Builder
	b.WriteString("Available models:\n\n")
	for _, info := range model.All() {
		marker := "  "
		if info.ID == ctx.Session.Model() {
			marker = "* "
		}
		b.WriteString(fmt.Sprintf("%s%s %s\n", marker, info.TierIcon(), info.ID))
		b.WriteString(fmt.Sprintf("     %s\n", info.Description))
		b.WriteString(fmt.Sprintf("     Context: %s  Pricing: %s\n", info.ContextString(), info.CostString()))
		if len(info.Aliases) > 0 {
			b.WriteString(fmt.Sprintf("     Aliases: %s\n", strings.Join(info.Aliases, ", ")))
		}
		b.WriteString("\n")
	}
	b.WriteString("Switch with /model <name>")
	return b.String(), nil
}

func listRemoteModels(ctx *Context) (string, error) {
	if ctx.Grok == nil || !ctx.Grok.IsConfigured() {
		return "", fmt.Errorf("API client not configured; set GROK_API_KEY")
	}

	remote, err := ctx.Grok.ListModels(ctx.Ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list models: %w", err)
	}

	sort.Slice(remote, func(i, j int) bool { return remote[i].ID < remote[j].ID })

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Models reported by the API (%d):\n\n", len(remote)))
	for _, m := range remote {
		b.WriteString(fmt.Sprintf("  %s\n", m.ID))
		if len(m.Aliases) > 0 {
			b.WriteString(fmt.Sprintf("     Aliases: %s\n", strings.Join(m.Aliases, ", ")))
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// HandleInfo shows a session status summary.
func HandleInfo(ctx *Context, args []string) (string, error) {
	stats := ctx.Session.Stats()

	var b strings.Builder
	b.WriteString("Session\n")
	b.WriteString(fmt.Sprintf("  ID:        %s\n", ctx.Session.ID()))
	b.WriteString(fmt.Sprintf("  Model:     %s\n", ctx.Session.Model()))
	b.WriteString(fmt.Sprintf("  State:     %s\n", ctx.Session.State()))
	b.WriteString(fmt.Sprintf("  Uptime:    %s\n", stats.Duration.Round(time.Second)))
	b.WriteString(fmt.Sprintf("  Messages:  %d\n", stats.Messages))
	b.WriteString(fmt.Sprintf("  Exchanges: %d\n", stats.Exchanges))
	b.WriteString(fmt.Sprintf("  Tokens:    %d in / %d out\n", stats.InputTokens, stats.OutputTokens))
	b.WriteString(fmt.Sprintf("  Cost:      %s", pricing.FormatCost(stats.Cost)))

	if ctx.Elevator != nil && ctx.Elevator.IsElevated() {
		b.WriteString(fmt.Sprintf("\n  Admin:     elevated (%s remaining)", ctx.Elevator.Remaining().Round(time.Second)))
	}
	return b.String(), nil
}

// HandleUsage shows cumulative token usage and cost.
func HandleUsage(ctx *Context, args []string) (string, error) {
	stats := ctx.Session.Stats()
	return fmt.Sprintf(
		"Usage this session:\n  Input tokens:  %d\n  Output tokens: %d\n  Total tokens:  %d\n  Exchanges:     %d\n  Cost:          %s",
		stats.InputTokens, stats.OutputTokens, stats.TotalTokens(), stats.Exchanges,
		pricing.FormatCost(stats.Cost)), nil
}

// HandleHistory shows the command history buffer.
func HandleHistory(ctx *Context, args []string) (string, error) {
	history := ctx.Session.CommandHistory()
	if len(history) == 0 {
		return "No commands recorded yet.", nil
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Command history (%d):\n", len(history)))
	for i, line := range history {
		b.WriteString(fmt.Sprintf("  %3d  %s\n", i+1, util.TruncateWidth(line, 100)))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// HandleClear clears the conversation, or with "history" the command buffer.
func HandleClear(ctx *Context, args []string) (string, error) {
	if len(args) > 0 {
		if !strings.EqualFold(args[0], "history") {
			return "", fmt.Errorf("/clear: unknown target %q (try /clear or /clear history)", args[0])
		}
		ctx.Session.ClearCommandHistory()
		return "Command history cleared.", nil
	}

	n := len(ctx.Session.Messages())
	ctx.Session.ClearMessages()
	return fmt.Sprintf("Conversation cleared (%d messages dropped). Usage counters are kept.", n), nil
}

// =============================================================================
// API COMMANDS
// =============================================================================

// HandleKey shows information about the configured API key.
func HandleKey(ctx *Context, args []string) (string, error) {
	if ctx.Grok == nil || !ctx.Grok.IsConfigured() {
		return "", fmt.Errorf("no API key configured; set GROK_API_KEY")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("API key: %s\n", ctx.Grok.APIKeyMasked()))

	info, err := ctx.Grok.GetKeyInfo(ctx.Ctx)
	if err != nil {
		b.WriteString(fmt.Sprintf("Could not query key details: %v", err))
		return b.String(), nil
	}

	b.WriteString(fmt.Sprintf("  Name:     %s\n", info.Name))
	b.WriteString(fmt.Sprintf("  Redacted: %s\n", info.RedactedKey))
	b.WriteString(fmt.Sprintf("  Created:  %s\n", info.CreateTime))
	if len(info.ACLs) > 0 {
		b.WriteString(fmt.Sprintf("  ACLs:     %s\n", strings.Join(info.ACLs, ", ")))
	}
	switch {
	case info.Blocked || info.TeamBlocked:
		b.WriteString("  Status:   BLOCKED")
	case info.Disabled:
		b.WriteString("  Status:   disabled")
	default:
		b.WriteString("  Status:   active")
	}
	return b.String(), nil
}

// HandleTokens estimates token count and cost for the given text using the
// active model's pricing. The estimate is deterministic; identical input
// yields identical output. "remote" as the first word asks the API to
// tokenize instead, using the model's real tokenizer.
func HandleTokens(ctx *Context, args []string) (string, error) {
	if len(args) > 0 && strings.EqualFold(args[0], "remote") {
		return handleTokensRemote(ctx, strings.Join(args[1:], " "))
	}

	text := strings.Join(args, " ")
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("/tokens: text is required (usage: /tokens <text>)")
	}

	tokens, cost, err := ctx.Estimator.Estimate(text, ctx.Session.Model())
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Estimated tokens: %d\nEstimated cost:   %s (model %s)",
		tokens, pricing.FormatCost(cost), ctx.Session.Model()), nil
}

// handleTokensRemote tokenizes through the API.
func handleTokensRemote(ctx *Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("/tokens: text is required (usage: /tokens remote <text>)")
	}
	if ctx.Grok == nil {
		return "", grok.ErrNotConfigured
	}

	resp, err := ctx.Grok.Tokenize(ctx.Ctx, ctx.Session.Model(), text)
	if err != nil {
		return "", fmt.Errorf("remote tokenization failed: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Tokens: %d (model %s)\n", resp.Count(), ctx.Session.Model())
	for i, tok := range resp.TokenIDs {
		if i >= 20 {
			fmt.Fprintf(&b, "  ... %d more", resp.Count()-i)
			break
		}
		fmt.Fprintf(&b, "  %6d  %q\n", tok.TokenID, tok.StringToken)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// =============================================================================
// TOOL COMMANDS
// =============================================================================

// HandleExec runs an allow-listed system command through the tool layer.
func HandleExec(ctx *Context, args []string) (string, error) {
	if ctx.Tools == nil {
		return "", fmt.Errorf("tool layer not available")
	}

	command := strings.Join(args, " ")
	output, err := ctx.Tools.Invoke(ctx.Ctx, "exec", map[string]interface{}{
		"command": command,
	})
	if err != nil {
		return "", err
	}

	// Command execution is the one thing worth preserving mid-run: keep
	// the snapshot current so a crash does not lose the command trail.
	if ctx.Snapshots != nil {
		if saveErr := ctx.Snapshots.Save(ctx.Session); saveErr != nil {
			output += "\n(warning: session snapshot not saved: " + saveErr.Error() + ")"
		}
	}

	if strings.TrimSpace(output) == "" {
		return "(no output)", nil
	}
	return output, nil
}

// HandleRequest elevates the session for privileged commands after TOTP
// verification.
func HandleRequest(ctx *Context, args []string) (string, error) {
	if len(args) == 0 || !strings.EqualFold(args[0], "admin") {
		return "", fmt.Errorf("/request: unknown scope (usage: /request admin)")
	}

	if ctx.Elevator == nil || !ctx.Elevator.Configured() {
		return "", auth.ErrNotConfigured
	}
	if ctx.Elevator.IsElevated() {
		return fmt.Sprintf("Already elevated; %s remaining.", ctx.Elevator.Remaining().Round(time.Second)), nil
	}
	if ctx.ReadSecret == nil {
		return "", fmt.Errorf("cannot prompt for a code in this environment")
	}

	code, err := ctx.ReadSecret("TOTP code: ")
	if err != nil {
		return "", fmt.Errorf("failed to read code: %w", err)
	}

	if err := ctx.Elevator.Elevate(strings.TrimSpace(code)); err != nil {
		return "", err
	}
	return fmt.Sprintf("Elevated for %s. Privileged commands are now allowed.",
		ctx.Elevator.Remaining().Round(time.Second)), nil
}

// =============================================================================
// SETTINGS COMMANDS
// =============================================================================

// HandleConfig shows or edits configuration.
//
//	/config             list all keys
//	/config <key>       show one value
//	/config <key> <v>   set and persist
func HandleConfig(ctx *Context, args []string) (string, error) {
	if ctx.Config == nil {
		return "", fmt.Errorf("configuration not available")
	}

	switch len(args) {
	case 0:
		var b strings.Builder
		b.WriteString("Configuration:\n")
		for _, key := range config.Keys() {
			value, err := ctx.Config.Get(key)
			if err != nil {
				continue
			}
			b.WriteString(fmt.Sprintf("  %s %s\n", util.PadRight(key, 24), value))
		}
		b.WriteString("Set with /config <key> <value>")
		return b.String(), nil

	case 1:
		value, err := ctx.Config.Get(args[0])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s = %s", args[0], value), nil

	default:
		key := args[0]
		value := strings.Join(args[1:], " ")
		if err := ctx.Config.Set(key, value); err != nil {
			return "", err
		}
		if err := ctx.Config.Save(); err != nil {
			return "", fmt.Errorf("value applied but not persisted: %w", err)
		}
		return fmt.Sprintf("%s = %s (saved)", key, value), nil
	}
}

// =============================================================================
// NAVIGATION COMMANDS
// =============================================================================

// HandleHelp lists all visible commands grouped by category.
func HandleHelp(ctx *Context, args []string) (string, error) {
	registry := NewRegistry()
	byCategory := registry.ByCategory()

	categories := make([]string, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, category := range categories {
		cmds := byCategory[category]
		sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })

		b.WriteString(fmt.Sprintf("\n%s:\n", category))
		for _, cmd := range cmds {
			usage := cmd.Usage
			if usage == "" {
				usage = cmd.Name
			}
			b.WriteString(fmt.Sprintf("  %s %s\n", util.PadRight(usage, 24), cmd.Description))
		}
	}
	b.WriteString("\nAnything else you type is sent to the model.")
	return b.String(), nil
}

// HandleExit requests a clean shutdown.
func HandleExit(ctx *Context, args []string) (string, error) {
	return "", ErrExitRequested
}
