// grokcli - An interactive terminal chat client for the xAI Grok API.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"fmt"
	"os"

	"github.com/morganforge/grokcli/internal/cli"
	"github.com/morganforge/grokcli/internal/config"
	"github.com/morganforge/grokcli/internal/grok"
	"github.com/morganforge/grokcli/internal/session"
	"github.com/morganforge/grokcli/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	for _, arg := range os.Args[1:] {
		switch arg {
		case "--version", "-v":
			fmt.Printf("grokcli %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
			os.Exit(cli.ExitSuccess)
		case "--help", "-h":
			printUsage()
			os.Exit(cli.ExitSuccess)
		default:
			fmt.Fprintf(os.Stderr, "unknown argument: %s\n", arg)
			printUsage()
			os.Exit(cli.ExitUsageError)
		}
	}

	// Configuration problems are the only fatal error class. Everything
	// after the loop starts is displayed and recovered.
	cfg, err := config.Load()
	if err != nil {
		cli.HandleErrorAndExit(cli.NewConfigError("cannot load configuration", err))
	}
	if cfg.APIKey == "" {
		cli.HandleErrorAndExit(cli.NewConfigError("GROK_API_KEY is not set", nil))
	}
	config.SetGlobal(cfg)

	client := grok.NewClient(cfg.APIKey).
		WithBaseURL(cfg.API.BaseURL).
		WithTimeout(cfg.RequestTimeout()).
		WithMaxRetries(cfg.API.MaxRetries).
		WithRequestsPerMinute(cfg.API.RequestsPerMinute)

	sess, err := session.New(cfg.DefaultModel)
	if err != nil {
		cli.HandleErrorAndExit(cli.NewConfigError("default_model is not a known model", err))
	}

	repl := cli.NewREPL(cfg, sess, client)

	if configDir, err := config.ConfigDir(); err == nil {
		store := storage.NewSnapshotStore(configDir, cfg.History.KeepMessages)
		repl.SetSnapshotStore(store)

		if cfg.History.SaveSession {
			if snap, err := store.Load(); err == nil && snap != nil {
				if err := store.Restore(snap, sess); err != nil {
					fmt.Fprintf(os.Stderr, "session restore skipped: %v\n", err)
				}
			}
		}
	}

	// Live reload of external config edits. Best effort: the chat loop
	// works fine without it.
	if watcher, err := config.NewWatcher(repl.ReloadConfig); err == nil {
		defer watcher.Close()
	}

	if err := repl.Run(); err != nil {
		cli.HandleErrorAndExit(err)
	}
	os.Exit(cli.ExitSuccess)
}

func printUsage() {
	fmt.Println("Usage: grokcli [--version] [--help]")
	fmt.Println()
	fmt.Println("Starts an interactive chat session with the xAI Grok API.")
	fmt.Println("Requires the GROK_API_KEY environment variable.")
	fmt.Println()
	fmt.Println("Type /help inside the session for the command list.")
}
