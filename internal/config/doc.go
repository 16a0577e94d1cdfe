// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for grokcli.
//
// Settings come from (in order of precedence):
//   - Environment variables (GROK_API_KEY, GROK_BASE_URL, GROK_MODEL)
//   - ~/.grokcli/config.toml
//   - Built-in defaults
//
// The API key is environment-only and is never written to disk. A Watcher
// reloads the file on external edits; a failed reload keeps the previous
// configuration.
package config
