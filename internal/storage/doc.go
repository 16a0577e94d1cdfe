// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists session snapshots between runs.
//
// A snapshot carries the trailing conversation messages and the command
// history, written atomically to ~/.grokcli/session.json on exit and
// restored at startup. Usage counters are per-run and are not persisted.
package storage
