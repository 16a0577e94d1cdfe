// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session tracks the state of one interactive chat session.
//
// A Session owns the conversation history, the active model, and the
// cumulative usage counters. Exchanges are transactional: BeginExchange
// appends the user message, and either Commit (reply plus counters) or
// Rollback (message removed, counters untouched) closes it. Commit is the
// only place counters move.
package session
