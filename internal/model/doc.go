// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model holds the static registry of Grok models.
//
// ModelInfo carries the identity, context window, and per-1K-token pricing
// for each model the client knows about. Resolve accepts canonical IDs and
// aliases; everything else returns ErrUnknownModel.
package model
