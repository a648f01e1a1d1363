// Package onboard provides a composable onboarding flow engine for Go.
// It sequences a multi-step account-setup flow, decides which steps to
// show based on collected answers and device permission state, gates
// forward progress behind per-step validation, and persists progress
// across process restarts.
//
// Onboard is designed as a library, not a service. Import it, build a
// step registry and a validation gate, configure a store, and drive the
// flow controller from your presentation layer.
//
// # Quick Start
//
//	reg, _ := step.NewRegistry(
//	    step.Step{Ordinal: 1, Key: "contact", Title: "How can we reach you?"},
//	    step.Step{Ordinal: 2, Key: "username", Title: "Pick a username"},
//	)
//	ctrl, err := flow.New(ctx, reg, gate,
//	    progress.New(memory.New(), sessionID),
//	    identityClient,
//	    flow.WithPermissions(perms),
//	)
//
// # Architecture
//
// Onboard follows a composable store pattern: the progress subsystem
// defines a minimal key-value contract and any backend (memory, Redis,
// SQLite, Postgres, Mongo) implements it. The flow controller owns all
// mutable session state and serializes every mutation; the registry,
// gate, and resolver are pure.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package onboard
