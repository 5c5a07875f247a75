/*
Package log provides structured logging for graphd using zerolog.

The package wraps zerolog with one root logger, per-subsystem child
loggers, and per-component level overrides: the engine's subsystems have
very different chattiness (MVCC GC ticks and traversal frontiers produce
orders of magnitude more debug lines than the lock manager), so one global
level is rarely the right knob when chasing a bug in a single component.

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Thread-safe concurrent writes

Configuration:
  - Level: debug, info, warn, or error — the engine-wide default
  - ComponentLevels: per-subsystem overrides ("mvcc", "lock", "index",
    "storage", "traverse", "txn") that can raise or lower one component's
    threshold independently of the rest
  - JSONOutput: machine-readable JSON, or console output for humans
  - Output: stdout by default, any io.Writer otherwise

Child loggers:
  - WithComponent: the emitting subsystem's logger; honors any
    ComponentLevels override, so every subsystem obtains its logger here
  - WithTx: component logger scoped to one transaction (deadlock victims,
    conflicts, commit failures)
  - WithIndex: index subsystem logger scoped to one index in one space
    (backfill, activation, drop)
  - WithSpace: component logger scoped to one graph space

# Level Conventions

Debug is for per-operation detail useful only when chasing a specific
problem: GC reclaim counts, traversal frontier sizes, index backfill
progress. Info marks lifecycle events: store opened, index activated.
Warn marks recoverable anomalies the operator should know about: deadlock
victims, lock timeouts, cascade deletes touching many edges. Error marks
failures surfaced to the caller: commit apply failures, index batch errors.

Routine per-row work is never logged at Info; hot paths (visibility checks,
iterator production) are not logged at all.

# Usage

	import "github.com/cuemby/graphd/pkg/log"

	log.Init(log.Config{
		Level:           log.WarnLevel,
		JSONOutput:      true,
		ComponentLevels: map[string]log.Level{"mvcc": log.DebugLevel},
	})

	mvccLog := log.WithComponent("mvcc") // runs at debug per the override
	mvccLog.Debug().Int("collected", n).Msg("mvcc gc reclaimed stale versions")

	log.WithTx("txn", tx.ID()).Warn().Msg("deadlock detected, requester is victim")
*/
package log
