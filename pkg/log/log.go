package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the root logger every component logger derives from.
var Logger zerolog.Logger

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

func (l Level) zerologLevel() zerolog.Level {
	switch Level(strings.ToLower(string(l))) {
	case DebugLevel:
		return zerolog.DebugLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Config holds logging configuration. ComponentLevels overrides the global
// level for individual subsystems ("mvcc", "lock", "traverse", ...), so a
// single noisy component can run at debug while the rest of the engine
// stays quiet: GC ticks and traversal frontiers drown out everything else
// when every subsystem shares one level.
type Config struct {
	Level           Level
	JSONOutput      bool
	Output          io.Writer
	ComponentLevels map[string]Level
}

var (
	overridesMu sync.RWMutex
	overrides   map[string]zerolog.Level
)

// Init initializes the global logger and installs any per-component level
// overrides. The zerolog global gate is set to the most verbose level any
// component may use; the base level rides on the root logger, so an
// override can both raise and lower a single component's threshold.
func Init(cfg Config) {
	base := cfg.Level.zerologLevel()
	gate := base
	for _, level := range cfg.ComponentLevels {
		if zl := level.zerologLevel(); zl < gate {
			gate = zl
		}
	}
	zerolog.SetGlobalLevel(gate)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
	Logger = Logger.Level(base)

	overridesMu.Lock()
	overrides = make(map[string]zerolog.Level, len(cfg.ComponentLevels))
	for component, level := range cfg.ComponentLevels {
		overrides[component] = level.zerologLevel()
	}
	overridesMu.Unlock()
}

// WithComponent returns the named subsystem's logger, honoring any
// per-component level override from Init. Every engine subsystem obtains
// its logger here at construction time, so an override applies to all of
// that subsystem's lines at once.
func WithComponent(component string) zerolog.Logger {
	l := Logger.With().Str("component", component).Logger()

	overridesMu.RLock()
	level, ok := overrides[component]
	overridesMu.RUnlock()
	if ok {
		l = l.Level(level)
	}
	return l
}

// WithTx scopes a component logger to one transaction, for lines emitted
// on behalf of a specific transaction (conflicts, deadlock victims,
// commit failures).
func WithTx(component string, txID uint64) zerolog.Logger {
	return WithComponent(component).With().Uint64("tx_id", txID).Logger()
}

// WithIndex scopes the index subsystem's logger to one index in one
// space, for lifecycle lines (backfill, activation, drop).
func WithIndex(spaceID uint32, name string) zerolog.Logger {
	return WithComponent("index").With().Uint32("space_id", spaceID).Str("index", name).Logger()
}

// WithSpace scopes a component logger to one graph space.
func WithSpace(component string, spaceID uint32) zerolog.Logger {
	return WithComponent(component).With().Uint32("space_id", spaceID).Logger()
}
