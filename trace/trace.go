// Package trace records blurshield diagnostics: restoration pass outcomes,
// locator fallback depth, dead-mark cleanup, persistence round-trips, and —
// through the "sqlite-trace" driver it registers — every SQL statement the
// stores run.
//
// Engine-side code emits Events through the global Recorder; the hub ingests
// batches from devices over HTTP. Without a Recorder (SetStore not called or
// nil) events are logged via slog only.
//
//	traceDB, _ := dbopen.Open("traces.db") // raw "sqlite", no recursion
//	store := trace.NewStore(traceDB)
//	store.Init()
//	trace.SetStore(store)
//
//	db, _ := dbopen.Open("marks.db", dbopen.WithTrace()) // SQL now traced
package trace

import (
	"database/sql"
	"sync"
	"time"

	sqlite "modernc.org/sqlite"
)

// Event kinds emitted by the engine. The hub accepts arbitrary kinds; these
// are the ones its dashboards know about.
const (
	EventPass       = "restore_pass"       // one restoration pass completed
	EventResolved   = "mark_resolved"      // a mark re-applied, detail = method/fallback depth
	EventDead       = "mark_dead"          // a mark went unresolvable and was cleaned up
	EventApplyFail  = "apply_failed"       // every effect method failed for a mark
	EventPersist    = "persist"            // gateway save/load, detail = tier
	EventSQL        = "sql"                // statement from the tracing driver
	EventModeChange = "mode_change"        // interaction mode transition
)

// Event is a single diagnostic record.
type Event struct {
	TraceID    string `json:"trace_id,omitempty"` // request/session correlation
	Kind       string `json:"kind"`
	MarkID     string `json:"mark_id,omitempty"`
	Identity   string `json:"identity,omitempty"` // document identity
	Detail     string `json:"detail,omitempty"`
	DurationUs int64  `json:"duration_us,omitempty"`
	Error      string `json:"error,omitempty"`
	Timestamp  int64  `json:"timestamp"` // unix microseconds
}

// Recorder is the interface for trace persistence backends. Store (local
// SQLite) and RemoteStore (HTTP POST to the hub) both implement it.
type Recorder interface {
	RecordAsync(e *Event)
	Close() error
}

var (
	globalStore Recorder
	storeMu     sync.RWMutex
)

// SetStore sets the global trace recorder. Pass nil to disable persistence
// (slog-only mode).
func SetStore(s Recorder) {
	storeMu.Lock()
	globalStore = s
	storeMu.Unlock()
}

func getStore() Recorder {
	storeMu.RLock()
	defer storeMu.RUnlock()
	return globalStore
}

// Emit queues an event on the global recorder, filling the timestamp when
// the caller left it zero. Non-blocking; a no-op without a recorder.
func Emit(e *Event) {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMicro()
	}
	if store := getStore(); store != nil {
		store.RecordAsync(e)
	}
}

func init() {
	sql.Register("sqlite-trace", &TracingDriver{
		Driver: &sqlite.Driver{},
	})
}
