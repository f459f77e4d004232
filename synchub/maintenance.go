// CLAUDE:SUMMARY Maintenance mode middleware — SQLite flag cached in memory, 503 JSON while active.
package synchub

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Maintenance blocks requests with 503 while the maintenance flag in the
// maintenance table (single id=1 row) is set. The flag is cached in memory
// and refreshed by StartReloader. A missing or empty table means off.
type Maintenance struct {
	db      *sql.DB
	active  atomic.Bool
	message atomic.Value // string
	exclude []string
}

// NewMaintenance creates a maintenance checker. Paths matching any of
// excludePrefixes are never blocked (health checks).
func NewMaintenance(db *sql.DB, excludePrefixes ...string) *Maintenance {
	m := &Maintenance{
		db:      db,
		exclude: excludePrefixes,
	}
	m.message.Store("maintenance in progress")
	m.reload()
	return m
}

// Active reports whether maintenance mode is currently on.
func (m *Maintenance) Active() bool {
	return m.active.Load()
}

// StartReloader refreshes the flag every 5 seconds until done is closed.
func (m *Maintenance) StartReloader(done <-chan struct{}) {
	tick := time.NewTicker(5 * time.Second)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				m.reload()
			}
		}
	}()
}

func (m *Maintenance) reload() {
	var active int
	var message string
	err := m.db.QueryRow(`SELECT active, message FROM maintenance WHERE id = 1`).Scan(&active, &message)
	if err != nil {
		m.active.Store(false)
		return
	}

	was := m.active.Load()
	m.active.Store(active == 1)
	if message != "" {
		m.message.Store(message)
	}

	if active == 1 && !was {
		slog.Warn("synchub: maintenance mode enabled", "message", message)
	} else if active != 1 && was {
		slog.Info("synchub: maintenance mode disabled")
	}
}

// Middleware blocks requests with a 503 JSON body while maintenance is
// active. Excluded prefixes pass through.
func (m *Maintenance) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.active.Load() {
			next.ServeHTTP(w, r)
			return
		}

		for _, prefix := range m.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		msg, _ := m.message.Load().(string)
		w.Header().Set("Retry-After", "300")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": msg})
	})
}
