// CLAUDE:SUMMARY One document session: a single scheduler goroutine owning the tree, mark set, and mode machine.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bakharlabs/blurshield/bridge"
	"github.com/bakharlabs/blurshield/mark"
	"github.com/bakharlabs/blurshield/mode"
	"github.com/bakharlabs/blurshield/page"
)

// Session is one live document: its parsed tree, its mark set, and its
// interaction mode machine, all owned by a single scheduler goroutine. Every
// mutation enters through the task queue; nothing touches the tree or the
// set from outside it. Suspending work (gateway writes, passes) runs as
// queued tasks, so gestures and restoration interleave without racing.
type Session struct {
	engine   *Engine
	identity string
	doc      *page.Doc
	set      *mark.Set
	machine  *mode.Machine

	tasks chan func(context.Context)

	// host pushes notifications to the attached bridge session. Guarded by
	// hostMu because the bridge read loop swaps it while the scheduler
	// sends.
	hostMu sync.Mutex
	host   func(*bridge.Message) error

	secondPass *time.Timer

	closeOnce sync.Once
	done      chan struct{}
}

// Identity returns the session's document identity.
func (s *Session) Identity() string { return s.identity }

// run is the scheduler loop. One goroutine per session; it exits on Close.
func (s *Session) run() {
	ctx := context.Background()
	for {
		select {
		case fn := <-s.tasks:
			fn(ctx)
		case <-s.done:
			return
		}
	}
}

// do schedules fn on the session goroutine, fire-and-forget. Tasks
// submitted after Close are dropped.
func (s *Session) do(fn func(context.Context)) {
	select {
	case s.tasks <- fn:
	case <-s.done:
	}
}

// call schedules fn and waits for its result. This is the request/response
// path: the bridge handler and the MCP tools block here while the scheduler
// runs the operation between other tasks.
func (s *Session) call(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	type result struct {
		v   any
		err error
	}
	ch := make(chan result, 1)
	select {
	case s.tasks <- func(tctx context.Context) {
		v, err := fn(tctx)
		ch <- result{v, err}
	}:
	case <-s.done:
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// start runs the session's opening sequence on the scheduler: load the
// persisted set, run the immediate restoration pass, and arm the delayed
// retry pass.
func (s *Session) start() {
	s.do(func(ctx context.Context) {
		marks, tier, err := s.engine.gateway.Load(ctx, s.identity)
		if err != nil {
			// Not fatal: the session opens with an empty set and the next
			// save reseeds the cache.
			s.engine.logger.Warn("engine: load failed, starting empty",
				"identity", s.identity, "error", err)
		} else if err := s.set.Replace(marks); err != nil {
			s.engine.logger.Warn("engine: persisted set rejected",
				"identity", s.identity, "error", err)
		} else {
			s.engine.logger.Info("engine: session open",
				"identity", s.identity, "marks", s.set.Len(), "tier", tier)
		}
		s.pass(ctx)
	})
	s.secondPass = time.AfterFunc(s.engine.cfg.SecondPassDelay, func() {
		s.do(s.pass)
	})
}

// pass runs one restoration pass and reports it to the origin registry and
// the control surface. Always runs on the scheduler goroutine.
func (s *Session) pass(ctx context.Context) {
	rep := s.engine.coord.Pass(ctx, s.doc, s.set)
	if s.engine.registry != nil {
		if err := s.engine.registry.ReportPass(ctx, s.doc.URL, rep); err != nil {
			s.engine.logger.Warn("engine: pass report failed",
				"identity", s.identity, "error", err)
		}
	}
	s.pushSummary()
}

// externalSync reloads the set from the persistence tiers and runs a pass.
// The watcher schedules this when the cache changes under the session; the
// cache always holds at least the session's own state, so a reload after a
// local save replaces the set with itself.
func (s *Session) externalSync(ctx context.Context) {
	marks, _, err := s.engine.gateway.Load(ctx, s.identity)
	if err != nil {
		s.engine.logger.Warn("engine: external sync load failed",
			"identity", s.identity, "error", err)
		return
	}
	if err := s.set.Replace(marks); err != nil {
		s.engine.logger.Warn("engine: external sync set rejected",
			"identity", s.identity, "error", err)
		return
	}
	s.pass(ctx)
}

// Rekey re-points the session at doc when its identity differs from the
// session's. The host calls this on in-place navigation (history API); a
// same-identity document is a no-op.
func (s *Session) Rekey(doc *page.Doc) error {
	identity, err := page.Identity(doc.URL)
	if err != nil {
		return fmt.Errorf("rekey: %w", err)
	}
	s.rekey(doc, identity)
	return nil
}

// rekey re-points the session at a new document under a new identity: the
// old set is flushed, the tree and set are swapped, and the opening pass
// sequence runs again. Used when the host navigates in place.
func (s *Session) rekey(doc *page.Doc, identity string) {
	s.do(func(ctx context.Context) {
		if identity == s.identity {
			return
		}
		if _, err := s.engine.gateway.Flush(ctx, s.identity); err != nil {
			s.engine.logger.Warn("engine: flush on rekey failed",
				"identity", s.identity, "error", err)
		}
		old := s.identity
		s.engine.remapSession(s, old, identity)
		s.identity = identity
		s.doc = doc
		s.set = mark.NewSet(identity)
		s.machine.SetMode(s.doc, mode.Inactive)

		marks, _, err := s.engine.gateway.Load(ctx, identity)
		if err != nil {
			s.engine.logger.Warn("engine: load after rekey failed",
				"identity", identity, "error", err)
		} else if err := s.set.Replace(marks); err != nil {
			s.engine.logger.Warn("engine: persisted set rejected",
				"identity", identity, "error", err)
		}
		s.engine.logger.Info("engine: session rekeyed", "from", old, "to", identity)
		s.pass(ctx)
	})
	if s.secondPass != nil {
		s.secondPass.Stop()
	}
	s.secondPass = time.AfterFunc(s.engine.cfg.SecondPassDelay, func() {
		s.do(s.pass)
	})
}

// attachHost binds the notification push target. Nil detaches.
func (s *Session) attachHost(fn func(*bridge.Message) error) {
	s.hostMu.Lock()
	s.host = fn
	s.hostMu.Unlock()
}

// push sends a notification to the host, if one is attached. Push failures
// are logged, never propagated: a gone host does not fail the operation
// that triggered the notification.
func (s *Session) push(msg *bridge.Message) {
	s.hostMu.Lock()
	fn := s.host
	s.hostMu.Unlock()
	if fn == nil {
		return
	}
	if err := fn(msg); err != nil {
		s.engine.logger.Debug("engine: notification dropped",
			"identity", s.identity, "type", msg.Type, "error", err)
	}
}

func (s *Session) pushSummary() {
	s.push(bridge.NewNotification(bridge.TypeSummary, s.status()))
}

// status builds the control-surface status payload. Scheduler goroutine
// only.
func (s *Session) status() *bridge.StatusPayload {
	return &bridge.StatusPayload{
		Identity: s.identity,
		Mode:     string(s.machine.State()),
		Disabled: s.machine.Disabled(),
		Summary:  s.set.Summary(),
	}
}

// Close stops the scheduler. Pending tasks are dropped; the shadow copy in
// the cache already holds every committed mutation.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.secondPass != nil {
			s.secondPass.Stop()
		}
		close(s.done)
	})
	return nil
}
