// CLAUDE:SUMMARY Bridge request dispatch: gestures and commands onto the session scheduler, notifications back.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/net/html"

	"github.com/bakharlabs/blurshield/bridge"
	"github.com/bakharlabs/blurshield/effect"
	"github.com/bakharlabs/blurshield/locator"
	"github.com/bakharlabs/blurshield/mark"
	"github.com/bakharlabs/blurshield/mode"
)

// Handler returns the bridge request handler. Each request is decoded, run
// on the owning session's scheduler goroutine, and answered with a typed
// payload; notifications push back over the same socket. Requests for an
// identity without a session open one lazily through the DocSource.
func (e *Engine) Handler() bridge.Handler {
	return func(ctx context.Context, bs *bridge.Session, req *bridge.Message) *bridge.Message {
		s := e.Session(bs.Identity)
		if s == nil {
			var err error
			s, err = e.openForHost(ctx, bs)
			if err != nil {
				return bridge.ReplyError(req, err)
			}
		}
		s.attachHost(bs.Send)
		return e.dispatch(ctx, s, req)
	}
}

// openForHost opens a session for a connecting host via the DocSource.
func (e *Engine) openForHost(ctx context.Context, bs *bridge.Session) (*Session, error) {
	if e.source == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, bs.Identity)
	}
	doc, err := e.source(ctx, bs.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", bs.URL, err)
	}
	return e.OpenSession(ctx, doc)
}

func (e *Engine) dispatch(ctx context.Context, s *Session, req *bridge.Message) *bridge.Message {
	switch req.Type {
	case bridge.TypeSetMode:
		return s.handleSetMode(ctx, req)
	case bridge.TypeClick:
		return s.handleClick(ctx, req)
	case bridge.TypePress:
		return s.handlePress(ctx, req)
	case bridge.TypeMove:
		return s.handleMove(ctx, req)
	case bridge.TypeRelease:
		return s.handleRelease(ctx, req)
	case bridge.TypeSelect:
		return s.handleSelect(ctx, req)
	case bridge.TypeClearAll:
		return s.handleClearAll(ctx, req)
	case bridge.TypeSaveNow:
		return s.handleSaveNow(ctx, req)
	case bridge.TypeExport:
		return s.handleExport(ctx, req)
	case bridge.TypeStatus:
		return s.handleStatus(ctx, req)
	}
	return bridge.ReplyError(req, fmt.Errorf("unknown request type %q", req.Type))
}

func (s *Session) handleSetMode(ctx context.Context, req *bridge.Message) *bridge.Message {
	var p bridge.SetModePayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return bridge.ReplyError(req, err)
	}
	v, err := s.call(ctx, func(ctx context.Context) (any, error) {
		old := s.machine.State()
		next, err := s.machine.SetMode(s.doc, mode.State(p.Mode))
		if err != nil {
			return nil, err
		}
		return &bridge.ModeChangedPayload{From: string(old), To: string(next)}, nil
	})
	if err != nil {
		return bridge.ReplyError(req, err)
	}
	resp, err := bridge.Reply(req, v)
	if err != nil {
		return bridge.ReplyError(req, err)
	}
	return resp
}

func (s *Session) handleClick(ctx context.Context, req *bridge.Message) *bridge.Message {
	var p bridge.GesturePayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return bridge.ReplyError(req, err)
	}
	v, err := s.call(ctx, func(ctx context.Context) (any, error) {
		node := s.resolveGesture(p.Locator)
		if node == nil {
			return nil, fmt.Errorf("%w: click target not found", effect.ErrInvalidGesture)
		}
		erasing := s.machine.State() == mode.Erase
		mk, err := s.machine.Click(ctx, s.doc, s.set, node)
		if err != nil {
			return nil, err
		}
		if mk == nil {
			return nil, nil
		}
		if erasing {
			s.push(bridge.NewNotification(bridge.TypeRemoved, &bridge.RemovedPayload{MarkID: mk.ID}))
			s.pushSummary()
			return &bridge.RemovedPayload{MarkID: mk.ID}, nil
		}
		s.push(bridge.NewNotification(bridge.TypeCommitted, &bridge.CommittedPayload{Mark: mk}))
		s.pushSummary()
		return &bridge.CommittedPayload{Mark: mk}, nil
	})
	return s.gestureReply(req, v, err)
}

func (s *Session) handlePress(ctx context.Context, req *bridge.Message) *bridge.Message {
	var p bridge.GesturePayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return bridge.ReplyError(req, err)
	}
	v, err := s.call(ctx, func(ctx context.Context) (any, error) {
		return nil, s.machine.Press(s.doc, p.X, p.Y)
	})
	return s.gestureReply(req, v, err)
}

func (s *Session) handleMove(ctx context.Context, req *bridge.Message) *bridge.Message {
	var p bridge.GesturePayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return bridge.ReplyError(req, err)
	}
	v, err := s.call(ctx, func(ctx context.Context) (any, error) {
		return nil, s.machine.Move(s.doc, p.X, p.Y)
	})
	return s.gestureReply(req, v, err)
}

func (s *Session) handleRelease(ctx context.Context, req *bridge.Message) *bridge.Message {
	var p bridge.GesturePayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return bridge.ReplyError(req, err)
	}
	v, err := s.call(ctx, func(ctx context.Context) (any, error) {
		mk, err := s.machine.Release(ctx, s.doc, s.set, p.X, p.Y)
		if err != nil || mk == nil {
			return nil, err
		}
		s.push(bridge.NewNotification(bridge.TypeCommitted, &bridge.CommittedPayload{Mark: mk}))
		s.pushSummary()
		return &bridge.CommittedPayload{Mark: mk}, nil
	})
	return s.gestureReply(req, v, err)
}

func (s *Session) handleSelect(ctx context.Context, req *bridge.Message) *bridge.Message {
	var p bridge.SelectPayload
	if err := json.Unmarshal(req.Payload, &p); err != nil {
		return bridge.ReplyError(req, err)
	}
	v, err := s.call(ctx, func(ctx context.Context) (any, error) {
		sel, err := s.resolveSelection(&p)
		if err != nil {
			return nil, err
		}
		mk, err := s.machine.Select(ctx, s.doc, s.set, sel)
		if err != nil || mk == nil {
			return nil, err
		}
		s.push(bridge.NewNotification(bridge.TypeCommitted, &bridge.CommittedPayload{Mark: mk}))
		s.pushSummary()
		return &bridge.CommittedPayload{Mark: mk}, nil
	})
	return s.gestureReply(req, v, err)
}

func (s *Session) handleClearAll(ctx context.Context, req *bridge.Message) *bridge.Message {
	v, err := s.call(ctx, func(ctx context.Context) (any, error) {
		s.clearAll(ctx)
		s.pushSummary()
		return s.status(), nil
	})
	if err != nil {
		return bridge.ReplyError(req, err)
	}
	resp, rerr := bridge.Reply(req, v)
	if rerr != nil {
		return bridge.ReplyError(req, rerr)
	}
	return resp
}

// clearAll removes every mark's effect from the tree, empties the set, and
// persists the empty set. Scheduler goroutine only.
func (s *Session) clearAll(ctx context.Context) {
	for _, m := range s.set.Snapshot() {
		switch {
		case m.Kind == mark.KindRegion && m.Region != nil:
			s.engine.applier.RemoveRegion(s.doc.Root, *m.Region)
		default:
			if n := effect.FindApplied(s.doc.Root, m.ID); n != nil {
				s.engine.applier.Remove(n)
			}
		}
	}
	s.set.Clear()
	if err := s.engine.gateway.SaveShadow(ctx, s.identity, s.set.Snapshot()); err != nil {
		s.engine.logger.Warn("engine: clear-all save failed",
			"identity", s.identity, "error", err)
	}
}

func (s *Session) handleSaveNow(ctx context.Context, req *bridge.Message) *bridge.Message {
	// Explicit saves are the one persistence path that reports its outcome.
	v, _ := s.call(ctx, func(ctx context.Context) (any, error) {
		queued, err := s.engine.gateway.Flush(ctx, s.identity)
		p := &bridge.SavePayload{Saved: err == nil, Queued: queued}
		if err != nil {
			p.Error = err.Error()
		}
		return p, nil
	})
	resp, err := bridge.Reply(req, v)
	if err != nil {
		return bridge.ReplyError(req, err)
	}
	return resp
}

func (s *Session) handleExport(ctx context.Context, req *bridge.Message) *bridge.Message {
	v, err := s.call(ctx, func(ctx context.Context) (any, error) {
		md, err := s.engine.exporter.Markdown(s.doc, s.set)
		if err != nil {
			return nil, err
		}
		return &bridge.ExportPayload{Markdown: md}, nil
	})
	if err != nil {
		return bridge.ReplyError(req, err)
	}
	resp, rerr := bridge.Reply(req, v)
	if rerr != nil {
		return bridge.ReplyError(req, rerr)
	}
	return resp
}

func (s *Session) handleStatus(ctx context.Context, req *bridge.Message) *bridge.Message {
	v, err := s.call(ctx, func(ctx context.Context) (any, error) {
		return s.status(), nil
	})
	if err != nil {
		return bridge.ReplyError(req, err)
	}
	resp, rerr := bridge.Reply(req, v)
	if rerr != nil {
		return bridge.ReplyError(req, rerr)
	}
	return resp
}

// gestureReply maps gesture outcomes onto the wire. A capability refusal
// additionally pushes the upgrade affordance; a gesture that raced a mode
// switch is dropped without an error reply.
func (s *Session) gestureReply(req *bridge.Message, v any, err error) *bridge.Message {
	switch {
	case errors.Is(err, mode.ErrUpgradeRequired):
		s.push(bridge.NewNotification(bridge.TypeUpgrade, nil))
		return bridge.ReplyError(req, err)
	case errors.Is(err, mode.ErrWrongMode):
		resp, _ := bridge.Reply(req, nil)
		return resp
	case err != nil:
		return bridge.ReplyError(req, err)
	}
	resp, rerr := bridge.Reply(req, v)
	if rerr != nil {
		return bridge.ReplyError(req, rerr)
	}
	return resp
}

// resolveGesture resolves a host-synthesized locator against the session
// tree, relaxing once on miss. Scheduler goroutine only.
func (s *Session) resolveGesture(d *locator.PathDescriptor) *html.Node {
	if d == nil {
		return nil
	}
	if n := locator.Resolve(s.doc.Root, d); n != nil {
		return n
	}
	return locator.Relax(s.doc.Root, d)
}

// resolveSelection turns the wire selection into an effect.Selection over
// the tree's text leaves.
func (s *Session) resolveSelection(p *bridge.SelectPayload) (effect.Selection, error) {
	start := s.resolveGesture(p.Start)
	end := s.resolveGesture(p.End)
	if start == nil || end == nil {
		return effect.Selection{}, fmt.Errorf("%w: selection endpoints not found", effect.ErrInvalidGesture)
	}
	st := firstTextChild(start)
	en := firstTextChild(end)
	if st == nil || en == nil {
		return effect.Selection{}, fmt.Errorf("%w: selection endpoints hold no text", effect.ErrInvalidGesture)
	}
	return effect.Selection{
		Start:       st,
		StartOffset: p.StartOffset,
		End:         en,
		EndOffset:   p.EndOffset,
	}, nil
}

func firstTextChild(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			return c
		}
	}
	return nil
}
