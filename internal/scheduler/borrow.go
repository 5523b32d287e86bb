package scheduler

import (
	"github.com/transferengine/core/internal/engine"
	"github.com/transferengine/core/internal/serverid"
)

// RegisterInteractiveEngine adds an already-connected engine owned by an
// interactive browsing session to the pool as a transient resource: the
// scheduler may dispatch a queued transfer onto it while it sits idle and
// already connected to the exact server that transfer needs, but (unlike
// an engine the scheduler created itself) never claims it generically for
// an unrelated server and never tears it down on its own idle timer. This
// is the exclusive-engine-borrow exception of spec.md §4.6 step 3: when a
// server's max_connections is 1 and the interactive session holds that
// one connection, borrowing it is the only way a queued transfer against
// that server can ever run at all.
//
// The scheduler has no visibility into the interactive session's own
// operations on eng, so it cannot notice on its own when a busy borrow
// candidate goes idle again; the owner of the interactive session is
// responsible for calling TryStartNextTransfer once its own operation on
// eng completes, the same way any other notification-driven caller would
// re-poke the scheduler.
// server is the one the interactive session currently holds eng connected
// to; it is supplied explicitly rather than read from eng.Server() so a
// caller can register an engine the moment it starts connecting, without
// waiting on the asynchronous dial to land first.
func (s *Scheduler) RegisterInteractiveEngine(eng *engine.Engine, protocol serverid.Protocol, server serverid.Server) {
	for _, ed := range s.engines {
		if ed.eng == eng {
			return
		}
	}
	s.engines = append(s.engines, &engineData{
		eng:        eng,
		protocol:   protocol,
		transient:  true,
		lastServer: server,
	})
}

// UnregisterInteractiveEngine drops eng from the pool immediately,
// e.g. because the interactive session closed it itself. A transfer
// currently running on it is left to fail naturally when the engine
// reports disconnection; this call never interrupts live work.
func (s *Scheduler) UnregisterInteractiveEngine(eng *engine.Engine) {
	for i, ed := range s.engines {
		if ed.eng == eng {
			s.engines = append(s.engines[:i], s.engines[i+1:]...)
			return
		}
	}
}

// RequestReturn is how the interactive session asks for its engine back.
// If the engine is idle the hand-back happens immediately (Hooks.EngineReleased
// fires synchronously); if a borrowed transfer is still running on it, the
// engine-data record moves to StateWaitPrimary and freeEngine releases it
// the moment that transfer's current operation completes, ahead of being
// considered for any further dispatch.
func (s *Scheduler) RequestReturn(eng *engine.Engine) {
	for _, ed := range s.engines {
		if ed.eng != eng || !ed.transient {
			continue
		}
		ed.returnRequested = true
		if ed.idle() {
			s.releaseInteractive(ed)
			return
		}
		ed.state = StateWaitPrimary
		return
	}
}

// releaseInteractive removes a transient engine-data record from the pool
// and tells the caller it is free to use again, per spec.md §4.6's
// "engine is returned to the interactive session" close of the borrow.
func (s *Scheduler) releaseInteractive(ed *engineData) {
	for i, cur := range s.engines {
		if cur == ed {
			s.engines = append(s.engines[:i], s.engines[i+1:]...)
			break
		}
	}
	s.hooks.EngineReleased(ed.eng.ID())
}
