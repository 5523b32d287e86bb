package scheduler

import (
	"time"

	"github.com/transferengine/core/internal/config"
)

// shutdownWarning is spec.md §4.6's 15-second user-cancellable window
// before a reboot/shutdown/sleep action actually runs.
const shutdownWarning = 15 * time.Second

// Hooks are the side effects spec.md §4.6's queue-completion actions
// trigger; a consumer embedding this engine in a UI supplies real
// implementations, the scheduler itself knows nothing about desktop
// notifications or OS power state.
type Hooks struct {
	Notify           func(message string)
	RequestAttention func()
	CloseApplication func()
	RunShellCommand  func(command string)
	PlaySound        func()
	PowerAction      func(action config.QueueCompletionAction)
	ShutdownWarning  func(remaining time.Duration) // called once per second while the countdown runs
	EngineReleased   func(engineID string)          // an exclusively-borrowed engine was handed back
}

func defaultHooks() Hooks {
	return Hooks{
		Notify:           func(string) {},
		RequestAttention: func() {},
		CloseApplication: func() {},
		RunShellCommand:  func(string) {},
		PlaySound:        func() {},
		PowerAction:      func(config.QueueCompletionAction) {},
		ShutdownWarning:  func(time.Duration) {},
		EngineReleased:   func(string) {},
	}
}

func (h Hooks) withDefaults() Hooks {
	d := defaultHooks()
	if h.Notify != nil {
		d.Notify = h.Notify
	}
	if h.RequestAttention != nil {
		d.RequestAttention = h.RequestAttention
	}
	if h.CloseApplication != nil {
		d.CloseApplication = h.CloseApplication
	}
	if h.RunShellCommand != nil {
		d.RunShellCommand = h.RunShellCommand
	}
	if h.PlaySound != nil {
		d.PlaySound = h.PlaySound
	}
	if h.PowerAction != nil {
		d.PowerAction = h.PowerAction
	}
	if h.ShutdownWarning != nil {
		d.ShutdownWarning = h.ShutdownWarning
	}
	if h.EngineReleased != nil {
		d.EngineReleased = h.EngineReleased
	}
	return d
}

// ActionBlocker defers the queue-completion action while it is alive,
// RAII-style per spec.md §4.6; release it (typically via defer) to allow
// the action to fire again.
type ActionBlocker struct {
	s        *Scheduler
	released bool
}

// Release ends the block. Safe to call more than once.
func (b *ActionBlocker) Release() {
	if b.released {
		return
	}
	b.released = true
	b.s.blockers--
	if b.s.blockers == 0 {
		b.s.maybeRunCompletionAction()
	}
}

// AcquireActionBlocker defers the completion action until every acquired
// blocker is released.
func (s *Scheduler) AcquireActionBlocker() *ActionBlocker {
	s.blockers++
	return &ActionBlocker{s: s}
}

func (s *Scheduler) runCompletionAction() {
	if s.blockers > 0 {
		return
	}
	switch s.opts.QueueCompletionAction {
	case config.ActionNone:
		return
	case config.ActionDesktopNotify:
		s.hooks.Notify("all transfers complete")
	case config.ActionRequestAttention:
		s.hooks.RequestAttention()
	case config.ActionCloseApplication:
		s.hooks.CloseApplication()
	case config.ActionShellCommand:
		s.hooks.RunShellCommand(s.opts.QueueCompletionCommand)
	case config.ActionPlaySound:
		s.hooks.PlaySound()
	case config.ActionReboot, config.ActionShutdown, config.ActionSleep:
		s.startShutdownCountdown()
	}
}

// startShutdownCountdown runs the cancellable warning, ticking once a
// second, and fires the power action at zero unless CancelShutdown is
// called first.
func (s *Scheduler) startShutdownCountdown() {
	remaining := shutdownWarning
	s.hooks.ShutdownWarning(remaining)
	var tick func()
	tick = func() {
		remaining -= time.Second
		if remaining <= 0 {
			s.shutdownTimer = 0
			s.hasShutdownTimer = false
			s.hooks.PowerAction(s.opts.QueueCompletionAction)
			return
		}
		s.hooks.ShutdownWarning(remaining)
		s.shutdownTimer = s.ctx.Loop.AfterFunc(time.Second, tick)
		s.hasShutdownTimer = true
	}
	s.shutdownTimer = s.ctx.Loop.AfterFunc(time.Second, tick)
	s.hasShutdownTimer = true
}

// CancelShutdown aborts a pending reboot/shutdown/sleep countdown.
func (s *Scheduler) CancelShutdown() {
	if !s.hasShutdownTimer {
		return
	}
	s.ctx.Loop.Cancel(s.shutdownTimer)
	s.hasShutdownTimer = false
}
