// Package round owns the single process-wide crash round state machine:
// idle -> countdown -> launch -> crashed -> idle, advanced by one ticker
// goroutine. All round fields live behind one mutex so a Snapshot is
// always a consistent view, never a half-transitioned round.
package round

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseCountdown Phase = "countdown"
	PhaseLaunch    Phase = "launch"
	PhaseCrashed   Phase = "crashed"
)

// Snapshot is the read projection of the current round. Side-effect free,
// safe to request arbitrarily often from any goroutine.
type Snapshot struct {
	ID               int64     `json:"id"`
	Phase            Phase     `json:"phase"`
	Seed             string    `json:"seed"`
	TargetMultiplier float64   `json:"targetMultiplier"`
	LaunchAt         time.Time `json:"launchAt"`
	CrashAt          time.Time `json:"crashAt"`
	ServerNow        time.Time `json:"serverNow"`
	LiveMultiplier   float64   `json:"liveMultiplier"`
}

// Forfeiter settles every bet left unresolved when a round crashes.
// Called exactly once per round, from the tick goroutine.
type Forfeiter interface {
	ForfeitRound(ctx context.Context, roundID int64, seed string, target float64) error
}

type Config struct {
	Countdown time.Duration `env:"ROUND_COUNTDOWN" envDefault:"4s"`
	Cooldown  time.Duration `env:"ROUND_COOLDOWN" envDefault:"3s"`
	Tick      time.Duration `env:"ROUND_TICK" envDefault:"300ms"`
}

type Engine struct {
	cfg     Config
	forfeit Forfeiter
	now     func() time.Time

	mu       sync.Mutex
	id       int64
	phase    Phase
	seed     string
	target   float64
	launchAt time.Time
	crashAt  time.Time
	idleAt   time.Time
}

func New(forfeit Forfeiter, cfg Config) *Engine {
	return &Engine{
		cfg:     cfg,
		forfeit: forfeit,
		now:     time.Now,
		phase:   PhaseIdle,
	}
}

// Run drives the state machine until ctx is canceled. Ticks are strictly
// sequential: a tick that is still settling forfeits delays the next one.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Tick)
	defer ticker.Stop()

	// prime immediately so the first round doesn't wait a full tick
	e.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// crashedRound carries the identity of a round that just crashed out of
// the locked section, so forfeiture runs without holding the mutex.
type crashedRound struct {
	id     int64
	seed   string
	target float64
}

func (e *Engine) tick(ctx context.Context) {
	crashed, ok := e.advance(e.now())
	if !ok {
		return
	}

	err := e.forfeit.ForfeitRound(ctx, crashed.id, crashed.seed, crashed.target)
	if err != nil {
		slog.Error("forfeit round failed", "roundId", crashed.id, "error", err)
	}
}

// advance applies at most one phase transition for the given instant and
// reports whether the round just crashed.
func (e *Engine) advance(now time.Time) (crashedRound, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.phase {
	case PhaseIdle:
		e.generateLocked(now)

	case PhaseCountdown:
		if !now.Before(e.launchAt) {
			e.phase = PhaseLaunch
			e.crashAt = now.Add(time.Duration(TimeToReach(e.target) * float64(time.Second)))
		}

	case PhaseLaunch:
		if !now.Before(e.crashAt) {
			e.phase = PhaseCrashed
			e.idleAt = now.Add(e.cfg.Cooldown)

			return crashedRound{id: e.id, seed: e.seed, target: e.target}, true
		}

	case PhaseCrashed:
		if !now.Before(e.idleAt) {
			e.generateLocked(now)
		}
	}

	return crashedRound{}, false
}

func (e *Engine) generateLocked(now time.Time) {
	e.id++
	e.seed = NewSeed()
	e.target = TargetFromSeed(e.seed)
	e.phase = PhaseCountdown
	e.launchAt = now.Add(e.cfg.Countdown)
	e.crashAt = time.Time{}
}

// Snapshot returns a consistent view of the current round.
func (e *Engine) Snapshot() Snapshot {
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	s := Snapshot{
		ID:               e.id,
		Phase:            e.phase,
		Seed:             e.seed,
		TargetMultiplier: e.target,
		LaunchAt:         e.launchAt,
		CrashAt:          e.crashAt,
		ServerNow:        now,
		LiveMultiplier:   1,
	}

	if e.phase == PhaseLaunch {
		s.LiveMultiplier = Growth(now.Sub(e.launchAt).Seconds())
	}

	return s
}
