package service

import (
	"sync/atomic"
	"time"
)

// State — живость процесса для /livez, /readyz, /healthz.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	wsClients     atomic.Int64
	lastCycleUnix atomic.Int64 // unix seconds
	cycles        atomic.Int64
	failedCycles  atomic.Int64
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

// WSClientConnected / WSClientGone — счётчик подключений к /ws ручного API.
func (s *State) WSClientConnected() { s.wsClients.Add(1) }
func (s *State) WSClientGone()      { s.wsClients.Add(-1) }
func (s *State) WSClients() int64   { return s.wsClients.Load() }

// TouchCycle отмечает завершённый цикл стратегии.
func (s *State) TouchCycle(t time.Time, failed bool) {
	s.lastCycleUnix.Store(t.Unix())
	s.cycles.Add(1)
	if failed {
		s.failedCycles.Add(1)
	}
}

func (s *State) LastCycle() time.Time {
	u := s.lastCycleUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Cycles() (total, failed int64) { return s.cycles.Load(), s.failedCycles.Load() }

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
