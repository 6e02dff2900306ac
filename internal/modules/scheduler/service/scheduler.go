package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"aster_bot/internal/models"
	aster "aster_bot/internal/modules/aster_client/service"
	"aster_bot/internal/modules/config"
	health "aster_bot/internal/modules/health/service"
	strategy "aster_bot/internal/modules/strategy/service"
	trader "aster_bot/internal/modules/trader/service"
	"aster_bot/pkg/logger"
)

// KlinesLimit — сколько свечей тянем на один анализ.
const KlinesLimit = 150

type KlineSource interface {
	Klines(ctx context.Context, q aster.KlinesQuery) ([]models.Kline, error)
}

type Executor interface {
	ExecuteSignal(ctx context.Context, sig models.Signal) (*models.OrderResult, error)
}

type Analyzer interface {
	Name() string
	Analyze(symbol string, klines []models.Kline, interval string) models.Signal
}

// Cadence — частотный режим: свой таймер, свой таймфрейм, свой движок.
type Cadence struct {
	Name     string
	Interval string
	Every    time.Duration
	Engine   Analyzer
}

// CycleReport — итог одного прогона режима по всем символам.
type CycleReport struct {
	Cadence  string
	Started  time.Time
	Duration time.Duration
	Signals  int
	Orders   int
	Err      error
}

type Scheduler struct {
	klines   KlineSource
	exec     Executor
	state    *health.State
	symbols  []string
	cadences []Cadence
	now      func() time.Time

	busy map[string]*atomic.Bool

	mu   sync.Mutex
	last map[string]CycleReport

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(
	cfg *config.Config,
	client *aster.Client,
	engines strategy.Engines,
	tr *trader.Trader,
	state *health.State,
) *Scheduler {
	var cadences []Cadence
	add := func(name string, c config.Cadence) {
		e, ok := engines[name]
		if !ok {
			return
		}
		cadences = append(cadences, Cadence{Name: name, Interval: c.Interval, Every: c.Every(), Engine: e})
	}
	add(strategy.HighFrequency, cfg.Strategies.HighFrequency)
	add(strategy.MediumFrequency, cfg.Strategies.MediumFrequency)
	return New(client, tr, state, cfg.Trading.Symbols, cadences)
}

func New(klines KlineSource, exec Executor, state *health.State, symbols []string, cadences []Cadence) *Scheduler {
	busy := make(map[string]*atomic.Bool, len(cadences))
	for _, c := range cadences {
		busy[c.Name] = &atomic.Bool{}
	}
	return &Scheduler{
		klines:   klines,
		exec:     exec,
		state:    state,
		symbols:  symbols,
		cadences: cadences,
		now:      time.Now,
		busy:     busy,
		last:     map[string]CycleReport{},
	}
}

func (s *Scheduler) Cadences() []Cadence { return s.cadences }

// Start запускает по циклу на режим. Первый прогон — сразу.
func (s *Scheduler) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	for _, c := range s.cadences {
		logger.Info("[SCHED] ▶️ %s: %s every %s, symbols %v", c.Name, c.Interval, c.Every, s.symbols)
		s.wg.Add(1)
		go func(c Cadence) {
			defer s.wg.Done()
			s.loop(ctx, c)
		}(c)
	}
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, c Cadence) {
	every := c.Every
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	s.tick(ctx, c) // сразу при старте

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, c)
		}
	}
}

// tick запускает прогон, если предыдущий уже завершён; иначе тик выбрасывается.
func (s *Scheduler) tick(ctx context.Context, c Cadence) {
	flag := s.busy[c.Name]
	if !flag.CompareAndSwap(false, true) {
		logger.Warn("[SCHED] %s: previous cycle still running, tick dropped", c.Name)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer flag.Store(false)
		_ = s.RunCycle(ctx, c)
	}()
}

// RunCycle анализирует все символы режима. Ошибка по символу не прерывает остальные.
func (s *Scheduler) RunCycle(ctx context.Context, c Cadence) error {
	rep := CycleReport{Cadence: c.Name, Started: s.now()}
	var errs error

	for _, symbol := range s.symbols {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		placed, acted, err := s.runSymbol(ctx, c, symbol)
		if acted {
			rep.Signals++
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s %s: %w", c.Name, symbol, err))
			continue
		}
		if placed {
			rep.Orders++
		}
	}

	rep.Duration = s.now().Sub(rep.Started)
	rep.Err = errs
	if errs != nil {
		logger.Error("[SCHED] %s cycle: %d error(s): %v", c.Name, len(multierr.Errors(errs)), errs)
	} else {
		logger.Info("[SCHED] %s cycle done in %s: signals=%d orders=%d", c.Name, rep.Duration, rep.Signals, rep.Orders)
	}

	s.mu.Lock()
	s.last[c.Name] = rep
	s.mu.Unlock()
	if s.state != nil {
		s.state.TouchCycle(rep.Started, errs != nil)
	}
	return errs
}

func (s *Scheduler) runSymbol(ctx context.Context, c Cadence, symbol string) (placed, acted bool, err error) {
	klines, err := s.klines.Klines(ctx, aster.KlinesQuery{Symbol: symbol, Interval: c.Interval, Limit: KlinesLimit})
	if err != nil {
		return false, false, fmt.Errorf("klines: %w", err)
	}
	sig := c.Engine.Analyze(symbol, klines, c.Interval)
	if sig.Action == models.ActionHold {
		return false, false, nil
	}
	logger.Info("[SCHED] %s %s signal %s (%d): %s", c.Name, symbol, sig.Action, sig.Confidence, sig.Reason)

	res, err := s.exec.ExecuteSignal(ctx, sig)
	if err != nil {
		return false, true, err
	}
	return res != nil, true, nil
}

// LastCycle — отчёт последнего прогона режима.
func (s *Scheduler) LastCycle(cadence string) (CycleReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.last[cadence]
	return r, ok
}

// Status — короткая сводка для /status.
func (s *Scheduler) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cadences) == 0 {
		return "no strategy cadences enabled"
	}
	names := make([]string, 0, len(s.cadences))
	for _, c := range s.cadences {
		names = append(names, c.Name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "symbols: %s\n", strings.Join(s.symbols, ", "))
	for _, n := range names {
		r, ok := s.last[n]
		if !ok {
			fmt.Fprintf(&b, "%s: no cycles yet\n", n)
			continue
		}
		status := "ok"
		if r.Err != nil {
			status = fmt.Sprintf("%d error(s)", len(multierr.Errors(r.Err)))
		}
		fmt.Fprintf(&b, "%s: %s, signals=%d orders=%d, %s\n",
			n, r.Started.Format("15:04:05"), r.Signals, r.Orders, status)
	}
	return strings.TrimRight(b.String(), "\n")
}
