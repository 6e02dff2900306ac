package service

import (
	"context"
	"os"
	"sync"
	"time"

	"aster_bot/internal/models"
	"aster_bot/pkg/logger"
)

type OrderExecutor interface {
	Execute(ctx context.Context, o models.ManualOrder) (models.ManualPosition, error)
}

// Watcher опрашивает mtime файла очереди и исполняет новые записи.
type Watcher struct {
	queue    *Queue
	exec     OrderExecutor
	interval time.Duration
	now      func() time.Time

	lastMod time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWatcher(q *Queue, exec OrderExecutor, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Watcher{queue: q, exec: exec, interval: interval, now: time.Now}
}

// Scan — одна итерация: если файл изменился, разобрать его.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	st, err := os.Stat(w.queue.Path())
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !st.ModTime().After(w.lastMod) {
		return 0, nil
	}
	w.lastMod = st.ModTime()

	n, err := w.queue.Drain(func(entry map[string]any) {
		source := models.SourceFile
		if s := models.OrderSource(toString(entry["source"])); s == models.SourceCLI {
			source = s
		}
		o, err := DecodeOrder(entry, source, w.now())
		if err != nil {
			logger.Error("[MANUAL] queue entry %v rejected: %v", entry["id"], err)
			entry["error"] = err.Error()
			return
		}
		pos, err := w.exec.Execute(ctx, o)
		if err != nil {
			logger.Error("[MANUAL] queue order %s %s failed: %v", o.Symbol, o.Side, err)
			entry["error"] = err.Error()
			return
		}
		entry["order_id"] = pos.OrderID
	})
	if n > 0 {
		logger.Info("[MANUAL] 📄 processed %d order(s) from %s", n, w.queue.Path())
	}
	return n, err
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func (w *Watcher) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
	logger.Info("[MANUAL] 👀 watching %s every %s", w.queue.Path(), w.interval)
}

func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Watcher) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Scan(ctx); err != nil {
			logger.Error("[MANUAL] watch %s: %v", w.queue.Path(), err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
