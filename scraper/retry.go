package scraper

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/fbasourcing/go-source-fba/config"
)

// retryManager re-visits failed URLs with capped exponential backoff. One
// manager serves one category crawl; Wait blocks until every scheduled retry
// has run, Stop cancels anything still pending.
type retryManager struct {
	cfg     *config.Config
	metrics *Metrics

	mu           sync.Mutex
	wg           sync.WaitGroup
	attempts     map[string]int
	timers       map[string]*time.Timer
	totalRetries int
	stopped      bool
}

func newRetryManager(cfg *config.Config, metrics *Metrics) *retryManager {
	return &retryManager{
		cfg:      cfg,
		metrics:  metrics,
		attempts: make(map[string]int),
		timers:   make(map[string]*time.Timer),
	}
}

// Schedule queues a retry for url on the given collector. Returns false once
// the per-URL budget is exhausted or the manager is stopped.
func (rm *retryManager) Schedule(collector *colly.Collector, url string) bool {
	if rm.cfg.MaxRetries == 0 || url == "" {
		return false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.stopped {
		return false
	}
	attempt := rm.attempts[url]
	if attempt >= rm.cfg.MaxRetries {
		return false
	}
	attempt++
	rm.attempts[url] = attempt
	rm.totalRetries++
	rm.metrics.IncRetries()

	delay := rm.backoff(attempt)
	if timer, ok := rm.timers[url]; ok {
		if timer.Stop() {
			rm.wg.Done()
		}
	}
	rm.wg.Add(1)
	rm.timers[url] = time.AfterFunc(delay, func() {
		rm.fire(collector, url)
	})
	return true
}

func (rm *retryManager) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	base := rm.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	delay := base * time.Duration(1<<(attempt-1))
	if max := rm.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}

func (rm *retryManager) fire(collector *colly.Collector, url string) {
	defer rm.wg.Done()

	rm.mu.Lock()
	if rm.stopped {
		rm.mu.Unlock()
		return
	}
	delete(rm.timers, url)
	rm.mu.Unlock()

	if err := collector.Visit(url); err != nil {
		slog.Debug("retry visit failed", slog.String("url", url), slog.Any("error", err))
	}
}

// Wait blocks until all scheduled retries have finished, including retries a
// failed retry scheduled in turn.
func (rm *retryManager) Wait() {
	rm.wg.Wait()
}

// Stop cancels pending timers. A timer that already started runs to completion
// and accounts for itself.
func (rm *retryManager) Stop() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.stopped = true
	for url, timer := range rm.timers {
		if timer.Stop() {
			rm.wg.Done()
		}
		delete(rm.timers, url)
	}
}

// TotalRetries reports how many retries were scheduled.
func (rm *retryManager) TotalRetries() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.totalRetries
}
