package reconcile

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	appconfig "tickflow/config"
	"tickflow/logger"
)

// Stats is a snapshot of reconciliation counters.
type Stats struct {
	TotalChecks     int64
	MismatchCount   int64
	MismatchRate    float64
	LastRefPrice    float64
	LastStreamPrice float64
}

// Reconciler periodically cross-checks the streamed price against an
// independent reference source, and gates order entry on agreement through
// VerifyBeforeOrder. It only ever touches simple shared scalars; the stream
// price arrives through an atomic.
type Reconciler struct {
	symbol          string
	interval        time.Duration
	warnThreshold   float64
	rejectThreshold float64

	source  PriceSource
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *logger.Entry

	streamPriceBits atomic.Uint64

	mu           sync.RWMutex
	totalChecks  int64
	mismatches   int64
	lastRefPrice float64

	wg      sync.WaitGroup
	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewReconciler wires the source behind a rate limiter and a circuit
// breaker so a misbehaving reference endpoint cannot be hammered. The
// symbol is uppercased because the reference REST API rejects the
// lowercase form the stream URL uses.
func NewReconciler(cfg *appconfig.Config, symbol string, source PriceSource) *Reconciler {
	symbol = strings.ToUpper(symbol)
	rps := cfg.Reconcile.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "reference_price",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Reconciler{
		symbol:          symbol,
		interval:        cfg.Reconcile.Interval,
		warnThreshold:   cfg.Reconcile.WarnThreshold,
		rejectThreshold: cfg.Reconcile.RejectThreshold,
		source:          source,
		limiter:         rate.NewLimiter(rate.Limit(rps), 1),
		breaker:         breaker,
		log:             logger.GetLogger().WithComponent("reconciliation").WithFields(logger.Fields{"symbol": symbol}),
	}
}

// Start launches the periodic background check. Safe to call once per run.
func (r *Reconciler) Start(ctx context.Context) error {
	r.runMu.Lock()
	if r.running {
		r.runMu.Unlock()
		return fmt.Errorf("reconciler already running")
	}
	r.running = true
	ctx, r.cancel = context.WithCancel(ctx)
	r.runMu.Unlock()

	r.wg.Add(1)
	go r.loop(ctx)

	r.log.WithFields(logger.Fields{"interval": r.interval.String()}).Info("reconciliation started")
	return nil
}

// Stop cancels the background loop and waits for it to finish. Safe to call
// concurrently with an in-flight fetch; the fetch context is cancelled.
func (r *Reconciler) Stop() {
	r.runMu.Lock()
	if !r.running {
		r.runMu.Unlock()
		return
	}
	r.running = false
	cancel := r.cancel
	r.runMu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	r.log.Info("reconciliation stopped")
}

// UpdateStreamPrice records the last price observed on the stream. Written
// by the pipeline driver, read by the background loop.
func (r *Reconciler) UpdateStreamPrice(price float64) {
	r.streamPriceBits.Store(math.Float64bits(price))
}

func (r *Reconciler) streamPrice() float64 {
	return math.Float64frombits(r.streamPriceBits.Load())
}

func (r *Reconciler) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.checkIntegrity(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// checkIntegrity compares the reference price against the streamed price
// and logs divergence beyond the warning threshold. Non-blocking; failures
// here never affect the pipeline.
func (r *Reconciler) checkIntegrity(ctx context.Context) {
	refPrice, err := r.fetch(ctx)
	if err != nil {
		r.log.WithError(err).Warn("reference price fetch failed")
		return
	}

	r.mu.Lock()
	r.totalChecks++
	r.lastRefPrice = refPrice
	checks := r.totalChecks
	r.mu.Unlock()

	streamPrice := r.streamPrice()
	if streamPrice <= 0 {
		return
	}

	diff := math.Abs(refPrice-streamPrice) / refPrice
	if diff > r.warnThreshold {
		r.mu.Lock()
		r.mismatches++
		r.mu.Unlock()
		r.log.WithFields(logger.Fields{
			"reference": refPrice,
			"stream":    streamPrice,
			"diff_pct":  diff * 100,
		}).Warn("price mismatch detected")
	} else {
		r.log.WithFields(logger.Fields{
			"reference": refPrice,
			"stream":    streamPrice,
		}).Debug("stream price consistent")
	}

	if checks%10 == 0 {
		stats := r.Stats()
		r.log.WithFields(logger.Fields{
			"checks":        stats.TotalChecks,
			"mismatches":    stats.MismatchCount,
			"mismatch_rate": stats.MismatchRate,
		}).Info("reconciliation stats")
	}
}

// VerifyBeforeOrder re-fetches the reference price immediately before acting
// on an entry signal. Fail-closed: any fetch failure rejects, as does
// divergence beyond the reject threshold. Returns the reference price when
// one was obtained.
func (r *Reconciler) VerifyBeforeOrder(ctx context.Context, streamedPrice float64) (bool, float64, error) {
	refPrice, err := r.fetch(ctx)
	if err != nil {
		r.log.WithError(err).Error("cannot verify price, rejecting order")
		return false, 0, err
	}

	r.mu.Lock()
	r.lastRefPrice = refPrice
	r.mu.Unlock()

	diff := math.Abs(refPrice-streamedPrice) / refPrice
	if diff > r.rejectThreshold {
		r.log.WithFields(logger.Fields{
			"stream":    streamedPrice,
			"reference": refPrice,
			"diff_pct":  diff * 100,
		}).Error("price verification failed")
		return false, refPrice, nil
	}

	r.log.WithFields(logger.Fields{
		"reference": refPrice,
		"diff_pct":  diff * 100,
	}).Info("price verified")
	return true, refPrice, nil
}

func (r *Reconciler) fetch(ctx context.Context) (float64, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit wait: %w", err)
	}
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.source.LastPrice(ctx, r.symbol)
	})
	if err != nil {
		return 0, err
	}
	return result.(float64), nil
}

// Stats returns a snapshot of the reconciliation counters.
func (r *Reconciler) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mismatchRate := 0.0
	if r.totalChecks > 0 {
		mismatchRate = float64(r.mismatches) / float64(r.totalChecks)
	}
	return Stats{
		TotalChecks:     r.totalChecks,
		MismatchCount:   r.mismatches,
		MismatchRate:    mismatchRate,
		LastRefPrice:    r.lastRefPrice,
		LastStreamPrice: r.streamPrice(),
	}
}
