package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gold_ledger/internal/apperr"
	"gold_ledger/internal/domain"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Topics pushed to observers
const (
	TopicPriceUpdate = "goldPriceUpdate"
	TopicPriceError  = "goldPriceError"
)

// Defaults
const (
	DefaultInterval    = 30 * time.Second
	DefaultTickTimeout = 15 * time.Second
)

var (
	// ErrNotRunning is returned by Refresh while the scheduler is stopped
	ErrNotRunning = errors.New("price broadcaster is not running")
	// ErrAlreadyRunning is returned by Start on a running scheduler
	ErrAlreadyRunning = errors.New("price broadcaster is already running")
)

// Publisher delivers an event to every observer of topic
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Resolver supplies the rate to broadcast
type Resolver interface {
	GetActiveRate(ctx context.Context, preferLive bool) (*domain.GoldRate, error)
}

// PriceUpdate is the payload of TopicPriceUpdate
type PriceUpdate struct {
	BuyRate   decimal.Decimal `json:"buyRate"`
	SellRate  decimal.Decimal `json:"sellRate"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
}

// PriceError is the payload of TopicPriceError
type PriceError struct {
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Options configure a Scheduler
type Options struct {
	Interval    time.Duration // Tick interval, DefaultInterval when zero
	TickTimeout time.Duration // Bound on a single tick, DefaultTickTimeout when zero
}

// Scheduler periodically refreshes the active rate and pushes it to observers
type Scheduler struct {
	resolver  Resolver
	publisher Publisher
	opts      Options
	logger    logrus.FieldLogger
	now       func() time.Time

	mu     sync.Mutex
	cron   *cron.Cron
	runCtx context.Context
	cancel context.CancelFunc
	// inflight counts broadcasts started outside cron; Add only happens under mu while running
	inflight sync.WaitGroup
}

// New creates a stopped scheduler
func New(resolver Resolver, publisher Publisher, opts Options, logger logrus.FieldLogger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.TickTimeout <= 0 {
		opts.TickTimeout = DefaultTickTimeout
	}
	return &Scheduler{
		resolver:  resolver,
		publisher: publisher,
		opts:      opts,
		logger:    logger.WithField("component", "price_broadcast"),
		now:       time.Now,
	}
}

// Start schedules ticks every Interval and broadcasts once immediately
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cron != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	c := cron.New(cron.WithChain(
		cron.Recover(cron.PrintfLogger(s.logger)),
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.opts.Interval), s.tick); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("schedule price broadcast: %w", err)
	}
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.cron = c
	runCtx := s.runCtx
	s.inflight.Add(1)
	c.Start()
	s.mu.Unlock()
	defer s.inflight.Done()

	s.logger.WithField("interval", s.opts.Interval.String()).Info("Price broadcast started")
	_, _ = s.broadcast(runCtx)
	return nil
}

// Stop cancels in-flight work and waits for the running tick and any refresh to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cron == nil {
		s.mu.Unlock()
		return
	}
	s.cancel()
	done := s.cron.Stop()
	s.cron = nil
	s.mu.Unlock()

	<-done.Done()
	s.inflight.Wait()
	s.logger.Info("Price broadcast stopped")
}

// Running reports whether Start has been called without a matching Stop
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

// Refresh broadcasts now, on behalf of an observer
func (s *Scheduler) Refresh(ctx context.Context) (*PriceUpdate, error) {
	ctx, release, ok := s.enter(ctx)
	if !ok {
		return nil, ErrNotRunning
	}
	defer release()
	return s.broadcast(ctx)
}

// Announce pushes a rate that was just stored, such as an administrator override, without
// consulting the feed
func (s *Scheduler) Announce(ctx context.Context, rate *domain.GoldRate) error {
	ctx, release, ok := s.enter(ctx)
	if !ok {
		return ErrNotRunning
	}
	defer release()
	return s.publisher.Publish(ctx, TopicPriceUpdate, PriceUpdate{
		BuyRate:   rate.BuyRate,
		SellRate:  rate.SellRate,
		Timestamp: s.now().UTC(),
		Source:    rate.Source,
	})
}

// enter registers a broadcast with Stop. The returned context is also cancelled by Stop.
func (s *Scheduler) enter(ctx context.Context) (context.Context, func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return nil, nil, false
	}
	s.inflight.Add(1)
	ctx, cancel := context.WithCancel(ctx)
	unlink := context.AfterFunc(s.runCtx, cancel)
	return ctx, func() {
		unlink()
		cancel()
		s.inflight.Done()
	}, true
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	runCtx := s.runCtx
	s.mu.Unlock()
	if runCtx == nil || runCtx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(runCtx, s.opts.TickTimeout)
	defer cancel()
	_, _ = s.broadcast(ctx)
}

// broadcast publishes the active rate, or an error event when none can be had. It never
// relabels a failure as a price.
func (s *Scheduler) broadcast(ctx context.Context) (*PriceUpdate, error) {
	rate, err := s.resolver.GetActiveRate(ctx, true)
	if errors.Is(ctx.Err(), context.Canceled) {
		// Stopped or abandoned by the caller; nothing goes out
		return nil, ctx.Err()
	}
	if err != nil {
		s.logger.WithError(err).Warn("Gold price broadcast failed")
		event := PriceError{Error: apperr.Message(err), Timestamp: s.now().UTC()}
		if perr := s.publisher.Publish(ctx, TopicPriceError, event); perr != nil {
			s.logger.WithError(perr).Error("Failed to publish price error")
		}
		return nil, err
	}

	update := priceUpdate(rate, s.now())
	if err := s.publisher.Publish(ctx, TopicPriceUpdate, *update); err != nil {
		s.logger.WithError(err).Error("Failed to publish price update")
	}
	return update, nil
}

// priceUpdate describes rate as observers should see it. Only a rate fetched by this lookup
// carries the current time; a stored row keeps its insertion time, and a stored feed row is
// labelled RateSourceStored so it cannot pass for a live quote.
func priceUpdate(rate *domain.GoldRate, now time.Time) *PriceUpdate {
	update := &PriceUpdate{
		BuyRate:   rate.BuyRate,
		SellRate:  rate.SellRate,
		Timestamp: now.UTC(),
		Source:    rate.Source,
	}
	if rate.Fresh {
		return update
	}
	update.Timestamp = rate.CreatedAt.UTC()
	if rate.Source == domain.RateSourceLive {
		update.Source = domain.RateSourceStored
	}
	return update
}
