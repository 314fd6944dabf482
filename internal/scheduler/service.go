package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/signalhub/keyword-radar/internal/models"
)

// ErrInvalidInterval is returned for fetch intervals outside [1,168] hours
var ErrInvalidInterval = fmt.Errorf("fetch interval must be between 1 and 168 hours")

// ValidateFetchInterval bounds the per-keyword fetch interval to 1-168 hours
func ValidateFetchInterval(hours int) error {
	if hours < 1 || hours > 168 {
		return ErrInvalidInterval
	}
	return nil
}

// Runner executes one ingestion cycle for a claimed keyword
type Runner interface {
	Run(ctx context.Context, keyword models.Keyword, opts CycleOptions) (*models.FetchResult, error)
}

// Status reports the scheduler's current state for the management API
type Status struct {
	Running        bool      `json:"running"`
	ActiveKeywords int       `json:"active_keywords"`
	DueKeywords    int       `json:"due_keywords"`
	LastSweep      time.Time `json:"last_sweep,omitempty"`
	SweepsRun      int       `json:"sweeps_run"`
}

// Service owns the sweep driver and the keyword registry state machine. It is
// an explicit component with its own running/stopped state; Start, Stop and
// RunNow are its only mutators.
type Service struct {
	keywords      KeywordStore
	runner        Runner
	trends        TrendUpdater
	sweepInterval time.Duration
	maxConcurrent int
	defaultHours  int

	cron    *cron.Cron
	entryID cron.EntryID

	mu        sync.Mutex
	running   bool
	lastSweep time.Time
	sweeps    int
	inflight  sync.WaitGroup
}

// NewService creates the scheduler. Sweeps fire every sweepInterval; at most
// maxConcurrent keyword cycles run at a time.
func NewService(keywords KeywordStore, runner Runner, trends TrendUpdater, sweepInterval time.Duration, maxConcurrent, defaultIntervalHours int) *Service {
	if sweepInterval < time.Minute {
		sweepInterval = time.Minute
	}
	if maxConcurrent < 1 {
		maxConcurrent = 3
	}
	if defaultIntervalHours < 1 || defaultIntervalHours > 168 {
		defaultIntervalHours = 24
	}
	return &Service{
		keywords:      keywords,
		runner:        runner,
		trends:        trends,
		sweepInterval: sweepInterval,
		maxConcurrent: maxConcurrent,
		defaultHours:  defaultIntervalHours,
		cron:          cron.New(cron.WithSeconds()),
	}
}

// Start begins periodic sweeps. Starting a running scheduler is a no-op.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	spec := fmt.Sprintf("@every %s", s.sweepInterval)
	entryID, err := s.cron.AddFunc(spec, s.sweep)
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.entryID = entryID

	s.cron.Start()
	s.running = true
	logrus.Infof("Scheduler started, sweeping every %s", s.sweepInterval)
	return nil
}

// Stop halts future sweeps and waits for in-flight cycles to finish
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cron.Remove(s.entryID)
	stopCtx := s.cron.Stop()
	s.running = false
	s.mu.Unlock()

	<-stopCtx.Done()
	s.inflight.Wait()
	logrus.Info("Scheduler stopped")
}

// RunNow forces one immediate sweep without waiting for the timer
func (s *Service) RunNow() {
	go s.sweep()
}

// Status returns the scheduler state and keyword counts
func (s *Service) Status(ctx context.Context) (*Status, error) {
	active, due, err := s.keywords.Counts(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return &Status{
		Running:        s.running,
		ActiveKeywords: active,
		DueKeywords:    due,
		LastSweep:      s.lastSweep,
		SweepsRun:      s.sweeps,
	}, nil
}

// AddKeyword registers or reconfigures a tracked keyword
func (s *Service) AddKeyword(ctx context.Context, term string, intervalHours int, autoFetch bool, channels []string) (*models.Keyword, error) {
	if intervalHours == 0 {
		intervalHours = s.defaultHours
	}
	if err := ValidateFetchInterval(intervalHours); err != nil {
		return nil, err
	}
	return s.keywords.Register(ctx, term, intervalHours, autoFetch, channels)
}

// RemoveKeyword deactivates a keyword; its stored items remain
func (s *Service) RemoveKeyword(ctx context.Context, term string) error {
	return s.keywords.Deactivate(ctx, term)
}

// UpdateInterval validates and persists a new fetch interval, recomputing the
// keyword's next due time.
func (s *Service) UpdateInterval(ctx context.Context, term string, intervalHours int) error {
	if err := ValidateFetchInterval(intervalHours); err != nil {
		return err
	}
	return s.keywords.UpdateInterval(ctx, term, intervalHours)
}

// ListKeywords exposes the registry for the management API
func (s *Service) ListKeywords(ctx context.Context) ([]models.Keyword, error) {
	return s.keywords.ListActive(ctx)
}

// RunCycle runs one synchronous ad-hoc cycle for a keyword, registering it
// first if unknown. Returns storage.ErrKeywordBusy when a cycle for the
// keyword is already in flight.
func (s *Service) RunCycle(ctx context.Context, term string, opts CycleOptions) (*models.FetchResult, error) {
	if _, err := s.keywords.GetByTerm(ctx, term); err != nil {
		if _, regErr := s.keywords.Register(ctx, term, s.defaultHours, false, opts.Channels); regErr != nil {
			return nil, regErr
		}
	}

	keyword, err := s.keywords.Claim(ctx, term)
	if err != nil {
		return nil, err
	}

	return s.executeCycle(ctx, *keyword, opts), nil
}

// sweep claims due keywords and runs their cycles through a bounded pool
func (s *Service) sweep() {
	s.mu.Lock()
	s.lastSweep = time.Now()
	s.sweeps++
	s.mu.Unlock()

	ctx := context.Background()

	claimed, err := s.keywords.ClaimDue(ctx, s.maxConcurrent*2)
	if err != nil {
		logrus.Errorf("Sweep failed to claim due keywords: %v", err)
		return
	}

	if len(claimed) == 0 {
		logrus.Debug("Sweep found no due keywords")
		return
	}

	logrus.Infof("Sweep claimed %d due keywords", len(claimed))

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.maxConcurrent)

	for _, keyword := range claimed {
		wg.Add(1)
		s.inflight.Add(1)
		sem <- struct{}{}
		go func(kw models.Keyword) {
			defer wg.Done()
			defer s.inflight.Done()
			defer func() { <-sem }()

			s.executeCycle(ctx, kw, CycleOptions{IncludeComments: true})
		}(keyword)
	}

	wg.Wait()
	s.recomputeTrending(ctx)
}

// executeCycle runs one claimed cycle and settles the keyword's registry
// state. A panic or fatal error in one cycle never escapes to other keywords.
func (s *Service) executeCycle(ctx context.Context, keyword models.Keyword, opts CycleOptions) *models.FetchResult {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("Cycle for '%s' panicked: %v", keyword.Term, r)
			if err := s.keywords.MarkFailed(ctx, keyword.Term); err != nil {
				logrus.Errorf("Failed to settle panicked cycle for '%s': %v", keyword.Term, err)
			}
		}
	}()

	result, err := s.runner.Run(ctx, keyword, opts)
	if err != nil {
		logrus.Errorf("Cycle for '%s' failed: %v", keyword.Term, err)
		result.Errors = append(result.Errors, err.Error())
		if markErr := s.keywords.MarkFailed(ctx, keyword.Term); markErr != nil {
			logrus.Errorf("Failed to mark keyword '%s' failed: %v", keyword.Term, markErr)
		}
		return result
	}

	if err := s.keywords.MarkCompleted(ctx, keyword.Term); err != nil {
		logrus.Errorf("Failed to mark keyword '%s' completed: %v", keyword.Term, err)
	}

	if s.trends != nil {
		if err := s.trends.RefreshKeyword(ctx, keyword.Term); err != nil {
			logrus.Warnf("Failed to refresh trends for '%s': %v", keyword.Term, err)
		}
		if stats, err := s.trends.Stats(ctx, keyword.Term); err == nil {
			result.Statistics = stats
		}
	}

	return result
}

func (s *Service) recomputeTrending(ctx context.Context) {
	if s.trends == nil {
		return
	}
	if err := s.trends.RecomputeTrending(ctx); err != nil {
		logrus.Warnf("Failed to recompute trending flags: %v", err)
	}
}
