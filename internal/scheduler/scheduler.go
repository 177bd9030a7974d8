// Package scheduler runs the maintenance jobs on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"jobpulse/internal/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type JobFunc func(ctx context.Context) error

// Scheduler wraps robfig/cron. A job never overlaps with itself: a tick that
// fires while the previous run is still going is skipped.
type Scheduler struct {
	cron       *cron.Cron
	log        *zap.Logger
	runOnStart bool

	mu      sync.Mutex
	jobs    map[string]cron.EntryID
	startup []func()
	wg      sync.WaitGroup
}

func New(log *zap.Logger, runOnStart bool) *Scheduler {
	log = logger.OrNop(log).Named("scheduler")
	cl := cronLogger{s: log.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		log:        log,
		runOnStart: runOnStart,
		jobs:       map[string]cron.EntryID{},
	}
}

// Add registers fn under name. An empty spec leaves the job disabled.
func (s *Scheduler) Add(ctx context.Context, name string, spec string, fn JobFunc) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		s.log.Info("job disabled", zap.String("job", name))
		return nil
	}

	job := cron.FuncJob(func() {
		s.log.Info("job started", zap.String("job", name))
		if err := fn(ctx); err != nil {
			s.log.Error("job failed", zap.String("job", name), zap.Error(err))
			return
		}
		s.log.Info("job finished", zap.String("job", name))
	})
	// Wrap once so the startup run and ticks share the overlap guard.
	wrapped := cron.NewChain(cron.SkipIfStillRunning(cronLogger{s: s.log.Sugar()})).Then(job)

	id, err := s.cron.AddJob(spec, wrapped)
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}

	s.mu.Lock()
	s.jobs[name] = id
	s.startup = append(s.startup, wrapped.Run)
	s.mu.Unlock()

	s.log.Info("job scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		out = append(out, name)
	}
	return out
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("cron started", zap.Int("jobs", len(s.Jobs())))

	if !s.runOnStart {
		return
	}
	s.mu.Lock()
	runs := append([]func(){}, s.startup...)
	s.mu.Unlock()
	for _, run := range runs {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			run()
		}()
	}
}

// Stop halts new ticks and returns a context done once running jobs return.
func (s *Scheduler) Stop() context.Context {
	cronDone := s.cron.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		cancel()
	}()
	s.log.Info("cron stopped")
	return ctx
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
