package scheduler

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrRunInProgress = errors.New("a run is already in progress")

// JobType records why a run was started
type JobType int

const (
	JobTypeStartup JobType = iota
	JobTypeScheduled
	JobTypeManual
)

// String returns the string representation of a JobType
func (j JobType) String() string {
	switch j {
	case JobTypeStartup:
		return "startup"
	case JobTypeScheduled:
		return "scheduled"
	case JobTypeManual:
		return "manual"
	default:
		return "unknown"
	}
}

// Job is one ingestion run.
type Job func(ctx context.Context) error

// Scheduler runs the job periodically and on demand. Runs never overlap.
type Scheduler struct {
	job          Job
	interval     time.Duration
	runOnStartup bool
	logger       *logrus.Logger
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	jobMutex     sync.Mutex // held for the duration of a run
	startOnce    sync.Once
	stopOnce     sync.Once
}

// NewScheduler creates a new scheduler
func NewScheduler(job Job, interval time.Duration, runOnStartup bool, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		job:          job,
		interval:     interval,
		runOnStartup: runOnStartup,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins the scheduled runs
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.runScheduler()
	})
}

// runScheduler fires the startup run and then one run per interval
func (s *Scheduler) runScheduler() {
	defer s.wg.Done()

	if s.runOnStartup {
		if err := s.launch(JobTypeStartup); err != nil {
			s.logger.WithError(err).Warn("Skipping startup run")
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.launch(JobTypeScheduled); err != nil {
				s.logger.WithError(err).Warn("Skipping scheduled run")
			}
		}
	}
}

// Trigger starts a run now unless one is in progress.
func (s *Scheduler) Trigger() error {
	return s.launch(JobTypeManual)
}

// IsRunning reports whether a run is in progress.
func (s *Scheduler) IsRunning() bool {
	if s.jobMutex.TryLock() {
		s.jobMutex.Unlock()
		return false
	}
	return true
}

func (s *Scheduler) launch(jobType JobType) error {
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}
	if !s.jobMutex.TryLock() {
		return ErrRunInProgress
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.jobMutex.Unlock()
		s.execute(jobType)
	}()
	return nil
}

func (s *Scheduler) execute(jobType JobType) {
	logger := s.logger.WithField("job_type", jobType.String())
	logger.Info("Starting ingestion run")
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("Ingestion run panicked")
		}
	}()

	if err := s.job(s.ctx); err != nil {
		logger.WithError(err).WithField("duration", time.Since(start).String()).Error("Ingestion run failed")
		return
	}
	logger.WithField("duration", time.Since(start).String()).Info("Ingestion run completed")
}

// Stop cancels a run in progress and waits for it to wind down
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}
