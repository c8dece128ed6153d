// Package scheduler runs the periodic sync and finalize jobs on cron
// schedules. A job never overlaps with itself and a panic in one run
// does not stop later runs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var errPanicked = errors.New("job panicked")

var (
	// ErrUnknownJob is returned for a job name that was never added.
	ErrUnknownJob = errors.New("scheduler: unknown job")

	// ErrJobRunning is returned when a manual trigger overlaps a running job.
	ErrJobRunning = errors.New("scheduler: job already running")
)

// Job is a named unit of scheduled work.
type Job struct {
	Name       string
	Spec       string // standard 5-field cron spec or @every/@hourly descriptor
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// JobStatus reports the history of one job.
type JobStatus struct {
	Name      string    `json:"name"`
	Spec      string    `json:"spec"`
	Running   bool      `json:"running"`
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	NextRun   time.Time `json:"next_run,omitempty"`
}

// Scheduler wraps cron.Cron with per-job bookkeeping.
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]cron.EntryID
	status  map[string]*JobStatus
	onStart []string
}

// New creates a stopped scheduler.
func New(logger *zerolog.Logger) *Scheduler {
	l := log.Logger.With().Str("component", "scheduler").Logger()
	if logger != nil {
		l = *logger
	}
	cl := cronLogger{l}

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  l,
		ctx:     context.Background(),
		entries: make(map[string]cron.EntryID),
		status:  make(map[string]*JobStatus),
	}
}

// Add registers job. Names must be unique.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("scheduler: job needs a name and a run func")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.entries[job.Name]; dup {
		return fmt.Errorf("scheduler: duplicate job %q", job.Name)
	}

	id, err := s.cron.AddJob(job.Spec, cron.FuncJob(func() { s.run(job) }))
	if err != nil {
		return fmt.Errorf("scheduler: job %q: %w", job.Name, err)
	}
	s.entries[job.Name] = id
	s.status[job.Name] = &JobStatus{Name: job.Name, Spec: job.Spec}
	if job.RunOnStart {
		s.onStart = append(s.onStart, job.Name)
	}
	return nil
}

// Start begins firing jobs. ctx is passed to every run.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	onStart := append([]string(nil), s.onStart...)
	s.mu.Unlock()

	s.cron.Start()
	for _, name := range onStart {
		go s.Trigger(name)
	}
}

// Stop stops firing jobs. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Trigger runs the named job now, through the same recover and
// skip-if-running chain as scheduled runs. It blocks until the run ends
// and reports whether the job exists.
func (s *Scheduler) Trigger(name string) bool {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return false
	}

	entry := s.cron.Entry(id)
	if !entry.Valid() {
		return false
	}
	entry.WrappedJob.Run()
	return true
}

// TriggerAsync starts the named job in the background. It returns
// ErrUnknownJob for an unregistered name and ErrJobRunning when a run is
// already in progress.
func (s *Scheduler) TriggerAsync(name string) error {
	s.mu.Lock()
	id, ok := s.entries[name]
	running := ok && s.status[name].Running
	s.mu.Unlock()
	if !ok {
		return ErrUnknownJob
	}
	if running {
		return ErrJobRunning
	}

	entry := s.cron.Entry(id)
	if !entry.Valid() {
		return ErrUnknownJob
	}
	go entry.WrappedJob.Run()
	return nil
}

// Status returns a snapshot of every job, ordered by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.status))
	for name, st := range s.status {
		c := *st
		if e := s.cron.Entry(s.entries[name]); e.Valid() {
			c.NextRun = e.Next
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) run(job Job) {
	s.mu.Lock()
	ctx := s.ctx
	st := s.status[job.Name]
	if ctx.Err() != nil {
		s.mu.Unlock()
		s.logger.Debug().Str("job", job.Name).Msg("scheduler stopped, run skipped")
		return
	}
	st.Running = true
	s.mu.Unlock()

	start := time.Now()
	var err error
	panicked := true
	defer func() {
		if panicked {
			err = errPanicked
		}
		s.mu.Lock()
		st.Running = false
		st.Runs++
		st.LastRun = start
		st.LastError = ""
		if err != nil {
			st.Failures++
			st.LastError = err.Error()
		}
		s.mu.Unlock()
	}()

	// A panic propagates to cron.Recover, which logs it.
	err = job.Run(ctx)
	panicked = false
	if err != nil {
		s.logger.Error().Err(err).Str("job", job.Name).Dur("took", time.Since(start)).Msg("job failed")
		return
	}
	s.logger.Debug().Str("job", job.Name).Dur("took", time.Since(start)).Msg("job finished")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
