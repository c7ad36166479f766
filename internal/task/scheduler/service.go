package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "leaderbot/pkg/logx"
)

type Config struct {
	Timezone string // IANA TZ, e.g. "Asia/Jakarta"; empty means local
}

type Job func(ctx context.Context) error

type jobDef struct {
	name    string
	spec    ParsedSpec
	timeout time.Duration
	run     Job
	entry   cron.EntryID

	runs    atomic.Uint64
	skipped atomic.Uint64
	running atomic.Bool

	mu      sync.Mutex
	lastRun time.Time
	lastDur time.Duration
	lastErr string
}

// JobInfo is a point-in-time view of a registered job.
type JobInfo struct {
	Name     string        `json:"name"`
	Schedule string        `json:"schedule"`
	Next     time.Time     `json:"next"`
	Runs     uint64        `json:"runs"`
	Skipped  uint64        `json:"skipped"`
	Running  bool          `json:"running"`
	LastRun  time.Time     `json:"last_run"`
	LastTook time.Duration `json:"last_took"`
	LastErr  string        `json:"last_err,omitempty"`
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	c    *cron.Cron
	jobs map[string]*jobDef

	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log, jobs: map[string]*jobDef{}}
}

func (s *Service) location() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// Start begins triggering registered jobs. Run contexts derive from ctx.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	loc := s.location()
	s.c = cron.New(cron.WithLocation(loc), cron.WithLogger(cronLogger{log: s.log}))
	for _, d := range s.jobs {
		if err := s.addLocked(d); err != nil {
			s.log.Error("schedule register failed", logx.String("name", d.name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("service started", logx.String("tz", loc.String()), logx.Int("jobs", len(s.jobs)))
}

// Stop stops triggering and waits for in-flight runs until ctx is done, then
// cancels their contexts.
func (s *Service) Stop(ctx context.Context) error {
	start := time.Now()
	s.mu.Lock()
	c, cancel := s.c, s.runCancel
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	var err error
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		err = fmt.Errorf("scheduler: waiting for running jobs: %w", ctx.Err())
	}
	if cancel != nil {
		cancel()
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	return err
}

// Upsert registers job under name, replacing any previous registration.
func (s *Service) Upsert(name, schedule string, timeout time.Duration, job Job) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("scheduler: name required")
	}
	if job == nil {
		return errors.New("scheduler: job required")
	}
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.jobs[name]; ok {
		if s.c != nil {
			s.c.Remove(old.entry)
		}
		delete(s.jobs, name)
	}
	d := &jobDef{name: name, spec: ps, timeout: timeout, run: job}
	s.jobs[name] = d
	if s.c != nil {
		if err := s.addLocked(d); err != nil {
			delete(s.jobs, name)
			return err
		}
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", ps.String()), logx.Duration("timeout", timeout))
	return nil
}

// Remove unregisters name. It reports whether a job was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.jobs[name]
	if !ok {
		return false
	}
	if s.c != nil {
		s.c.Remove(d.entry)
	}
	delete(s.jobs, name)
	return true
}

// Jobs returns registered jobs sorted by name.
func (s *Service) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, d := range s.jobs {
		info := JobInfo{
			Name:     d.name,
			Schedule: d.spec.String(),
			Runs:     d.runs.Load(),
			Skipped:  d.skipped.Load(),
			Running:  d.running.Load(),
		}
		if s.c != nil {
			info.Next = s.c.Entry(d.entry).Next
		}
		d.mu.Lock()
		info.LastRun, info.LastTook, info.LastErr = d.lastRun, d.lastDur, d.lastErr
		d.mu.Unlock()
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Service) addLocked(d *jobDef) error {
	sched, err := d.spec.Schedule()
	if err != nil {
		return err
	}
	cl := cronLogger{log: s.log.With(logx.String("job", d.name))}
	wrapped := cron.NewChain(cron.Recover(cl), skipIfRunning(d, s.log)).Then(cron.FuncJob(func() {
		s.execute(d)
	}))
	d.entry = s.c.Schedule(sched, wrapped)
	return nil
}

// skipIfRunning is cron.SkipIfStillRunning with a per-job skip counter.
func skipIfRunning(d *jobDef, log logx.Logger) cron.JobWrapper {
	return func(j cron.Job) cron.Job {
		return cron.FuncJob(func() {
			if !d.running.CompareAndSwap(false, true) {
				d.skipped.Add(1)
				log.Warn("previous run still in flight, skipping", logx.String("job", d.name))
				return
			}
			defer d.running.Store(false)
			j.Run()
		})
	}
}

func (s *Service) execute(d *jobDef) {
	s.mu.Lock()
	parent := s.runCtx
	s.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	ctx := parent
	cancel := context.CancelFunc(func() {})
	if d.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, d.timeout)
	}
	defer cancel()

	start := time.Now()
	d.runs.Add(1)
	err := d.run(ctx)
	took := time.Since(start)

	d.mu.Lock()
	d.lastRun, d.lastDur = start, took
	d.lastErr = ""
	if err != nil {
		d.lastErr = err.Error()
	}
	d.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("job failed", logx.String("job", d.name), logx.Duration("took", took), logx.Err(err))
		return
	}
	s.log.Debug("job done", logx.String("job", d.name), logx.Duration("took", took))
}

// RunNow executes name synchronously, honouring the overlap guard.
// It reports false when the job is unknown or already running.
func (s *Service) RunNow(name string) bool {
	s.mu.Lock()
	d, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok || !d.running.CompareAndSwap(false, true) {
		return false
	}
	defer d.running.Store(false)
	s.execute(d)
	return true
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
