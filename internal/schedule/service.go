// Package schedule triggers scrape sessions on cron specs.
//
// Scheduled sessions go through the same guard as chat commands: a run that
// fires while another session is busy is rejected and logged, never queued.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"birdrelay/internal/config"
	"birdrelay/internal/relay"
	logx "birdrelay/pkg/logx"
)

// Scraper starts a scrape session.
type Scraper interface {
	Scrape(ctx context.Context, req relay.ScrapeRequest) error
}

// Entry is a registered job with its next fire time.
type Entry struct {
	Name   string
	Spec   string
	Mode   relay.Mode
	Handle string
	Count  int
	Next   time.Time
}

type job struct {
	cfg  config.ScheduleJob
	spec string
	id   cron.EntryID
}

type Service struct {
	mu      sync.Mutex
	log     logx.Logger
	scraper Scraper
	parser  cron.Parser

	cfg  config.SchedulesConfig
	ctx  context.Context
	c    *cron.Cron
	jobs map[string]*job
}

func New(scraper Scraper, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:     log.With(logx.String("comp", "schedule")),
		scraper: scraper,
		// SecondOptional allows both 5-field and 6-field (with seconds) specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		jobs:   map[string]*job{},
	}
}

// Apply replaces the schedule set. When running, the cron is rebuilt with the
// new jobs and timezone.
func (s *Service) Apply(cfg config.SchedulesConfig) {
	s.mu.Lock()
	s.cfg = cfg
	running := s.ctx != nil
	s.mu.Unlock()
	if running {
		s.rebuild()
	}
}

// Start begins firing jobs. ctx bounds every scheduled scrape.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return
	}
	s.ctx = ctx
	s.mu.Unlock()
	s.rebuild()
}

// Stop halts the cron and waits for running job callbacks (bounded by ctx).
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.ctx = nil
	s.jobs = map[string]*job{}
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Service) rebuild() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		s.c.Stop()
		s.c = nil
	}
	s.jobs = map[string]*job{}
	if s.ctx == nil || !s.cfg.Enabled {
		return
	}

	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(s.cfg.Location()),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
	for _, jc := range s.cfg.Jobs {
		j, err := s.addLocked(c, jc)
		if err != nil {
			s.log.Error("schedule register failed", logx.String("name", jc.Name), logx.String("spec", jc.Spec), logx.Err(err))
			continue
		}
		s.jobs[jc.Name] = j
	}
	c.Start()
	s.c = c
	s.log.Info("schedules applied", logx.Int("jobs", len(s.jobs)), logx.String("tz", c.Location().String()))
}

func (s *Service) addLocked(c *cron.Cron, jc config.ScheduleJob) (*job, error) {
	spec, err := NormalizeSpec(jc.Spec)
	if err != nil {
		return nil, err
	}
	if !relay.Mode(jc.Mode).Valid() {
		return nil, fmt.Errorf("unknown mode %q", jc.Mode)
	}
	j := &job{cfg: jc, spec: spec}
	j.id, err = c.AddFunc(spec, func() { s.fire(j.cfg) })
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (s *Service) fire(jc config.ScheduleJob) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return
	}
	log := s.log.With(logx.String("job", jc.Name), logx.String("handle", jc.Handle))
	log.Info("scheduled scrape firing", logx.String("mode", jc.Mode))
	err := s.scraper.Scrape(ctx, relay.ScrapeRequest{
		Mode:    relay.Mode(jc.Mode),
		Handle:  jc.Handle,
		Count:   jc.Count,
		Trigger: "schedule:" + jc.Name,
	})
	var rej *relay.Rejection
	switch {
	case err == nil:
	case errors.As(err, &rej):
		log.Info("scheduled scrape skipped", logx.String("reason", rej.Reason.Error()))
	default:
		log.Warn("scheduled scrape failed", logx.Err(err))
	}
}

// RunNow fires a configured job immediately, outside its schedule.
func (s *Service) RunNow(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown schedule %q", name)
	}
	s.fire(j.cfg)
	return nil
}

// Entries lists the registered jobs ordered by next fire time.
func (s *Service) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.jobs))
	for name, j := range s.jobs {
		e := Entry{Name: name, Spec: j.spec, Mode: relay.Mode(j.cfg.Mode), Handle: j.cfg.Handle, Count: j.cfg.Count}
		if s.c != nil {
			e.Next = s.c.Entry(j.id).Next
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Next.Equal(out[k].Next) {
			return out[i].Name < out[k].Name
		}
		return out[i].Next.Before(out[k].Next)
	})
	return out
}

// cronLogger routes cron's own logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(strings.ToLower(k), kv[i+1]))
	}
	return out
}
