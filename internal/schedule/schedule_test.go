package schedule

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"birdrelay/internal/config"
	"birdrelay/internal/relay"
	logx "birdrelay/pkg/logx"
)

type fakeScraper struct {
	mu   sync.Mutex
	reqs []relay.ScrapeRequest
	err  error
}

func (f *fakeScraper) Scrape(_ context.Context, req relay.ScrapeRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.err
}

func (f *fakeScraper) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func TestNormalizeSpec(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "0 */6 * * *", want: "0 */6 * * *"},
		{in: "@daily", want: "@daily"},
		{in: "@every 1h", want: "@every 1h"},
		{in: "6h", want: "@every 6h0m0s"},
		{in: "02:30", want: "@every 2h30m0s"},
		{in: "00:00", wantErr: true},
		{in: "01:75", wantErr: true},
		{in: "-5m", wantErr: true},
		{in: "soon", wantErr: true},
		{in: "  ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeSpec(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("got %q, %v want %q", got, err, tt.want)
			}
		})
	}
}

func TestApplyRegistersValidJobs(t *testing.T) {
	sc := &fakeScraper{}
	s := New(sc, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	s.Apply(config.SchedulesConfig{
		Enabled:  true,
		Timezone: "UTC",
		Jobs: []config.ScheduleJob{
			{Name: "nasa", Spec: "@every 1h", Mode: "best", Handle: "nasa", Count: 50},
			{Name: "bad-spec", Spec: "whenever", Mode: "best", Handle: "x"},
			{Name: "bad-mode", Spec: "1h", Mode: "worst", Handle: "x"},
			{Name: "esa", Spec: "0 0 * * *", Mode: "images", Handle: "esa"},
		},
	})
	es := s.Entries()
	if len(es) != 2 {
		t.Fatalf("entries=%+v", es)
	}
	names := es[0].Name + "," + es[1].Name
	if names != "nasa,esa" && names != "esa,nasa" {
		t.Fatalf("names=%s", names)
	}
	for _, e := range es {
		if e.Next.IsZero() {
			t.Fatalf("entry %s has no next run", e.Name)
		}
	}

	s.Apply(config.SchedulesConfig{Enabled: false})
	if es := s.Entries(); len(es) != 0 {
		t.Fatalf("disabled schedules still registered: %+v", es)
	}
}

func TestRunNowScrapesIntoScrapeChannel(t *testing.T) {
	sc := &fakeScraper{}
	s := New(sc, logx.Nop())
	s.Apply(config.SchedulesConfig{Enabled: true, Jobs: []config.ScheduleJob{
		{Name: "nasa", Spec: "@daily", Mode: "images", Handle: "nasa", Count: 40},
	}})
	if err := s.RunNow("nasa"); err == nil {
		t.Fatalf("RunNow before Start should fail")
	}

	s.Start(context.Background())
	defer s.Stop(context.Background())
	if err := s.RunNow("nasa"); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if err := s.RunNow("missing"); err == nil {
		t.Fatalf("expected error for unknown job")
	}
	if sc.count() != 1 {
		t.Fatalf("scrapes=%d", sc.count())
	}
	r := sc.reqs[0]
	if r.Mode != relay.ModeImages || r.Handle != "nasa" || r.Count != 40 || !r.Origin.IsZero() || r.Trigger != "schedule:nasa" {
		t.Fatalf("req=%+v", r)
	}
}

func TestCronFiresJob(t *testing.T) {
	sc := &fakeScraper{err: &relay.Rejection{Reason: relay.ErrBusy}}
	s := New(sc, logx.Nop())
	s.Apply(config.SchedulesConfig{Enabled: true, Jobs: []config.ScheduleJob{
		{Name: "tick", Spec: "* * * * * *", Mode: "best", Handle: "nasa"},
	}})
	s.Start(context.Background())
	defer s.Stop(context.Background())

	deadline := time.Now().Add(3 * time.Second)
	for sc.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("job never fired")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestFormatEntries(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	out := FormatEntries([]Entry{{Name: "nasa", Spec: "@every 1h", Mode: relay.ModeBest, Handle: "nasa", Count: 50, Next: now.Add(90 * time.Second)}}, now)
	for _, want := range []string{"<code>nasa</code>", "best @nasa (50)", "@every 1h", "next in 1m30s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
	if got := FormatEntries(nil, now); !strings.Contains(got, "none") {
		t.Fatalf("empty=%q", got)
	}
}
