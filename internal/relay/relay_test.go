package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"birdrelay/internal/feed"
	"birdrelay/internal/storage"
	kit "birdrelay/internal/transport"
	logx "birdrelay/pkg/logx"
)

var (
	scrapeChat = kit.ChatTarget{ChatID: -1001}
	selectChat = kit.ChatTarget{ChatID: -1002}
	otherChat  = kit.ChatTarget{ChatID: -1003}
)

type fakeAdapter struct {
	mu     sync.Mutex
	nextID int
	texts  map[int]string // message id -> current text
	posts  []kit.Card
	opts   []*kit.SendOptions
	dests  []kit.ChatTarget
	reacts []string
	copies []kit.ChatTarget

	failPost  map[int]bool // 1-based post index
	onPost    func(n int)
	failReact bool
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{texts: map[int]string{}, failPost: map[int]bool{}}
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.texts[f.nextID] = text
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: f.nextID}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.texts[ref.MessageID]; !ok {
		return errors.New("message not found")
	}
	f.texts[ref.MessageID] = text
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, id, text string) error { return nil }

func (f *fakeAdapter) SendPost(ctx context.Context, to kit.ChatTarget, c kit.Card, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	f.posts = append(f.posts, c)
	f.opts = append(f.opts, opt)
	f.dests = append(f.dests, to)
	n := len(f.posts)
	fail := f.failPost[n]
	f.nextID++
	id := f.nextID
	hook := f.onPost
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	if fail {
		return kit.MessageRef{}, fmt.Errorf("send %d failed", n)
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: id}, nil
}

func (f *fakeAdapter) React(ctx context.Context, ref kit.MessageRef, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReact {
		return errors.New("reaction failed")
	}
	f.reacts = append(f.reacts, emoji)
	return nil
}

func (f *fakeAdapter) CopyMessage(ctx context.Context, from kit.MessageRef, to kit.ChatTarget) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies = append(f.copies, to)
	f.nextID++
	return kit.MessageRef{ChatID: to.ChatID, MessageID: f.nextID}, nil
}

func (f *fakeAdapter) text(id int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.texts[id]
}

func (f *fakeAdapter) sentCards() []kit.Card {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kit.Card(nil), f.posts...)
}

type fakeSource struct {
	posts []feed.Post
	err   error
	// gate, when set, blocks selection until closed or ctx is done.
	gate  chan struct{}
	calls atomic.Int32
}

func (s *fakeSource) pick(ctx context.Context) ([]feed.Post, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.posts, s.err
}

func (s *fakeSource) SelectBestPosts(ctx context.Context, handle string, count int) ([]feed.Post, error) {
	return s.pick(ctx)
}

func (s *fakeSource) SelectImagePosts(ctx context.Context, handle string, count int) ([]feed.Post, error) {
	return s.pick(ctx)
}

func testPosts(n int) []feed.Post {
	out := make([]feed.Post, n)
	for i := range out {
		id := fmt.Sprint(100 + i)
		out[i] = feed.Post{
			ID:        id,
			Handle:    "nasa",
			Timestamp: "Mar 01 2023 12:04:05 PM",
			Link:      feed.Permalink("nasa", id),
			Text:      "post " + id,
			Reposts:   i,
			Favorites: 10 * i,
			Replies:   2 * i,
		}
	}
	return out
}

func waitIdle(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("session did not finish: %v", err)
	}
}

// ---- Guard ----

func TestGuardOrder(t *testing.T) {
	tests := []struct {
		name   string
		busy   bool
		scrape kit.ChatTarget
		origin kit.ChatTarget
		want   error
		msg    string
	}{
		{name: "busy wins over everything", busy: true, origin: otherChat, want: ErrBusy, msg: "Still busy working on last command."},
		{name: "unset channel", origin: scrapeChat, want: ErrNotConfigured, msg: "Set the channel first"},
		{name: "wrong channel", scrape: scrapeChat, origin: otherChat, want: ErrWrongChannel, msg: "Wrong channel!"},
		{name: "thread of the scrape chat", scrape: scrapeChat, origin: kit.ChatTarget{ChatID: scrapeChat.ChatID, ThreadID: 7}},
		{name: "ok", scrape: scrapeChat, origin: scrapeChat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession()
			if tt.busy {
				if _, err := s.Begin(context.Background(), scrapeChat, scrapeChat, SessionInfo{}); err != nil {
					t.Fatalf("begin: %v", err)
				}
			}
			err := s.Check(tt.origin, tt.scrape)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected rejection: %v", err)
				}
				return
			}
			var rej *Rejection
			if !errors.As(err, &rej) || !errors.Is(err, tt.want) {
				t.Fatalf("err=%v want %v", err, tt.want)
			}
			if rej.UserMessage() != tt.msg {
				t.Fatalf("message=%q want %q", rej.UserMessage(), tt.msg)
			}
			if s.Busy() != tt.busy {
				t.Fatalf("check changed busy state")
			}
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := NewSession()
	if s.Cancel() {
		t.Fatalf("cancel on idle session reported true")
	}
	if s.Stopped() {
		t.Fatalf("idle cancel set the stop flag")
	}

	ctx, err := s.Begin(context.Background(), scrapeChat, scrapeChat, SessionInfo{Mode: ModeBest, Handle: "nasa"})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := s.Begin(context.Background(), scrapeChat, scrapeChat, SessionInfo{}); !errors.Is(err, ErrBusy) {
		t.Fatalf("second begin err=%v", err)
	}
	if !s.Cancel() || !s.Stopped() {
		t.Fatalf("cancel while busy not recorded")
	}
	select {
	case <-ctx.Done():
	default:
		t.Fatalf("session context not cancelled")
	}
	// idempotent
	if !s.Cancel() {
		t.Fatalf("second cancel while busy reported false")
	}

	s.Finish(Report{Total: 3, Sent: 1, Stopped: true})
	if s.Busy() {
		t.Fatalf("finish did not release the slot")
	}
	snap := s.Snapshot()
	if snap.Last == nil || snap.Last.Handle != "nasa" || !snap.Last.Report.Stopped {
		t.Fatalf("snapshot=%+v", snap)
	}

	if _, err := s.Begin(context.Background(), scrapeChat, scrapeChat, SessionInfo{}); err != nil {
		t.Fatalf("begin after finish: %v", err)
	}
	if s.Stopped() {
		t.Fatalf("begin did not clear the stop flag")
	}
}

func TestConcurrentBeginSingleWinner(t *testing.T) {
	s := NewSession()
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Begin(context.Background(), scrapeChat, scrapeChat, SessionInfo{}); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("wins=%d want 1", wins.Load())
	}
}

// ---- Render ----

func TestRenderCardRoundTrip(t *testing.T) {
	p := testPosts(3)[2]
	p.MediaURL = "https://pbs.example/a.jpg"
	c := RenderCard(p, 2, 7, 0xe67e22)

	if c.Title != "Tweet from nasa at Mar 01 2023 12:04:05 PM" {
		t.Fatalf("title=%q", c.Title)
	}
	if c.Footer != "Users gave this tweet 2 retweets, 20 likes, and 4 replies. (Tweet 2/7)" {
		t.Fatalf("footer=%q", c.Footer)
	}
	if c.ImageURL != p.MediaURL || c.URL != p.Link || c.Color != 0xe67e22 {
		t.Fatalf("card=%+v", c)
	}

	info, err := ParseCard(c)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := CardInfo{Handle: "nasa", Timestamp: p.Timestamp, Link: p.Link, Reposts: 2, Favorites: 20, Replies: 4, Index: 2, Total: 7}
	if info != want {
		t.Fatalf("info=%+v want %+v", info, want)
	}
}

func TestParseCardText(t *testing.T) {
	p := testPosts(2)[1]
	c := RenderCard(p, 1, 1, 0)
	text := "🟧 " + c.Title + "\n\n" + c.Description + "\n\n" + c.Footer + "\n🔗 " + c.URL

	info, err := ParseCardText(text)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.Handle != "nasa" || info.Timestamp != p.Timestamp || info.Link != p.Link || info.Favorites != 10 {
		t.Fatalf("info=%+v", info)
	}

	for _, bad := range []string{"", "hello", c.Title + "\n" + c.URL, c.Title + "\n" + c.Footer} {
		if _, err := ParseCardText(bad); !errors.Is(err, ErrNotRelayedPost) {
			t.Fatalf("ParseCardText(%q) err=%v", bad, err)
		}
	}
}

// ---- Delivery ----

func TestDeliverSendsInOrderAndAcks(t *testing.T) {
	ad := newFakeAdapter()
	d := NewDeliverer(ad, DeliveryOptions{AckEmoji: "👍", Color: 0xe67e22, SelectButton: true}, logx.Nop())

	rep := d.Deliver(context.Background(), testPosts(3), scrapeChat, nil)
	if rep != (Report{Total: 3, Sent: 3}) {
		t.Fatalf("report=%+v", rep)
	}
	cards := ad.sentCards()
	for i, c := range cards {
		if want := fmt.Sprintf("(Tweet %d/3)", i+1); !strings.HasSuffix(c.Footer, want) {
			t.Fatalf("card %d footer=%q", i, c.Footer)
		}
	}
	if len(ad.reacts) != 3 || ad.reacts[0] != "👍" {
		t.Fatalf("reacts=%v", ad.reacts)
	}
	if o := ad.opts[0]; o == nil || len(o.Buttons) != 1 || o.Buttons[0].Data != SelectCallbackData {
		t.Fatalf("select button missing: %+v", o)
	}
	for _, dst := range ad.dests {
		if dst != scrapeChat {
			t.Fatalf("sent to %v", dst)
		}
	}
}

func TestDeliverFailureIsolation(t *testing.T) {
	ad := newFakeAdapter()
	ad.failPost[2] = true
	ad.failReact = true
	var hooked []int
	d := NewDeliverer(ad, DeliveryOptions{AckEmoji: "👍"}, logx.Nop(), WithItemHook(func(r ItemResult) {
		if r.Err != nil {
			hooked = append(hooked, -r.Index)
		} else {
			hooked = append(hooked, r.Index)
		}
	}))

	rep := d.Deliver(context.Background(), testPosts(4), scrapeChat, nil)
	if rep != (Report{Total: 4, Sent: 3, Failed: 1}) {
		t.Fatalf("report=%+v", rep)
	}
	if fmt.Sprint(hooked) != "[1 -2 3 4]" {
		t.Fatalf("hook order=%v", hooked)
	}
}

func TestDeliverRecoversPanickingSend(t *testing.T) {
	ad := newFakeAdapter()
	ad.onPost = func(n int) {
		if n == 2 {
			panic("telegram client blew up")
		}
	}
	var failed []ItemResult
	d := NewDeliverer(ad, DeliveryOptions{AckEmoji: "👍"}, logx.Nop(), WithItemHook(func(r ItemResult) {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}))

	rep := d.Deliver(context.Background(), testPosts(3), scrapeChat, nil)
	if rep != (Report{Total: 3, Sent: 2, Failed: 1}) {
		t.Fatalf("report=%+v", rep)
	}
	if len(ad.sentCards()) != 3 {
		t.Fatalf("attempted %d posts want 3", len(ad.sentCards()))
	}
	if len(failed) != 1 || failed[0].Index != 2 || !strings.Contains(failed[0].Err.Error(), "telegram client blew up") {
		t.Fatalf("failed=%+v", failed)
	}
}

func TestDeliverStopsBeforeNextItem(t *testing.T) {
	for _, k := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("stop_after_%d", k), func(t *testing.T) {
			ad := newFakeAdapter()
			var stop atomic.Bool
			if k == 0 {
				stop.Store(true)
			}
			ad.onPost = func(n int) {
				if n == k {
					stop.Store(true)
				}
			}
			d := NewDeliverer(ad, DeliveryOptions{}, logx.Nop())
			rep := d.Deliver(context.Background(), testPosts(5), scrapeChat, stop.Load)
			if rep.Sent != k || !rep.Stopped || len(ad.sentCards()) != k {
				t.Fatalf("report=%+v sent=%d", rep, len(ad.sentCards()))
			}
		})
	}
}

func TestDeliverPacing(t *testing.T) {
	ad := newFakeAdapter()
	d := NewDeliverer(ad, DeliveryOptions{Pacing: 30 * time.Millisecond}, logx.Nop())

	start := time.Now()
	rep := d.Deliver(context.Background(), testPosts(3), scrapeChat, nil)
	if el := time.Since(start); el < 90*time.Millisecond {
		t.Fatalf("elapsed %s, want at least 3 pacing intervals", el)
	}
	if rep.Sent != 3 {
		t.Fatalf("report=%+v", rep)
	}
}

func TestDeliverCancelInterruptsPacing(t *testing.T) {
	ad := newFakeAdapter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ad.onPost = func(n int) {
		if n == 1 {
			cancel()
		}
	}
	d := NewDeliverer(ad, DeliveryOptions{Pacing: time.Hour}, logx.Nop())

	done := make(chan Report, 1)
	go func() { done <- d.Deliver(ctx, testPosts(3), scrapeChat, nil) }()
	select {
	case rep := <-done:
		// the send in flight when ctx was cancelled still completes
		if rep.Sent != 1 || !rep.Stopped {
			t.Fatalf("report=%+v", rep)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("pacing wait not interrupted")
	}
}

// ---- Service ----

func newTestService(t *testing.T, src *fakeSource) (*Service, *fakeAdapter, *storage.Memory) {
	t.Helper()
	ad := newFakeAdapter()
	store := storage.NewMemory()
	s := NewService(Deps{
		Log:      logx.Nop(),
		Adapter:  ad,
		Store:    store,
		Source:   src,
		Delivery: DeliveryOptions{AckEmoji: "👍"},
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s, ad, store
}

func TestServiceScrapeDelivers(t *testing.T) {
	src := &fakeSource{posts: testPosts(3)}
	s, ad, store := newTestService(t, src)
	ctx := context.Background()
	if err := s.SetChannel(ctx, storage.KeyScrapeChannel, scrapeChat, Actor{ID: 1}); err != nil {
		t.Fatalf("set channel: %v", err)
	}

	if err := s.Scrape(ctx, ScrapeRequest{Mode: ModeBest, Handle: "@nasa", Count: 50, Origin: scrapeChat, Actor: Actor{ID: 1}}); err != nil {
		t.Fatalf("scrape: %v", err)
	}
	waitIdle(t, s)

	if got := ad.text(1); got != "Found 3 tweets from nasa." {
		t.Fatalf("status=%q", got)
	}
	if n := len(ad.sentCards()); n != 3 {
		t.Fatalf("sent %d cards", n)
	}
	snap := s.Session().Snapshot()
	if snap.Busy || snap.Last == nil || snap.Last.Report.Sent != 3 {
		t.Fatalf("snapshot=%+v", snap)
	}

	var found bool
	for _, e := range store.Audit() {
		if e.Action == "scrape_best" && e.Target == "nasa" && e.OK == 3 {
			found = true
		}
	}
	if !found {
		t.Fatalf("audit=%+v", store.Audit())
	}
}

func TestServiceScrapeStatusTexts(t *testing.T) {
	tests := []struct {
		name     string
		mode     Mode
		setChan  bool
		origin   kit.ChatTarget
		srcErr   error
		empty    bool
		wantErr  error
		final    string
		wantSent int
	}{
		{name: "not configured", mode: ModeBest, origin: otherChat, wantErr: ErrNotConfigured, final: "Set the channel first"},
		{name: "wrong channel", mode: ModeImages, setChan: true, origin: otherChat, wantErr: ErrWrongChannel, final: "Wrong channel!"},
		{
			name: "insufficient", mode: ModeImages, setChan: true, origin: scrapeChat,
			srcErr: fmt.Errorf("@nasa: %w", feed.ErrInsufficientPosts), final: "Didn't find enough tweets",
		},
		{
			name: "transport", mode: ModeBest, setChan: true, origin: scrapeChat,
			srcErr: &feed.FetchError{Op: "timeline", Handle: "nasa", Err: errors.New("503")}, final: "Didn't find enough tweets",
		},
		{name: "empty selection", mode: ModeBest, setChan: true, origin: scrapeChat, empty: true, final: "Didn't find enough tweets"},
		{name: "images found", mode: ModeImages, setChan: true, origin: scrapeChat, final: "Found 2 tweets with images from nasa", wantSent: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{posts: testPosts(2), err: tt.srcErr}
			if tt.empty {
				src.posts = []feed.Post{}
			}
			s, ad, _ := newTestService(t, src)
			ctx := context.Background()
			if tt.setChan {
				_ = s.SetChannel(ctx, storage.KeyScrapeChannel, scrapeChat, Actor{})
			}

			err := s.Scrape(ctx, ScrapeRequest{Mode: tt.mode, Handle: "nasa", Count: 20, Origin: tt.origin})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err=%v want %v", err, tt.wantErr)
				}
				if src.calls.Load() != 0 {
					t.Fatalf("source called on rejection")
				}
			} else if err != nil {
				t.Fatalf("scrape: %v", err)
			}
			waitIdle(t, s)

			if got := ad.text(1); got != tt.final {
				t.Fatalf("final status=%q want %q", got, tt.final)
			}
			if n := len(ad.sentCards()); n != tt.wantSent {
				t.Fatalf("sent %d want %d", n, tt.wantSent)
			}
			if s.Session().Busy() {
				t.Fatalf("session still busy")
			}
		})
	}
}

func TestAttemptAndFoundTexts(t *testing.T) {
	if got := attemptText(ModeBest, "nasa", 100); got != "Attempting to scrape the best of @nasa's 100 last tweets" {
		t.Fatalf("best attempt=%q", got)
	}
	if got := attemptText(ModeImages, "nasa", 100); got != "Attempting to scrape @nasa's 100 last tweets with images" {
		t.Fatalf("images attempt=%q", got)
	}
	if got := foundText(ModeBest, "nasa", 4); got != "Found 4 tweets from nasa." {
		t.Fatalf("best found=%q", got)
	}
	if got := foundText(ModeImages, "nasa", 4); got != "Found 4 tweets with images from nasa" {
		t.Fatalf("images found=%q", got)
	}
}

func TestServiceBusyAndStop(t *testing.T) {
	src := &fakeSource{posts: testPosts(3), gate: make(chan struct{})}
	s, ad, _ := newTestService(t, src)
	ctx := context.Background()
	_ = s.SetChannel(ctx, storage.KeyScrapeChannel, scrapeChat, Actor{})

	if msg := s.StopScrape(ctx, Actor{}, scrapeChat); msg != "Not currently scraping, nothing to stop" {
		t.Fatalf("idle stop=%q", msg)
	}

	if err := s.Scrape(ctx, ScrapeRequest{Mode: ModeBest, Handle: "nasa", Origin: scrapeChat}); err != nil {
		t.Fatalf("scrape: %v", err)
	}
	if err := s.Scrape(ctx, ScrapeRequest{Mode: ModeImages, Handle: "esa", Origin: scrapeChat}); !errors.Is(err, ErrBusy) {
		t.Fatalf("second scrape err=%v", err)
	}
	if got := ad.text(2); got != "Still busy working on last command." {
		t.Fatalf("busy status=%q", got)
	}

	if msg := s.StopScrape(ctx, Actor{}, scrapeChat); msg != "Stopped previous command" {
		t.Fatalf("stop=%q", msg)
	}
	waitIdle(t, s)
	if n := len(ad.sentCards()); n != 0 {
		t.Fatalf("sent %d cards after stop", n)
	}
	if got := ad.text(1); got != "Stopped previous command" {
		t.Fatalf("status after stop=%q", got)
	}
}

func TestServiceScheduledRunUsesScrapeChannel(t *testing.T) {
	src := &fakeSource{posts: testPosts(2)}
	s, ad, _ := newTestService(t, src)
	ctx := context.Background()
	_ = s.SetChannel(ctx, storage.KeyScrapeChannel, scrapeChat, Actor{})

	if err := s.Scrape(ctx, ScrapeRequest{Mode: ModeBest, Handle: "nasa", Trigger: "schedule"}); err != nil {
		t.Fatalf("scheduled scrape: %v", err)
	}
	waitIdle(t, s)
	if len(ad.dests) != 2 || ad.dests[0] != scrapeChat {
		t.Fatalf("dests=%v", ad.dests)
	}
	if snap := s.Session().Snapshot(); snap.Last == nil || snap.Last.Report.Sent != 2 {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestServiceRejectsBadInput(t *testing.T) {
	s, _, _ := newTestService(t, &fakeSource{})
	ctx := context.Background()
	if err := s.Scrape(ctx, ScrapeRequest{Mode: ModeBest, Handle: "not a handle"}); !errors.Is(err, ErrInvalidHandle) {
		t.Fatalf("err=%v", err)
	}
	if err := s.Scrape(ctx, ScrapeRequest{Mode: ModeBest, Handle: "nasa", Count: -1}); !errors.Is(err, ErrInvalidCount) {
		t.Fatalf("err=%v", err)
	}
	if err := s.Scrape(ctx, ScrapeRequest{Mode: "all", Handle: "nasa"}); err == nil {
		t.Fatalf("unknown mode accepted")
	}
}

func TestPromote(t *testing.T) {
	s, ad, store := newTestService(t, &fakeSource{})
	ctx := context.Background()
	c := RenderCard(testPosts(1)[0], 1, 1, 0)
	body := c.Title + "\n\n" + c.Description + "\n\n" + c.Footer + "\n" + c.URL
	ref := kit.MessageRef{ChatID: scrapeChat.ChatID, MessageID: 42}

	if _, err := s.Promote(ctx, ref, body, Actor{ID: 1}); !errors.Is(err, ErrSelectNotConfigured) {
		t.Fatalf("err=%v", err)
	}
	_ = s.SetChannel(ctx, storage.KeySelectChannel, selectChat, Actor{ID: 1})
	if _, err := s.Promote(ctx, ref, "just chatting", Actor{ID: 1}); !errors.Is(err, ErrNotRelayedPost) {
		t.Fatalf("err=%v", err)
	}
	if _, err := s.Promote(ctx, ref, body, Actor{ID: 1}); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if len(ad.copies) != 1 || ad.copies[0] != selectChat {
		t.Fatalf("copies=%v", ad.copies)
	}
	var found bool
	for _, e := range store.Audit() {
		if e.Action == "select" && e.Target == c.URL && e.OK == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("audit=%+v", store.Audit())
	}
}

func TestNormalizeHandle(t *testing.T) {
	for in, want := range map[string]string{"@nasa": "nasa", " NASA_gov ": "NASA_gov", "a1": "a1"} {
		got, err := NormalizeHandle(in)
		if err != nil || got != want {
			t.Fatalf("NormalizeHandle(%q)=%q,%v", in, got, err)
		}
	}
	for _, in := range []string{"", "@", "bad-handle", "way_too_long_handle_x"} {
		if _, err := NormalizeHandle(in); !errors.Is(err, ErrInvalidHandle) {
			t.Fatalf("NormalizeHandle(%q) err=%v", in, err)
		}
	}
}

func TestFormatStatus(t *testing.T) {
	if got := FormatStatus(Snapshot{}); !strings.Contains(got, "Idle") {
		t.Fatalf("idle=%q", got)
	}
	got := FormatStatus(Snapshot{Busy: true, Mode: ModeBest, Handle: "nasa", Count: 100, Total: 5, Sent: 2, StartedAt: time.Now(),
		Last: &FinishedState{Mode: ModeImages, Handle: "esa", Report: Report{Total: 3, Sent: 1, Stopped: true}}})
	for _, want := range []string{"@nasa", "2/5 sent", "Last: @esa", "stopped"} {
		if !strings.Contains(got, want) {
			t.Fatalf("status %q missing %q", got, want)
		}
	}
}
