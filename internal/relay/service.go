package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"birdrelay/internal/eventbus"
	"birdrelay/internal/feed"
	"birdrelay/internal/runtime/supervisor"
	"birdrelay/internal/storage"
	kit "birdrelay/internal/transport"
	logx "birdrelay/pkg/logx"
)

const (
	msgNotEnough  = "Didn't find enough tweets"
	msgStopped    = "Stopped previous command"
	msgNotRunning = "Not currently scraping, nothing to stop"
)

var (
	ErrSelectNotConfigured = errors.New("select channel is not configured")
	ErrInvalidHandle       = errors.New("invalid handle")
	ErrInvalidCount        = errors.New("count must be a positive number")
)

// Source picks the posts of a session.
type Source interface {
	SelectBestPosts(ctx context.Context, handle string, count int) ([]feed.Post, error)
	SelectImagePosts(ctx context.Context, handle string, count int) ([]feed.Post, error)
}

// Actor identifies who triggered an action (zero for scheduled runs).
type Actor struct {
	ID       int64
	Username string
}

type ScrapeRequest struct {
	Mode   Mode
	Handle string
	// Count is the number of recent posts to consider; 0 uses the default.
	Count int
	// Origin is the chat the command came from. Zero means the configured
	// scrape chat itself (scheduled runs).
	Origin  kit.ChatTarget
	Actor   Actor
	Trigger string
}

type Deps struct {
	Log      logx.Logger
	Adapter  kit.Adapter
	Store    storage.Settings
	Source   Source
	Bus      eventbus.Bus
	Delivery DeliveryOptions
	// DefaultCount is used when a request leaves Count at 0.
	DefaultCount int
	// Probe checks the source API for /test_client. Optional.
	Probe func(ctx context.Context) (string, error)
}

// Service coordinates the guard, the selector and the delivery loop.
type Service struct {
	log     logx.Logger
	adapter kit.Adapter
	store   storage.Settings
	src     Source
	bus     eventbus.Bus
	probe   func(ctx context.Context) (string, error)

	session      *Session
	deliverer    *Deliverer
	defaultCount atomic.Int64

	sup atomic.Pointer[supervisor.Supervisor]
}

func NewService(d Deps) *Service {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "relay"))
	bus := d.Bus
	if bus == nil {
		bus = eventbus.Nop()
	}
	s := &Service{
		log:     log,
		adapter: d.Adapter,
		store:   d.Store,
		src:     d.Source,
		bus:     bus,
		probe:   d.Probe,
		session: NewSession(),
	}
	s.deliverer = NewDeliverer(d.Adapter, d.Delivery, log, WithBus(bus), WithItemHook(func(r ItemResult) {
		s.session.Progress(r.Err == nil)
	}))
	s.SetDefaultCount(d.DefaultCount)
	return s
}

func (s *Service) Session() *Session { return s.session }

// SetDeliveryOptions applies new delivery options (hot reload).
func (s *Service) SetDeliveryOptions(o DeliveryOptions) { s.deliverer.SetOptions(o) }

func (s *Service) SetDefaultCount(n int) {
	if n <= 0 {
		n = 100
	}
	s.defaultCount.Store(int64(n))
}

func (s *Service) DefaultCount() int { return int(s.defaultCount.Load()) }

// Start creates the supervisor sessions run under.
func (s *Service) Start(ctx context.Context) error {
	sup := supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(s.log),
		supervisor.WithCancelOnError(false),
	)
	s.sup.Store(sup)
	s.log.Info("relay service started")
	return nil
}

// Stop cancels a running session and waits for it to wind down.
func (s *Service) Stop(ctx context.Context) error {
	if s.session.Cancel() {
		s.log.Info("stopping running session for shutdown")
	}
	sup := s.sup.Swap(nil)
	if sup == nil {
		return nil
	}
	sup.Cancel()
	return sup.Wait(ctx)
}

func (s *Service) runner() *supervisor.Supervisor {
	if sup := s.sup.Load(); sup != nil {
		return sup
	}
	// lazily started for callers that skip Start (tests, preview)
	sup := supervisor.NewSupervisor(context.Background(), supervisor.WithLogger(s.log))
	if s.sup.CompareAndSwap(nil, sup) {
		return sup
	}
	sup.Cancel()
	return s.sup.Load()
}

// NormalizeHandle strips a leading "@" and validates the handle.
func NormalizeHandle(h string) (string, error) {
	h = strings.TrimPrefix(strings.TrimSpace(h), "@")
	if h == "" || len(h) > 15 {
		return "", fmt.Errorf("%w: %q", ErrInvalidHandle, h)
	}
	for _, r := range h {
		if !(r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return "", fmt.Errorf("%w: %q", ErrInvalidHandle, h)
		}
	}
	return h, nil
}

func attemptText(mode Mode, handle string, count int) string {
	if mode == ModeImages {
		return fmt.Sprintf("Attempting to scrape @%s's %d last tweets with images", handle, count)
	}
	return fmt.Sprintf("Attempting to scrape the best of @%s's %d last tweets", handle, count)
}

func foundText(mode Mode, handle string, n int) string {
	if mode == ModeImages {
		return fmt.Sprintf("Found %d tweets with images from %s", n, handle)
	}
	return fmt.Sprintf("Found %d tweets from %s.", n, handle)
}

// Scrape answers with a status message, runs the guard and, when it passes,
// starts a session in the background. The returned error is the guard
// rejection (a *Rejection) or a setup failure; session outcomes are reported
// by editing the status message.
func (s *Service) Scrape(ctx context.Context, req ScrapeRequest) error {
	if !req.Mode.Valid() {
		return fmt.Errorf("unknown mode %q", req.Mode)
	}
	handle, err := NormalizeHandle(req.Handle)
	if err != nil {
		return err
	}
	count := req.Count
	if count < 0 {
		return ErrInvalidCount
	}
	if count == 0 {
		count = s.DefaultCount()
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = "command"
	}
	log := s.log.With(logx.String("mode", string(req.Mode)), logx.String("handle", handle), logx.Int("count", count), logx.String("trigger", trigger))
	log.Info("asked to scrape")

	scrape, _, err := storage.GetChat(ctx, s.store, storage.KeyScrapeChannel)
	if err != nil {
		return fmt.Errorf("read scrape channel: %w", err)
	}
	origin := req.Origin
	if origin.IsZero() {
		origin = scrape
	}

	var status kit.MessageRef
	if !origin.IsZero() {
		status, err = s.adapter.SendText(ctx, origin, attemptText(req.Mode, handle, count), nil)
		if err != nil {
			log.Warn("send status failed", logx.Err(err))
		}
	}

	info := SessionInfo{Mode: req.Mode, Handle: handle, Count: count, Dest: scrape, Trigger: trigger}
	sup := s.runner()
	sctx, err := s.session.Begin(sup.Context(), origin, scrape, info)
	if err != nil {
		var rej *Rejection
		if errors.As(err, &rej) {
			log.Info("scrape rejected", logx.String("reason", rej.Reason.Error()))
			s.editStatus(ctx, status, rej.UserMessage())
			s.bus.Publish(eventbus.Event{Type: eventbus.SessionRejected, Time: time.Now(), Mode: string(req.Mode), Reason: rejectionKind(rej)})
		}
		return err
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.SessionStarted, Time: time.Now(), Mode: string(req.Mode), Data: info})

	sup.Go("relay.session", func(context.Context) error {
		s.run(sctx, info, status, req.Actor, log)
		return nil
	})
	return nil
}

func (s *Service) run(ctx context.Context, info SessionInfo, status kit.MessageRef, actor Actor, log logx.Logger) {
	start := time.Now()
	var (
		rep    Report
		runErr error
	)
	defer func() {
		s.session.Finish(rep)
		s.bus.Publish(eventbus.Event{Type: eventbus.SessionFinished, Time: time.Now(), Mode: string(info.Mode), Data: rep})
		s.audit(context.WithoutCancel(ctx), AuditRecord{
			Actor:  actor,
			Chat:   info.Dest,
			Action: "scrape_" + string(info.Mode),
			Target: info.Handle,
			OK:     rep.Sent,
			Fail:   rep.Failed,
			Err:    runErr,
			Took:   time.Since(start),
		})
	}()

	var posts []feed.Post
	switch info.Mode {
	case ModeImages:
		posts, runErr = s.src.SelectImagePosts(ctx, info.Handle, info.Count)
	default:
		posts, runErr = s.src.SelectBestPosts(ctx, info.Handle, info.Count)
	}
	if runErr != nil {
		switch {
		case s.session.Stopped():
			log.Info("stopped while fetching", logx.Err(runErr))
			s.editStatus(ctx, status, msgStopped)
		case feed.IsFetchFailure(runErr):
			log.Warn("fetch failed", logx.Err(runErr))
			s.editStatus(ctx, status, msgNotEnough)
		default:
			log.Error("selection failed", logx.Err(runErr))
			s.editStatus(ctx, status, msgNotEnough)
		}
		s.bus.Publish(eventbus.Event{Type: eventbus.FetchFailed, Time: time.Now(), Mode: string(info.Mode), Reason: fetchKind(runErr)})
		return
	}
	if len(posts) == 0 {
		log.Info("no posts qualified")
		s.editStatus(ctx, status, msgNotEnough)
		s.bus.Publish(eventbus.Event{Type: eventbus.FetchFailed, Time: time.Now(), Mode: string(info.Mode), Reason: "empty"})
		return
	}

	s.session.SetTotal(len(posts))
	s.editStatus(ctx, status, foundText(info.Mode, info.Handle, len(posts)))
	rep = s.deliverer.Deliver(ctx, posts, info.Dest, s.session.Stopped)
}

func (s *Service) editStatus(ctx context.Context, ref kit.MessageRef, text string) {
	if ref.MessageID == 0 {
		return
	}
	if err := s.adapter.EditText(context.WithoutCancel(ctx), ref, text, nil); err != nil {
		s.log.Warn("edit status failed", logx.Err(err))
	}
}

// StopScrape requests the running session to stop and returns the chat answer.
func (s *Service) StopScrape(ctx context.Context, actor Actor, chat kit.ChatTarget) string {
	s.log.Info("asked to stop ongoing session")
	ok := s.session.Cancel()
	var msg string
	if !ok {
		s.log.Info("no session running")
		msg = msgNotRunning
	} else {
		s.log.Info("session stop requested")
		msg = msgStopped
	}
	s.audit(ctx, AuditRecord{Actor: actor, Chat: chat, Action: "stop_scrape", OK: boolInt(ok)})
	return msg
}

// SetChannel stores chat as the scrape or select chat.
func (s *Service) SetChannel(ctx context.Context, key string, chat kit.ChatTarget, actor Actor) error {
	err := storage.SetChat(ctx, s.store, key, chat)
	s.audit(ctx, AuditRecord{Actor: actor, Chat: chat, Action: "set_" + strings.ToLower(key), Target: chat.String(), OK: boolInt(err == nil), Err: err})
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	s.log.Info("channel set", logx.String("key", key), logx.String("chat", chat.String()))
	return nil
}

// Channel reads a configured chat; ok is false when unset.
func (s *Service) Channel(ctx context.Context, key string) (kit.ChatTarget, bool, error) {
	return storage.GetChat(ctx, s.store, key)
}

// Promote copies a relayed post into the select chat. body is the text of
// the message at ref and must parse as a relayed post.
func (s *Service) Promote(ctx context.Context, ref kit.MessageRef, body string, actor Actor) (kit.MessageRef, error) {
	info, err := ParseCardText(body)
	if err != nil {
		return kit.MessageRef{}, err
	}
	dest, ok, err := storage.GetChat(ctx, s.store, storage.KeySelectChannel)
	if err != nil {
		return kit.MessageRef{}, fmt.Errorf("read select channel: %w", err)
	}
	if !ok {
		return kit.MessageRef{}, ErrSelectNotConfigured
	}
	s.log.Info("sending post to select channel", logx.String("link", info.Link), logx.String("dest", dest.String()))
	out, err := s.adapter.CopyMessage(ctx, ref, dest)
	s.audit(ctx, AuditRecord{Actor: actor, Chat: ref.Target(), Action: "select", Target: info.Link, OK: boolInt(err == nil), Err: err})
	if err != nil {
		return kit.MessageRef{}, fmt.Errorf("copy to select channel: %w", err)
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.PostSelected, Time: time.Now()})
	return out, nil
}

// Probe runs the source API check, if configured.
func (s *Service) Probe(ctx context.Context) (string, error) {
	if s.probe == nil {
		return "", errors.New("no probe configured")
	}
	return s.probe(ctx)
}

// Wait blocks until the running session (if any) finishes or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := s.session.Done()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AuditRecord is the service-level view of an audit entry.
type AuditRecord struct {
	Actor  Actor
	Chat   kit.ChatTarget
	Action string
	Target string
	OK     int
	Fail   int
	Err    error
	Took   time.Duration
}

func (s *Service) audit(ctx context.Context, r AuditRecord) {
	if s.store == nil {
		return
	}
	e := storage.AuditEntry{
		At:            time.Now(),
		ActorID:       r.Actor.ID,
		ActorUsername: r.Actor.Username,
		ChatID:        r.Chat.ChatID,
		ThreadID:      r.Chat.ThreadID,
		Action:        r.Action,
		Target:        r.Target,
		OK:            r.OK,
		Fail:          r.Fail,
		TookMS:        r.Took.Milliseconds(),
	}
	if r.Err != nil {
		e.Error = r.Err.Error()
	}
	if err := s.store.AppendAudit(ctx, e); err != nil && !errors.Is(err, storage.ErrDisabled) {
		s.log.Warn("audit append failed", logx.String("action", r.Action), logx.Err(err))
	}
}

func rejectionKind(r *Rejection) string {
	switch {
	case errors.Is(r, ErrBusy):
		return "busy"
	case errors.Is(r, ErrNotConfigured):
		return "not_configured"
	case errors.Is(r, ErrWrongChannel):
		return "wrong_channel"
	}
	return "other"
}

func fetchKind(err error) string {
	switch {
	case errors.Is(err, feed.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, feed.ErrInsufficientPosts):
		return "insufficient"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}
	var fe *feed.FetchError
	if errors.As(err, &fe) {
		return "transport"
	}
	return "other"
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
