package relay

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"birdrelay/internal/eventbus"
	"birdrelay/internal/feed"
	kit "birdrelay/internal/transport"
	logx "birdrelay/pkg/logx"
)

// SelectCallbackData is the callback data of the select button on relayed posts.
const SelectCallbackData = "relay:select"

const sendTimeout = 30 * time.Second

// Messenger is the part of the transport the delivery loop needs.
type Messenger interface {
	SendPost(ctx context.Context, to kit.ChatTarget, card kit.Card, opt *kit.SendOptions) (kit.MessageRef, error)
	React(ctx context.Context, ref kit.MessageRef, emoji string) error
}

type DeliveryOptions struct {
	// Pacing is waited after every post.
	Pacing time.Duration
	// AckEmoji is set as a reaction on every sent post; empty disables it.
	AckEmoji string
	Color    int
	// SelectButton attaches a button that copies the post into the select chat.
	SelectButton bool
}

// Report summarizes one delivery run.
type Report struct {
	Total   int  `json:"total"`
	Sent    int  `json:"sent"`
	Failed  int  `json:"failed"`
	Stopped bool `json:"stopped"`
}

// ItemResult is passed to the item hook after each post.
type ItemResult struct {
	Index int // 1-based
	Total int
	Post  feed.Post
	Ref   kit.MessageRef
	Err   error
}

type Deliverer struct {
	msgr Messenger
	opts atomic.Pointer[DeliveryOptions]
	log  logx.Logger
	bus  eventbus.Bus
	hook func(ItemResult)
}

type DelivererOption func(*Deliverer)

func WithBus(b eventbus.Bus) DelivererOption {
	return func(d *Deliverer) {
		if b != nil {
			d.bus = b
		}
	}
}

// WithItemHook registers fn to be called after each post, sent or failed.
func WithItemHook(fn func(ItemResult)) DelivererOption {
	return func(d *Deliverer) { d.hook = fn }
}

func NewDeliverer(m Messenger, opts DeliveryOptions, log logx.Logger, o ...DelivererOption) *Deliverer {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Deliverer{msgr: m, log: log, bus: eventbus.Nop()}
	d.SetOptions(opts)
	for _, fn := range o {
		fn(d)
	}
	return d
}

// SetOptions swaps the options; a running loop picks them up at the next post.
func (d *Deliverer) SetOptions(o DeliveryOptions) {
	if o.Pacing < 0 {
		o.Pacing = 0
	}
	d.opts.Store(&o)
}

func (d *Deliverer) Options() DeliveryOptions { return *d.opts.Load() }

// Deliver sends posts to dest in order.
//
// Before each post it checks stopped and ctx and returns early when either
// says stop. A failed post is logged and counted, and the loop moves on.
// After every post it waits the pacing interval; cancelling ctx ends the wait
// at once. A post whose send has started is always completed.
func (d *Deliverer) Deliver(ctx context.Context, posts []feed.Post, dest kit.ChatTarget, stopped func() bool) Report {
	rep := Report{Total: len(posts)}
	log := d.log.With(logx.String("dest", dest.String()))
	log.Info("iterating through posts", logx.Int("total", len(posts)))

	for i, p := range posts {
		if (stopped != nil && stopped()) || ctx.Err() != nil {
			log.Info("delivery stopped", logx.Int("sent", rep.Sent), logx.Int("left", len(posts)-i))
			rep.Stopped = true
			return rep
		}
		opts := d.Options()
		idx := i + 1
		res := ItemResult{Index: idx, Total: len(posts), Post: p}

		log.Info("attempting to send post",
			logx.String("post_id", p.ID),
			logx.Int("index", idx),
			logx.Int("left", len(posts)-idx),
		)
		res.Ref, res.Err = d.sendOne(ctx, p, idx, len(posts), dest, opts)
		if res.Err != nil {
			rep.Failed++
			log.Warn("error while sending post", logx.String("post_id", p.ID), logx.Err(res.Err))
			d.bus.Publish(eventbus.Event{Type: eventbus.PostFailed, Time: time.Now(), Reason: res.Err.Error()})
		} else {
			rep.Sent++
			d.bus.Publish(eventbus.Event{Type: eventbus.PostDelivered, Time: time.Now()})
		}
		if d.hook != nil {
			d.hook(res)
		}

		if !sleepCtx(ctx, opts.Pacing) {
			log.Debug("pacing wait interrupted")
		}
	}
	log.Info("delivery finished", logx.Int("sent", rep.Sent), logx.Int("failed", rep.Failed))
	return rep
}

func (d *Deliverer) sendOne(ctx context.Context, p feed.Post, idx, total int, dest kit.ChatTarget, opts DeliveryOptions) (ref kit.MessageRef, err error) {
	defer func() {
		if r := recover(); r != nil {
			ref, err = kit.MessageRef{}, fmt.Errorf("panic while sending post %d: %v", idx, r)
		}
	}()
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	var so *kit.SendOptions
	if opts.SelectButton {
		so = &kit.SendOptions{Buttons: []kit.Button{{Text: "⭐ Select", Data: SelectCallbackData}}}
	}
	ref, err = d.msgr.SendPost(sctx, dest, RenderCard(p, idx, total, opts.Color), so)
	if err != nil {
		return kit.MessageRef{}, err
	}
	if opts.AckEmoji != "" {
		if err := d.msgr.React(sctx, ref, opts.AckEmoji); err != nil {
			d.log.Warn("ack reaction failed", logx.String("post_id", p.ID), logx.Err(err))
		}
	}
	return ref, nil
}

// sleepCtx waits d or until ctx is done. It reports whether the full wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
