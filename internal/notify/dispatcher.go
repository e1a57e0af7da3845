// Package notify delivers per-subscriber search results and highlighted
// copies to chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"gazette_bot/internal/engine"
	"gazette_bot/internal/model"
)

// ErrAlreadyBroadcast is returned by Broadcast when the current edition was
// already delivered to subscribers.
var ErrAlreadyBroadcast = errors.New("edition already broadcast")

// Sender delivers messages to one chat.
// Implementations report delivery failures as *DeliveryError.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, name string, data []byte, caption string) error
}

// DeliveryReason classifies a failed delivery.
type DeliveryReason string

// Delivery failure reasons.
const (
	ReasonUnreachable DeliveryReason = "channel-unreachable"
	ReasonTooLarge    DeliveryReason = "payload-too-large"
)

// DeliveryError is returned by a Sender when a message could not be delivered.
type DeliveryError struct {
	Reason  DeliveryReason
	Blocked bool // the chat blocked the bot or no longer exists
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed (%s): %v", e.Reason, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Engine searches editions and renders highlighted copies.
type Engine interface {
	Refresh(ctx context.Context) (*model.Edition, error)
	Process(ctx context.Context, ed *model.Edition, keywords []string, mode model.Mode) (*engine.Report, error)
}

// Subscribers is the subscriber store as used by broadcasts.
type Subscribers interface {
	ListSubscribers(ctx context.Context, optedInOnly bool) ([]model.Subscriber, error)
	SaveSubscriber(ctx context.Context, sub *model.Subscriber) error
	MarkBroadcast(ctx context.Context, edition int) error
	WasBroadcast(ctx context.Context, edition int) (bool, error)
}

// Options tune delivery.
type Options struct {
	MaxAttachment int64   // bytes; larger copies are omitted
	Workers       int     // subscribers processed in parallel
	RatePerSecond float64 // outbound messages per second across all chats
}

// Outcome is the delivery result for one subscriber.
type Outcome struct {
	ChatID      int64
	Occurrences int
	Attached    bool
	Omitted     bool // a highlighted copy existed but was too large to attach
	Err         error
}

// Dispatcher fans results out to subscribers.
type Dispatcher struct {
	engine  Engine
	sender  Sender
	store   Subscribers
	opts    Options
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates a Dispatcher. Zero options take defaults of 50 MB, 4 workers
// and 20 messages per second.
func New(eng Engine, sender Sender, store Subscribers, opts Options, logger *slog.Logger) *Dispatcher {
	if opts.MaxAttachment <= 0 {
		opts.MaxAttachment = 50 << 20
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 20
	}
	return &Dispatcher{
		engine:  eng,
		sender:  sender,
		store:   store,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1),
		log:     logger,
	}
}

// Notify searches ed for each subscriber's keywords and delivers the summary
// and highlighted copy. A failure for one subscriber never stops the others.
// Outcomes are returned in subscriber order.
func (d *Dispatcher) Notify(ctx context.Context, subs []model.Subscriber, ed *model.Edition, mode model.Mode) []Outcome {
	outcomes := make([]Outcome, len(subs))

	var g errgroup.Group
	g.SetLimit(d.opts.Workers)
	for i, sub := range subs {
		if err := ctx.Err(); err != nil {
			outcomes[i] = Outcome{ChatID: sub.ChatID, Err: err}
			continue
		}
		g.Go(func() error {
			outcomes[i] = d.notifyOne(ctx, sub, ed, mode)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (d *Dispatcher) notifyOne(ctx context.Context, sub model.Subscriber, ed *model.Edition, mode model.Mode) Outcome {
	out := Outcome{ChatID: sub.ChatID}
	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}

	rep, err := d.engine.Process(ctx, ed, sub.Keywords, mode)
	if err != nil {
		out.Err = err
		if ctx.Err() != nil {
			return out
		}
		d.log.Error("Process edition", "chat_id", sub.ChatID, "edition", ed.Number, "error", err)
		if serr := d.send(ctx, func() error {
			return d.sender.SendText(ctx, sub.ChatID, engine.UserMessage(err))
		}); serr != nil {
			d.log.Warn("Send failure message", "chat_id", sub.ChatID, "error", serr)
		}
		return out
	}
	out.Occurrences = rep.Result.Total()

	if err := d.send(ctx, func() error {
		return d.sender.SendText(ctx, sub.ChatID, Summary(rep, mode))
	}); err != nil {
		out.Err = err
		return out
	}
	if rep.Document == nil {
		return out
	}

	if int64(len(rep.Document)) > d.opts.MaxAttachment {
		d.log.Info("Highlighted copy too large, omitting",
			"chat_id", sub.ChatID, "edition", rep.Edition.Number, "size", len(rep.Document))
		out.Omitted = true
		out.Err = d.send(ctx, func() error {
			return d.sender.SendText(ctx, sub.ChatID, OmittedNote(rep))
		})
		return out
	}

	err = d.send(ctx, func() error {
		return d.sender.SendDocument(ctx, sub.ChatID, rep.FileName(), rep.Document, Caption(rep, mode))
	})
	var derr *DeliveryError
	switch {
	case err == nil:
		out.Attached = true
	case errors.As(err, &derr) && derr.Reason == ReasonTooLarge:
		out.Omitted = true
		out.Err = d.send(ctx, func() error {
			return d.sender.SendText(ctx, sub.ChatID, OmittedNote(rep))
		})
	default:
		out.Err = err
	}
	return out
}

// send waits for the outbound rate limiter before calling fn.
func (d *Dispatcher) send(ctx context.Context, fn func() error) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}
	return fn()
}

// Broadcast delivers the current edition to every opted-in subscriber in full
// mode. An edition already broadcast is skipped with ErrAlreadyBroadcast
// unless force is set. Subscribers whose chat blocked the bot are opted out.
func (d *Dispatcher) Broadcast(ctx context.Context, force bool) ([]Outcome, error) {
	subs, err := d.store.ListSubscribers(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}

	ed, err := d.engine.Refresh(ctx)
	if err != nil {
		if ctx.Err() == nil {
			d.failAll(ctx, subs, err)
		}
		return nil, fmt.Errorf("refresh edition: %w", err)
	}

	if !force {
		sent, err := d.store.WasBroadcast(ctx, ed.Number)
		if err != nil {
			return nil, fmt.Errorf("check broadcast: %w", err)
		}
		if sent {
			return nil, ErrAlreadyBroadcast
		}
	}
	if len(subs) == 0 {
		d.log.Warn("No subscribers, broadcast skipped", "edition", ed.Number)
		return nil, nil
	}

	d.log.Info("Broadcasting edition", "edition", ed.Number, "subscribers", len(subs))
	outcomes := d.Notify(ctx, subs, ed, model.ModeFull)
	if err := ctx.Err(); err != nil {
		return outcomes, err
	}

	if err := d.store.MarkBroadcast(ctx, ed.Number); err != nil {
		d.log.Error("Mark broadcast", "edition", ed.Number, "error", err)
	}

	delivered := 0
	for i, out := range outcomes {
		if out.Err == nil {
			delivered++
			continue
		}
		var derr *DeliveryError
		if errors.As(out.Err, &derr) && derr.Blocked {
			d.optOut(ctx, subs[i])
		}
	}
	d.log.Info("Broadcast finished", "edition", ed.Number, "delivered", delivered, "subscribers", len(subs))
	return outcomes, nil
}

func (d *Dispatcher) failAll(ctx context.Context, subs []model.Subscriber, cause error) {
	msg := engine.UserMessage(cause)
	for _, sub := range subs {
		if err := d.send(ctx, func() error { return d.sender.SendText(ctx, sub.ChatID, msg) }); err != nil {
			d.log.Warn("Send failure message", "chat_id", sub.ChatID, "error", err)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (d *Dispatcher) optOut(ctx context.Context, sub model.Subscriber) {
	sub.OptedIn = false
	if err := d.store.SaveSubscriber(ctx, &sub); err != nil {
		d.log.Error("Opt out unreachable chat", "chat_id", sub.ChatID, "error", err)
		return
	}
	d.log.Info("Chat unreachable, opted out", "chat_id", sub.ChatID)
}
