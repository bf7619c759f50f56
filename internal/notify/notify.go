// Package notify evaluates notification policies and dispatches run
// results over the configured channels (email, IRC, webhooks).
//
// The dispatcher separates two questions per target: did the policy
// fire, and did the transport deliver. Both answers are reported so the
// store can record suppressions alongside real deliveries.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tessera-dev/tessera/internal/pipeline"
)

// Event carries everything a channel needs to render and decide.
type Event struct {
	Pipeline   string
	RunID      string
	RunNumber  int64
	Outcome    pipeline.Outcome
	Previous   *pipeline.Outcome // nil on the first run of a pipeline
	DurationMS int64
	Cells      []pipeline.CellResult
}

// Transition reports whether the run's outcome differs from the
// previous run. The first run always counts as a transition.
func (ev Event) Transition() bool {
	return ev.Previous == nil || *ev.Previous != ev.Outcome
}

// Delivery is one per-target dispatch decision.
type Delivery struct {
	Channel string
	Target  string

	// Fired reports the policy decision; Reason explains it either
	// way ("policy always", "outcome unchanged", ...).
	Fired  bool
	Reason string

	// Dispatched reports transport success. It is false whenever
	// Fired is false, and also when the transport failed or was not
	// configured; Err carries the failure.
	Dispatched bool
	Err        error
}

// Mailer delivers one rendered email to a recipient list.
type Mailer interface {
	SendMail(ctx context.Context, to []string, subject string, body []string) error
}

// Messenger delivers rendered lines to one IRC channel target.
type Messenger interface {
	Announce(ctx context.Context, target IRCTarget, lines []string, opts IRCOptions) error
}

// Poster delivers one JSON payload to a webhook URL.
type Poster interface {
	Post(ctx context.Context, url string, body []byte) error
}

// Dispatcher fans a run event out to the channels a descriptor
// configures. Nil transports are tolerated: targets whose channel has
// no transport are recorded as undelivered with ErrNoTransport.
type Dispatcher struct {
	mailer    Mailer
	messenger Messenger
	poster    Poster
	logger    *slog.Logger
}

// ErrNoTransport marks a fired notification whose channel has no
// configured transport (for example email rules without --smtp-addr).
var ErrNoTransport = fmt.Errorf("transport not configured")

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMailer installs the email transport.
func WithMailer(m Mailer) Option {
	return func(d *Dispatcher) { d.mailer = m }
}

// WithMessenger installs the IRC transport.
func WithMessenger(m Messenger) Option {
	return func(d *Dispatcher) { d.messenger = m }
}

// WithPoster installs the webhook transport.
func WithPoster(p Poster) Option {
	return func(d *Dispatcher) { d.poster = p }
}

// WithLogger sets the dispatch logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher creates a dispatcher with the given transports.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch evaluates every configured channel against the event and
// delivers where policy fires. It returns one Delivery per target in
// descriptor order. Transport failures never return an error from
// Dispatch itself; they are reported per target so one dead SMTP
// server cannot hide the IRC result.
func (d *Dispatcher) Dispatch(ctx context.Context, cfg pipeline.Notifications, ev Event) []Delivery {
	var out []Delivery

	if cfg.Email != nil {
		out = append(out, d.dispatchEmail(ctx, cfg.Email, ev)...)
	}
	if cfg.IRC != nil {
		out = append(out, d.dispatchIRC(ctx, cfg.IRC, ev)...)
	}
	if cfg.Webhooks != nil {
		out = append(out, d.dispatchWebhooks(ctx, cfg.Webhooks, ev)...)
	}

	return out
}

func (d *Dispatcher) dispatchEmail(ctx context.Context, cfg *pipeline.EmailNotification, ev Event) []Delivery {
	decision := Decide(policyFor(cfg.OnSuccess, cfg.OnFailure, ev.Outcome), ev)

	deliveries := make([]Delivery, 0, len(cfg.Recipients))
	if !decision.Fire {
		for _, to := range cfg.Recipients {
			deliveries = append(deliveries, Delivery{
				Channel: ChannelEmail, Target: to, Reason: decision.Reason,
			})
		}
		return deliveries
	}

	if d.mailer == nil {
		d.logger.Warn("email notification skipped", "reason", "no transport")
		for _, to := range cfg.Recipients {
			deliveries = append(deliveries, Delivery{
				Channel: ChannelEmail, Target: to,
				Fired: true, Reason: decision.Reason, Err: ErrNoTransport,
			})
		}
		return deliveries
	}

	subject := emailSubject(ev)
	body := emailBody(ev)
	err := d.mailer.SendMail(ctx, cfg.Recipients, subject, body)
	if err != nil {
		d.logger.Error("email notification failed", "error", err)
	}
	for _, to := range cfg.Recipients {
		deliveries = append(deliveries, Delivery{
			Channel: ChannelEmail, Target: to,
			Fired: true, Reason: decision.Reason,
			Dispatched: err == nil, Err: err,
		})
	}
	return deliveries
}

func (d *Dispatcher) dispatchIRC(ctx context.Context, cfg *pipeline.IRCNotification, ev Event) []Delivery {
	decision := Decide(policyFor(cfg.OnSuccess, cfg.OnFailure, ev.Outcome), ev)

	template := cfg.Template
	if len(template) == 0 {
		template = DefaultIRCTemplate
	}
	lines := RenderAll(template, ev)
	opts := IRCOptions{UseNotice: cfg.UseNotice, SkipJoin: cfg.SkipJoin}

	deliveries := make([]Delivery, 0, len(cfg.Channels))
	for _, raw := range cfg.Channels {
		delivery := Delivery{Channel: ChannelIRC, Target: raw, Reason: decision.Reason}
		if !decision.Fire {
			deliveries = append(deliveries, delivery)
			continue
		}
		delivery.Fired = true

		target, err := ParseIRCTarget(raw)
		if err != nil {
			delivery.Err = err
			deliveries = append(deliveries, delivery)
			continue
		}
		if d.messenger == nil {
			d.logger.Warn("irc notification skipped", "reason", "no transport")
			delivery.Err = ErrNoTransport
			deliveries = append(deliveries, delivery)
			continue
		}
		if err := d.messenger.Announce(ctx, target, lines, opts); err != nil {
			d.logger.Error("irc notification failed", "target", raw, "error", err)
			delivery.Err = err
		} else {
			delivery.Dispatched = true
		}
		deliveries = append(deliveries, delivery)
	}
	return deliveries
}

func (d *Dispatcher) dispatchWebhooks(ctx context.Context, cfg *pipeline.WebhookNotification, ev Event) []Delivery {
	decision := Decide(policyFor(cfg.OnSuccess, cfg.OnFailure, ev.Outcome), ev)

	var payload []byte
	if decision.Fire {
		var err error
		payload, err = webhookPayload(ev)
		if err != nil {
			// Payload marshal failure poisons every URL equally.
			deliveries := make([]Delivery, 0, len(cfg.URLs))
			for _, url := range cfg.URLs {
				deliveries = append(deliveries, Delivery{
					Channel: ChannelWebhook, Target: url,
					Fired: true, Reason: decision.Reason, Err: err,
				})
			}
			return deliveries
		}
	}

	deliveries := make([]Delivery, 0, len(cfg.URLs))
	for _, url := range cfg.URLs {
		delivery := Delivery{Channel: ChannelWebhook, Target: url, Reason: decision.Reason}
		if !decision.Fire {
			deliveries = append(deliveries, delivery)
			continue
		}
		delivery.Fired = true

		if d.poster == nil {
			d.logger.Warn("webhook notification skipped", "reason", "no transport")
			delivery.Err = ErrNoTransport
			deliveries = append(deliveries, delivery)
			continue
		}
		if err := d.poster.Post(ctx, url, payload); err != nil {
			d.logger.Error("webhook notification failed", "url", url, "error", err)
			delivery.Err = err
		} else {
			delivery.Dispatched = true
		}
		deliveries = append(deliveries, delivery)
	}
	return deliveries
}

// Channel names as stored in the notifications table.
const (
	ChannelEmail   = "email"
	ChannelIRC     = "irc"
	ChannelWebhook = "webhook"
)
