// Package discord posts log lines and error reports to Discord webhooks.
//
// Webhooks are registered under channel names; SendLog uses the "log"
// channel and SendErrorAlert the "alert" channel unless told otherwise.
// Delivery is asynchronous by default and bounded by a worker limit.
package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/adeilh/corekit/httpx"
	"github.com/adeilh/corekit/timeutil"
)

const (
	ChannelLog   = "log"
	ChannelAlert = "alert"

	DefaultConcurrency = 4
)

var (
	ErrChannelNotRegistered = errors.New("discord: channel not registered")
	ErrClosed               = errors.New("discord: notifier closed")
)

var _ httpx.Alerter = (*Notifier)(nil)

// Notifier delivers messages to registered webhooks.
type Notifier struct {
	client *httpx.Client
	log    zerolog.Logger
	now    timeutil.Clock

	chMu     sync.RWMutex
	channels map[string]string

	poolMu   sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
	pool     errgroup.Group
}

type Option func(*Notifier)

func WithLogger(l zerolog.Logger) Option {
	return func(n *Notifier) { n.log = l }
}

func WithClock(now timeutil.Clock) Option {
	return func(n *Notifier) {
		if now != nil {
			n.now = now
		}
	}
}

// WithHTTPClient replaces the webhook client.
func WithHTTPClient(c *httpx.Client) Option {
	return func(n *Notifier) {
		if c != nil {
			n.client = c
		}
	}
}

// WithConcurrency bounds in-flight asynchronous deliveries.
func WithConcurrency(limit int) Option {
	return func(n *Notifier) {
		if limit > 0 {
			n.pool.SetLimit(limit)
		}
	}
}

func New(opts ...Option) *Notifier {
	n := &Notifier{
		client:   httpx.NewClient(httpx.WithClientTimeout(10 * time.Second)),
		log:      zerolog.Nop(),
		now:      time.Now,
		channels: make(map[string]string),
	}
	n.pool.SetLimit(DefaultConcurrency)
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

// RegisterChannel binds name to a webhook URL, replacing any previous URL.
func (n *Notifier) RegisterChannel(name, webhookURL string) {
	n.chMu.Lock()
	defer n.chMu.Unlock()
	n.channels[name] = webhookURL
}

func (n *Notifier) webhook(name string) (string, bool) {
	n.chMu.RLock()
	defer n.chMu.RUnlock()
	url, ok := n.channels[name]
	return url, ok && url != ""
}

type sendOptions struct {
	channel     string
	synchronous bool
	lenient     bool
}

type SendOption func(*sendOptions)

func WithChannel(name string) SendOption {
	return func(o *sendOptions) { o.channel = name }
}

// Synchronous delivers before returning and reports delivery errors.
func Synchronous() SendOption {
	return func(o *sendOptions) { o.synchronous = true }
}

// Lenient logs an unregistered channel instead of returning
// ErrChannelNotRegistered.
func Lenient() SendOption {
	return func(o *sendOptions) { o.lenient = true }
}

type logPayload struct {
	Content string `json:"content"`
}

// SendLog posts message prefixed with the current IST time.
func (n *Notifier) SendLog(ctx context.Context, message string, opts ...SendOption) error {
	so := n.sendOptions(ChannelLog, opts)
	url, err := n.resolve(so)
	if err != nil || url == "" {
		return err
	}

	stamp := timeutil.InIST(n.now()).Format(timeutil.ISTDisplayLayout)
	payload := logPayload{Content: stamp + " (IST) " + message}

	return n.dispatch(ctx, so, func(ctx context.Context) error {
		resp, err := n.client.Post(ctx, url, payload, nil)
		return checkDelivery(resp, err)
	})
}

// SendErrorAlert uploads a text report for err named error_<trackID>.txt.
func (n *Notifier) SendErrorAlert(ctx context.Context, err error, trackID string, opts ...SendOption) error {
	if err == nil {
		return nil
	}
	so := n.sendOptions(ChannelAlert, opts)
	url, rerr := n.resolve(so)
	if rerr != nil || url == "" {
		return rerr
	}

	report := FormatErrorReport(err, trackID, n.now())
	fileName := "error_" + trackID + ".txt"

	return n.dispatch(ctx, so, func(ctx context.Context) error {
		file := httpx.MultipartFile{
			Field:       "file",
			FileName:    fileName,
			ContentType: "text/plain",
			Reader:      bytes.NewReader(report),
		}
		resp, err := n.client.Post(ctx, url, nil, nil, httpx.WithMultipart(map[string]string{"content": ""}, file))
		return checkDelivery(resp, err)
	})
}

// AlertError reports err on the alert channel without blocking.
func (n *Notifier) AlertError(ctx context.Context, err error, trackID string) {
	if sendErr := n.SendErrorAlert(ctx, err, trackID, Lenient()); sendErr != nil {
		n.log.Error().Err(sendErr).Str("track_id", trackID).Msg("discord alert not queued")
	}
}

// Close stops accepting messages and waits for queued deliveries or ctx.
func (n *Notifier) Close(ctx context.Context) error {
	n.poolMu.Lock()
	n.closed = true
	n.poolMu.Unlock()

	done := make(chan struct{})
	go func() {
		n.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Notifier) sendOptions(channel string, opts []SendOption) sendOptions {
	so := sendOptions{channel: channel}
	for _, opt := range opts {
		if opt != nil {
			opt(&so)
		}
	}
	return so
}

// resolve returns "" and nil for an unregistered channel in lenient mode.
func (n *Notifier) resolve(so sendOptions) (string, error) {
	url, ok := n.webhook(so.channel)
	if ok {
		return url, nil
	}
	if so.lenient {
		n.log.Warn().Str("channel", so.channel).Msg("discord channel not registered")
		return "", nil
	}
	return "", fmt.Errorf("%w: %q", ErrChannelNotRegistered, so.channel)
}

func (n *Notifier) dispatch(ctx context.Context, so sendOptions, deliver func(context.Context) error) error {
	if so.synchronous {
		return deliver(ctx)
	}

	// Register under the lock, then queue outside it: pool.Go blocks while
	// the pool is full and must not hold up Close.
	n.poolMu.RLock()
	if n.closed {
		n.poolMu.RUnlock()
		return ErrClosed
	}
	n.inflight.Add(1)
	n.poolMu.RUnlock()

	detached := context.WithoutCancel(ctx)
	channel := so.channel
	n.pool.Go(func() error {
		defer n.inflight.Done()
		if err := deliver(detached); err != nil {
			n.log.Error().Err(err).Str("channel", channel).Msg("discord delivery failed")
		}
		return nil
	})
	return nil
}

func checkDelivery(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("discord: deliver: %w", err)
	}
	if resp != nil && resp.StatusCode() != http.StatusNoContent && resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("discord: unexpected status %d", resp.StatusCode())
	}
	return nil
}

// FormatErrorReport renders the alert attachment: track id, IST timestamp,
// the error's type and message, then its unwrap chain.
func FormatErrorReport(err error, trackID string, at time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "Error Code: %s\n", trackID)
	fmt.Fprintf(&b, "Timestamp (IST): %s\n\n", timeutil.InIST(at).Format(timeutil.ISTStampLayout))
	fmt.Fprintf(&b, "Error Type: %T\n", err)
	fmt.Fprintf(&b, "Error Message: %s\n", err.Error())

	if inner := errors.Unwrap(err); inner != nil {
		b.WriteString("\nCaused by:\n")
		for ; inner != nil; inner = errors.Unwrap(inner) {
			fmt.Fprintf(&b, "  %T: %s\n", inner, inner.Error())
		}
	}
	return []byte(b.String())
}
