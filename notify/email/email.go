// Package email renders html/template mail bodies and sends them through
// the Resend HTTP API.
package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/adeilh/corekit/httpx"
)

const DefaultBaseURL = "https://api.resend.com"

var (
	// ErrNotSent means the API accepted the call but returned no message id.
	ErrNotSent = errors.New("email: message not sent")

	ErrMissingAPIKey = errors.New("email: api key is required")
	ErrMissingFrom   = errors.New("email: sender is required")
)

// Mailer sends templated messages from one sender address.
type Mailer struct {
	client    *httpx.Client
	from      string
	templates fs.FS
	log       zerolog.Logger
}

type options struct {
	baseURL string
	timeout time.Duration
	log     zerolog.Logger
}

type Option func(*options)

// WithBaseURL points the mailer at another Resend-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) {
		if url != "" {
			o.baseURL = strings.TrimRight(url, "/")
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// New builds a Mailer. templates holds the files named by SendTemplate.
func New(apiKey, from string, templates fs.FS, opts ...Option) (*Mailer, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if from == "" {
		return nil, ErrMissingFrom
	}
	o := options{baseURL: DefaultBaseURL, timeout: 10 * time.Second, log: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	client := httpx.NewClient(
		httpx.WithBaseURL(o.baseURL),
		httpx.WithClientTimeout(o.timeout),
		httpx.WithHeaders(map[string]string{"Authorization": "Bearer " + apiKey}),
		httpx.WithRetries(2, 0),
		httpx.WithClientLogger(o.log),
	)
	return &Mailer{client: client, from: from, templates: templates, log: o.log}, nil
}

// Render executes the named template with params.
func (m *Mailer) Render(name string, params any) (string, error) {
	if m.templates == nil {
		return "", fmt.Errorf("email: no templates configured")
	}
	tmpl, err := template.ParseFS(m.templates, name)
	if err != nil {
		return "", fmt.Errorf("email: parse %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("email: render %s: %w", name, err)
	}
	return buf.String(), nil
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendResponse struct {
	ID string `json:"id"`
}

// SendTemplate renders template and sends it to to. It returns the message
// id assigned by the API.
func (m *Mailer) SendTemplate(ctx context.Context, to, subject, template string, params any) (string, error) {
	html, err := m.Render(template, params)
	if err != nil {
		return "", err
	}
	return m.Send(ctx, to, subject, html)
}

// Send delivers a pre-rendered HTML body.
func (m *Mailer) Send(ctx context.Context, to, subject, html string) (string, error) {
	var out sendResponse
	_, err := m.client.Post(ctx, "/emails", sendRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	}, &out)
	if err != nil {
		m.log.Error().Err(err).Str("subject", subject).Msg("email send failed")
		return "", fmt.Errorf("email: send: %w", err)
	}
	if out.ID == "" {
		return "", ErrNotSent
	}
	m.log.Debug().Str("id", out.ID).Str("subject", subject).Msg("email sent")
	return out.ID, nil
}
