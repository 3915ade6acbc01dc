// Package google looks up the profile behind a Google OAuth access token.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/adeilh/corekit/httpx"
)

const (
	DefaultBaseURL = "https://www.googleapis.com"
	userInfoPath   = "/oauth2/v1/userinfo"

	CodeUnavailable  = "GOOGLE_UNAVAILABLE"
	CodeInvalidToken = "INVALID_GOOGLE_TOKEN"
	CodeBadResponse  = "BAD_GOOGLE_RESPONSE"
)

// UserInfo is the subset of the v1 userinfo payload callers rely on. Raw
// keeps the full document.
type UserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	Locale        string `json:"locale"`

	Raw map[string]any `json:"-"`
}

type Client struct {
	http *httpx.Client
}

type Option func(*options)

type options struct {
	baseURL string
	timeout time.Duration
}

// WithBaseURL points the client at another host, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.baseURL = u
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

func NewClient(opts ...Option) *Client {
	o := options{baseURL: DefaultBaseURL, timeout: 10 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &Client{http: httpx.NewClient(
		httpx.WithBaseURL(o.baseURL),
		httpx.WithClientTimeout(o.timeout),
		httpx.WithRetries(1, 0),
	)}
}

// UserInfo fetches the profile for accessToken. Failures are *httpx.AppError
// values: 503 when Google cannot be reached, 400 when it rejects the token
// and 502 when the answer is not a JSON document.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (UserInfo, error) {
	resp, err := c.http.Get(ctx, userInfoPath, nil,
		httpx.WithBearer(accessToken),
		httpx.WithQuery(map[string]string{"access_token": accessToken}),
	)
	var respErr *httpx.ResponseError
	switch {
	case errors.As(err, &respErr):
		return UserInfo{}, httpx.BadRequest(CodeInvalidToken, "Invalid or expired Google token").WithCause(err)
	case err != nil:
		return UserInfo{}, httpx.ServiceUnavailable(CodeUnavailable, "Google API request failed").WithCause(err)
	case resp.StatusCode() != http.StatusOK:
		return UserInfo{}, httpx.BadRequest(CodeInvalidToken, "Invalid or expired Google token")
	}

	var info UserInfo
	if err := json.Unmarshal(resp.Body(), &info.Raw); err != nil {
		return UserInfo{}, httpx.BadGateway(CodeBadResponse, "Invalid response from Google API").WithCause(err)
	}
	if err := json.Unmarshal(resp.Body(), &info); err != nil {
		return UserInfo{}, httpx.BadGateway(CodeBadResponse, "Invalid response from Google API").WithCause(err)
	}
	return info, nil
}
