package smarthub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/jgoulah/smarthubscraper/pkg/models"
)

// UserAgent is sent on every portal request
const UserAgent = "Mozilla/5.0"

// AuthenticationError represents a failed portal login
type AuthenticationError struct {
	StatusCode int   // 0 when no response was received
	Err        error // transport error, nil for a bad status
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %v", e.Err)
	}
	return fmt.Sprintf("authentication failed (status %d)", e.StatusCode)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// UsageClient logs in to a SmartHub portal and scrapes the current usage
// reading. It holds one session and is not safe for concurrent use.
type UsageClient struct {
	client   *http.Client
	username string
	password string
	loginURL string
	usageURL string
	logger   *zap.Logger

	cookies []*http.Cookie
}

// Option configures a UsageClient
type Option func(*UsageClient)

// WithLogger sets the logger used for diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(c *UsageClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a UsageClient. The http.Client is owned by the caller, which
// also decides its timeouts and cookie jar; nil means http.DefaultClient.
// No requests are made until the first call.
func New(client *http.Client, username, password, loginURL, usageURL string, opts ...Option) *UsageClient {
	if client == nil {
		client = http.DefaultClient
	}
	c := &UsageClient{
		client:   client,
		username: username,
		password: password,
		loginURL: loginURL,
		usageURL: usageURL,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasSession reports whether session cookies are held
func (c *UsageClient) HasSession() bool {
	return len(c.cookies) > 0
}

// Session returns the session cookies by name
func (c *UsageClient) Session() map[string]string {
	if !c.HasSession() {
		return nil
	}
	session := make(map[string]string, len(c.cookies))
	for _, cookie := range c.cookies {
		session[cookie.Name] = cookie.Value
	}
	return session
}

// Cookies returns copies of the session cookies
func (c *UsageClient) Cookies() []*http.Cookie {
	cookies := make([]*http.Cookie, 0, len(c.cookies))
	for _, cookie := range c.cookies {
		cp := *cookie
		cookies = append(cookies, &cp)
	}
	return cookies
}

// Authenticate posts the credentials to the login URL and stores the session
// cookies from a 200 response. When the login redirects, the final response
// may carry no cookies; the client's jar then holds the session set along the
// way. Any other result returns an *AuthenticationError and leaves the current
// session as it was.
func (c *UsageClient) Authenticate(ctx context.Context) error {
	form := url.Values{}
	form.Set("UserName", c.username)
	form.Set("Password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return &AuthenticationError{Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("error during login", zap.String("url", c.loginURL), zap.Error(err))
		return &AuthenticationError{Err: err}
	}
	defer resp.Body.Close()
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("failed to log in",
			zap.String("url", c.loginURL),
			zap.Int("status", resp.StatusCode),
		)
		return &AuthenticationError{StatusCode: resp.StatusCode}
	}

	cookies := resp.Cookies()
	if len(cookies) == 0 && c.client.Jar != nil {
		cookies = c.client.Jar.Cookies(req.URL)
	}
	c.cookies = cookies
	c.logger.Debug("logged in", zap.Int("cookies", len(c.cookies)))
	return nil
}

// addSessionCookies adds the session to req, skipping cookies the client's
// jar already sends for the same URL.
func (c *UsageClient) addSessionCookies(req *http.Request) {
	sent := make(map[string]bool)
	if c.client.Jar != nil {
		for _, cookie := range c.client.Jar.Cookies(req.URL) {
			sent[cookie.Name] = true
		}
	}
	for _, cookie := range c.cookies {
		if !sent[cookie.Name] {
			req.AddCookie(cookie)
		}
	}
}

// FetchUsage returns the current usage reading, logging in first when no
// session is held. Login failures are returned as errors. Any failure to
// fetch or parse the usage page returns a nil reading and a nil error.
func (c *UsageClient) FetchUsage(ctx context.Context) (*models.UsageReading, error) {
	res, err := c.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return res.Reading, nil
}

// Fetch is FetchUsage with the outcome of the attempt. The error is only set
// for authentication failures.
func (c *UsageClient) Fetch(ctx context.Context) (FetchResult, error) {
	if !c.HasSession() {
		if err := c.Authenticate(ctx); err != nil {
			return FetchResult{}, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.usageURL, nil)
	if err != nil {
		return c.absent(OutcomeTransportError, 0, fmt.Errorf("creating request: %w", err)), nil
	}
	req.Header.Set("User-Agent", UserAgent)
	c.addSessionCookies(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return c.absent(OutcomeTransportError, 0, err), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return c.absent(OutcomeBadStatus, resp.StatusCode, nil), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.absent(OutcomeReadError, resp.StatusCode, fmt.Errorf("reading response body: %w", err)), nil
	}

	usage, err := ParseUsage(bytes.NewReader(body))
	switch {
	case errors.Is(err, ErrTooltipNotFound):
		return c.absent(OutcomeTooltipMissing, resp.StatusCode, err), nil
	case errors.Is(err, ErrNotNumeric):
		return c.absent(OutcomeNotNumeric, resp.StatusCode, err), nil
	case err != nil:
		return c.absent(OutcomeReadError, resp.StatusCode, err), nil
	}

	c.logger.Debug("fetched usage", zap.Float64("usage", usage))
	return FetchResult{
		Reading:    &models.UsageReading{Usage: usage},
		Outcome:    OutcomeOK,
		StatusCode: resp.StatusCode,
	}, nil
}

func (c *UsageClient) absent(outcome Outcome, status int, err error) FetchResult {
	fields := []zap.Field{
		zap.String("url", c.usageURL),
		zap.Stringer("outcome", outcome),
	}
	if status != 0 {
		fields = append(fields, zap.Int("status", status))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	c.logger.Error("failed to fetch usage data", fields...)

	return FetchResult{Outcome: outcome, StatusCode: status, Err: err}
}
