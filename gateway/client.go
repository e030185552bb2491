package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/marcelsud/dmz-exchange/internal/requestid"
	"github.com/marcelsud/dmz-exchange/message"
	"github.com/marcelsud/dmz-exchange/signature"
	"github.com/rs/zerolog"
)

const (
	DefaultTimeout = 30 * time.Second
	MaxAttempts    = 3
	InitialBackoff = 500 * time.Millisecond

	maxAckBytes = 1 << 20
)

var (
	// ErrRejected means the gateway answered 4xx; the message is not retried
	ErrRejected = errors.New("gateway rejected message")
	// ErrUnavailable means every attempt failed with a retryable error
	ErrUnavailable = errors.New("gateway unavailable")
)

// Options configures a Client
type Options struct {
	BaseURL       string
	Timeout       time.Duration // per attempt
	SigningSecret string        // optional whsec_ secret

	// InitialBackoff is the first retry delay, doubled per attempt; zero means InitialBackoff
	InitialBackoff time.Duration
}

// Ack is the gateway's answer to a delivered message
type Ack struct {
	StatusCode int
	Attempts   int
	Body       json.RawMessage
}

// statusError is a non-2xx gateway response
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gateway returned %d", e.code)
}

// retryable reports whether err is worth another attempt. Only 4xx and
// permanent errors stop early; 3xx and 5xx are retried like transport errors.
func retryable(err error) bool {
	var pe *backoff.PermanentError
	if errors.As(err, &pe) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code < 400 || se.code >= 500
	}
	return true
}

/* Client forwards validated messages to the gateway relay
 * Safe for concurrent use. The underlying http.Client is created on first
 * use, released by Close and recreated on the next Deliver.
 */
type Client struct {
	baseURL string
	timeout time.Duration
	initial time.Duration
	secret  *signature.Secret
	logger  zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	mu   sync.Mutex
	http *http.Client
}

// New creates a client; it does not dial anything
func New(opts Options, logger zerolog.Logger) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("gateway base URL is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = InitialBackoff
	}

	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		timeout: opts.Timeout,
		initial: opts.InitialBackoff,
		logger:  logger.With().Str("component", "gateway").Logger(),
		sleep:   sleepContext,
		now:     time.Now,
	}

	if opts.SigningSecret != "" {
		secret, err := signature.ParseSecret(opts.SigningSecret)
		if err != nil {
			return nil, fmt.Errorf("parsing gateway signing secret: %w", err)
		}
		c.secret = &secret
	}

	return c, nil
}

// Deliver posts msg to {base}/messages, retrying transport errors and 5xx
func (c *Client) Deliver(ctx context.Context, msg message.Message) (Ack, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return Ack{}, fmt.Errorf("marshaling message: %w", err)
	}

	reqID := requestid.FromContext(ctx)
	if reqID == "" {
		reqID = requestid.New()
	}
	logger := c.logger.With().
		Str("request_id", reqID).
		Str("message_id", msg.ID).
		Logger()

	client := c.client()
	state := newRetryState(MaxAttempts, c.initial)
	for {
		logger.Info().Int("attempt", state.attempts+1).Int("max_attempts", state.max).Msg("sending message to gateway")
		ack, err := c.attempt(ctx, client, reqID, msg.ID, body)

		switch state.observe(err) {
		case phaseDelivered:
			ack.Attempts = state.attempts
			logger.Info().Int("status", ack.StatusCode).Int("attempts", state.attempts).Msg("message delivered")
			return ack, nil

		case phaseRejected:
			logger.Error().Err(err).Msg("gateway rejected message")
			return Ack{}, fmt.Errorf("%w: %v", ErrRejected, err)

		case phaseExhausted:
			logger.Error().Err(err).Int("attempts", state.attempts).Msg("gateway unavailable after all attempts")
			return Ack{}, fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, state.attempts, state.lastErr)

		case phaseBackingOff:
			logger.Warn().Err(err).Int("attempt", state.attempts).Dur("backoff", state.delay).Msg("gateway attempt failed, retrying")
			if err := c.sleep(ctx, state.delay); err != nil {
				return Ack{}, fmt.Errorf("%w: waiting to retry: %v", ErrUnavailable, err)
			}
			state.resume()
		}
	}
}

func (c *Client) attempt(ctx context.Context, client *http.Client, reqID, msgID string, body []byte) (Ack, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return Ack{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestid.Header, reqID)
	if c.secret != nil {
		if err := c.secret.Apply(req.Header, msgID, c.now(), body); err != nil {
			return Ack{}, backoff.Permanent(fmt.Errorf("signing request: %w", err))
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return Ack{}, fmt.Errorf("posting message: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxAckBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Ack{}, &statusError{code: resp.StatusCode}
	}

	ack := Ack{StatusCode: resp.StatusCode}
	if json.Valid(raw) {
		ack.Body = raw
	}
	return ack, nil
}

func (c *Client) client() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.http == nil {
		c.http = &http.Client{
			Timeout:       c.timeout,
			Transport:     http.DefaultTransport.(*http.Transport).Clone(),
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return c.http
}

// Close drops idle connections; the next Deliver opens a fresh client
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.http != nil {
		c.http.CloseIdleConnections()
		c.http = nil
	}
	return nil
}
