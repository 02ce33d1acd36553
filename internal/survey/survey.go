// Package survey posts post-delivery customer surveys to an HTTP endpoint.
package survey

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/julianstephens/fieldcall/internal/constants"
	"github.com/julianstephens/fieldcall/internal/logger"
)

// ErrPermanent marks a rejection that retrying will not fix.
var ErrPermanent = errors.New("survey endpoint rejected request")

type payload struct {
	Email  string    `json:"email"`
	SentAt time.Time `json:"sent_at"`
}

// Dispatcher sends one survey request per delivered activity, retrying
// transient failures.
type Dispatcher struct {
	endpoint   string
	token      string
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
	now        func() time.Time
}

type Option func(*Dispatcher)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option { return func(d *Dispatcher) { d.token = token } }

func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.client.Timeout = timeout
		}
	}
}

func WithRetries(n int, delay time.Duration) Option {
	return func(d *Dispatcher) {
		if n >= 0 {
			d.maxRetries = n
		}
		if delay >= 0 {
			d.retryDelay = delay
		}
	}
}

// WithRate caps requests per second. Zero or less disables limiting.
func WithRate(perSec float64) Option {
	return func(d *Dispatcher) {
		if perSec <= 0 {
			d.limiter = nil
			return
		}
		burst := int(perSec)
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

func WithHTTPClient(c *http.Client) Option { return func(d *Dispatcher) { d.client = c } }

func New(endpoint string, opts ...Option) (*Dispatcher, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("survey endpoint is required")
	}
	d := &Dispatcher{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: constants.DefaultSurveyTimeout},
		limiter:    rate.NewLimiter(rate.Limit(constants.DefaultSurveyRatePerSec), constants.DefaultSurveyRatePerSec),
		maxRetries: constants.SurveyMaxRetries,
		retryDelay: constants.SurveyRetryDelay,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// SendSurvey posts the survey for email. It returns nil only once the
// endpoint acknowledged it with a 2xx.
func (d *Dispatcher) SendSurvey(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: empty recipient", ErrPermanent)
	}
	body, err := json.Marshal(payload{Email: email, SentAt: d.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal survey payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, d.retryDelay*time.Duration(attempt)); err != nil {
				return err
			}
		}
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		lastErr = d.post(ctx, body)
		if lastErr == nil {
			logger.Debug("survey sent", "email", email, "attempts", attempt+1)
			return nil
		}
		if errors.Is(lastErr, ErrPermanent) || ctx.Err() != nil {
			return lastErr
		}
		logger.Debug("survey attempt failed", "attempt", attempt+1, "error", lastErr)
	}
	return fmt.Errorf("survey not sent after %d attempts: %w", d.maxRetries+1, lastErr)
}

func (d *Dispatcher) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	res, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send survey: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
	err = fmt.Errorf("survey endpoint returned %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	if res.StatusCode >= 400 && res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// LogOnly stands in when no survey endpoint is configured. It logs the
// survey that would have been sent and always succeeds.
type LogOnly struct{}

func (LogOnly) SendSurvey(_ context.Context, email string) error {
	logger.Warn("no survey endpoint configured, survey recorded locally", "email", email)
	return nil
}
