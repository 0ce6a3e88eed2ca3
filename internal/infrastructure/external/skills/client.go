// Package skills implements the leaderboard part of the skills service API.
// The skills service owns global XP; this client only reads its rankings.
package skills

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/challenges-leaderboard/internal/domain/leaderboard"
	"github.com/alem-hub/challenges-leaderboard/internal/domain/shared"
	"github.com/alem-hub/challenges-leaderboard/internal/infrastructure/metrics"
	"github.com/alem-hub/challenges-leaderboard/pkg/circuitbreaker"
	"github.com/alem-hub/challenges-leaderboard/pkg/logger"
	"github.com/alem-hub/challenges-leaderboard/pkg/timeutil"
)

var tracer = otel.Tracer("challenges-leaderboard.skills")

// maxBodySize caps how much of a response body is read.
const maxBodySize = 4 << 20

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the skills client.
type ClientConfig struct {
	// BaseURL is the skills service base URL, e.g. "http://skills:8000".
	BaseURL string

	// Token is sent as a bearer token when set.
	Token string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// BreakerFailures is the number of consecutive failures that opens the circuit.
	BreakerFailures int

	// BreakerCooldown is how long the circuit stays open.
	BreakerCooldown time.Duration

	// Logger for structured logging.
	Logger *logger.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:         baseURL,
		Timeout:         5 * time.Second,
		BreakerFailures: 5,
		BreakerCooldown: 15 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the skills service client. Calls are never retried.
type Client struct {
	config     ClientConfig
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *logger.Logger
}

// NewClient creates a new skills client.
func NewClient(config ClientConfig) *Client {
	log := config.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.With(logger.Component("skills_client"))

	onStateChange := func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}

	return &Client{
		config:     config,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{Timeout: config.Timeout},
		breaker: circuitbreaker.New("skills-service",
			circuitbreaker.WithFailureThreshold(config.BreakerFailures),
			circuitbreaker.WithOpenTimeout(config.BreakerCooldown),
			circuitbreaker.WithIsFailure(countsAsOutage),
			circuitbreaker.WithIsExcluded(callerAborted),
			circuitbreaker.WithOnStateChange(onStateChange),
		),
		logger: log,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboard fetches a page of the global leaderboard.
func (c *Client) GetLeaderboard(ctx context.Context, limit, offset uint64, window *leaderboard.DateRange) (*LeaderboardDTO, error) {
	query := url.Values{}
	query.Set("limit", strconv.FormatUint(limit, 10))
	query.Set("offset", strconv.FormatUint(offset, 10))
	addWindow(query, window)

	var result LeaderboardDTO
	if err := c.doRequest(ctx, "GetLeaderboard", "/leaderboard", query, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetLeaderboardUser fetches one user's global rank.
func (c *Client) GetLeaderboardUser(ctx context.Context, userID uuid.UUID, window *leaderboard.DateRange) (*RankDTO, error) {
	query := url.Values{}
	addWindow(query, window)

	var result RankDTO
	if err := c.doRequest(ctx, "GetLeaderboardUser", "/leaderboard/"+userID.String(), query, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Ping reports whether the circuit to the skills service is closed.
func (c *Client) Ping(context.Context) error {
	if c.breaker.State() == circuitbreaker.StateOpen {
		return shared.ErrSkillsUnavailable
	}
	return nil
}

func addWindow(query url.Values, window *leaderboard.DateRange) {
	if window == nil {
		return
	}
	query.Set("start_date", timeutil.FormatNaive(window.Start))
	query.Set("end_date", timeutil.FormatNaive(window.End))
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP PLUMBING
// ══════════════════════════════════════════════════════════════════════════════

// doRequest runs one GET through the circuit breaker.
func (c *Client) doRequest(ctx context.Context, op, path string, query url.Values, result any) error {
	ctx, span := tracer.Start(ctx, "skills."+op,
		trace.WithAttributes(attribute.String("http.path", path)),
	)
	defer span.End()

	start := time.Now()
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.doSingleRequest(ctx, op, path, query, result)
	})

	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		err = shared.WrapError("skills", op, shared.ErrServiceUnavailable, "circuit open", err)
	}
	if err != nil && !shared.IsNotFound(err) && !callerAborted(err) {
		metrics.UpstreamErrors.WithLabelValues(errorType(err)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("skills request failed",
			logger.Operation(op),
			logger.String("path", path),
			logger.Latency(time.Since(start)),
			logger.Err(err),
		)
	}
	return err
}

func (c *Client) doSingleRequest(ctx context.Context, op, path string, query url.Values, result any) error {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(ctx, op, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return transportError(ctx, op, "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return shared.WrapError("skills", op, shared.ErrNotFound, "not found", errorFromBody(body))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &shared.UnexpectedStatusError{Service: "skills", StatusCode: resp.StatusCode}
	}

	if err := json.Unmarshal(body, result); err != nil {
		return shared.WrapError("skills", op, shared.ErrExternalService, "unmarshal response", err)
	}
	return nil
}

// errorFromBody extracts the upstream message, if any.
func errorFromBody(body []byte) error {
	var apiErr APIErrorDTO
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return errors.New(apiErr.Error)
	}
	return nil
}

// transportError separates the caller's own cancellation or deadline from an
// upstream that failed to answer within the client timeout.
func transportError(ctx context.Context, op, message string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return shared.WrapError("skills", op, ctxErr, "request abandoned by caller", err)
	}
	return shared.WrapError("skills", op, shared.ErrServiceUnavailable, message, err)
}

// callerAborted reports errors caused by the caller giving up. They say
// nothing about the health of the skills service.
func callerAborted(err error) bool {
	if errors.Is(err, shared.ErrServiceUnavailable) {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// countsAsOutage keeps contract answers (404, 4xx) from tripping the breaker.
func countsAsOutage(err error) bool {
	if shared.IsNotFound(err) {
		return false
	}
	if code, ok := shared.StatusCode(err); ok {
		return code >= 500
	}
	return true
}

func errorType(err error) string {
	switch {
	case errors.Is(err, shared.ErrUnexpectedStatus):
		return "unexpected_status"
	case errors.Is(err, shared.ErrServiceUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}
