package execution

import (
	"bytes"
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

	"codehub/pkg/utils/logger"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	defaultJudge0TimeLimit   = 2.0
	defaultJudge0MemoryLimit = 141000
	defaultRequestTimeout    = 10 * time.Second
	maxErrorBodyBytes        = 512
)

var errNotReady = errors.New("execution result not ready")

// Judge0Config configures a Judge0 compatible endpoint.
type Judge0Config struct {
	BaseURL string `yaml:"baseURL"`
	// APIHost and APIKey are sent as RapidAPI headers when set.
	APIHost        string        `yaml:"apiHost"`
	APIKey         string        `yaml:"apiKey"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	// Limits used when a run request carries none.
	DefaultTimeLimit   float64 `yaml:"defaultTimeLimit"`
	DefaultMemoryLimit int     `yaml:"defaultMemoryLimit"`
}

// Judge0Client implements Client over the Judge0 REST API.
type Judge0Client struct {
	cfg        Judge0Config
	baseURL    *url.URL
	httpClient *http.Client
}

// NewJudge0Client validates cfg and builds a client. httpClient may be nil.
func NewJudge0Client(cfg Judge0Config, httpClient *http.Client) (*Judge0Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("judge0 baseURL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid judge0 baseURL: %w", err)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.DefaultTimeLimit <= 0 {
		cfg.DefaultTimeLimit = defaultJudge0TimeLimit
	}
	if cfg.DefaultMemoryLimit <= 0 {
		cfg.DefaultMemoryLimit = defaultJudge0MemoryLimit
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	return &Judge0Client{cfg: cfg, baseURL: base, httpClient: httpClient}, nil
}

type submitPayload struct {
	SourceCode     string  `json:"source_code"`
	LanguageID     int     `json:"language_id"`
	Stdin          string  `json:"stdin"`
	ExpectedOutput string  `json:"expected_output"`
	CPUTimeLimit   float64 `json:"cpu_time_limit"`
	MemoryLimit    int     `json:"memory_limit"`
}

type submitResponse struct {
	Token string `json:"token"`
}

type pollResponse struct {
	Token  string `json:"token"`
	Status struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
	Stdout *string      `json:"stdout"`
	Time   flexFloat    `json:"time"`
	Memory *json.Number `json:"memory"`
}

// flexFloat accepts a JSON number, a numeric string or null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid time value %q: %w", raw, err)
	}
	*f = flexFloat(v)
	return nil
}

// Submit creates a run and returns its token without waiting for the result.
func (c *Judge0Client) Submit(ctx context.Context, req RunRequest) (string, error) {
	payload := submitPayload{
		SourceCode:     req.SourceCode,
		LanguageID:     req.LanguageID,
		Stdin:          req.Stdin,
		ExpectedOutput: req.ExpectedOutput,
		CPUTimeLimit:   req.TimeLimit,
		MemoryLimit:    req.MemoryLimit,
	}
	if payload.CPUTimeLimit <= 0 {
		payload.CPUTimeLimit = c.cfg.DefaultTimeLimit
	}
	if payload.MemoryLimit <= 0 {
		payload.MemoryLimit = c.cfg.DefaultMemoryLimit
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal submission payload failed: %w", err)
	}

	query := url.Values{"base64_encoded": {"false"}, "wait": {"false"}}
	respBody, err := c.do(ctx, "submit", http.MethodPost, "/submissions", query, body)
	if err != nil {
		return "", err
	}
	var resp submitResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", &ServiceError{Op: "submit", Body: "decode response failed: " + err.Error()}
	}
	if resp.Token == "" {
		return "", &ServiceError{Op: "submit", Body: "response carried no token"}
	}
	return resp.Token, nil
}

// PollResult queries token until a terminal status arrives or the policy is exhausted.
// Transport failures and 5xx answers use up attempts like a non-terminal status does.
func (c *Judge0Client) PollResult(ctx context.Context, token string, policy PollPolicy) (*RunResult, error) {
	if token == "" {
		return nil, &ServiceError{Op: "poll", Body: "token is required"}
	}
	policy = policy.normalized()

	var (
		result   *RunResult
		attempts int
	)
	operation := func() error {
		attempts++
		r, err := c.fetch(ctx, token)
		if err != nil {
			if retryable(err) {
				logger.Debug(ctx, "poll attempt failed", zap.String("token", token), zap.Int("attempt", attempts), zap.Error(err))
				return err
			}
			return backoff.Permanent(err)
		}
		if !r.Terminal() {
			return errNotReady
		}
		result = r
		return nil
	}

	schedule := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.Interval), uint64(policy.MaxAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(operation, schedule); err != nil {
		if errors.Is(err, errNotReady) {
			return nil, ErrPollTimeout
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &TransportError{Op: "poll", Err: ctxErr}
		}
		return nil, err
	}
	return result, nil
}

func (c *Judge0Client) fetch(ctx context.Context, token string) (*RunResult, error) {
	query := url.Values{"base64_encoded": {"false"}}
	body, err := c.do(ctx, "poll", http.MethodGet, "/submissions/"+url.PathEscape(token), query, nil)
	if err != nil {
		return nil, err
	}
	var resp pollResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &ServiceError{Op: "poll", Body: "decode response failed: " + err.Error()}
	}

	result := &RunResult{
		Token:       token,
		StatusID:    resp.Status.ID,
		Description: resp.Status.Description,
		Time:        float64(resp.Time),
	}
	if result.Description == "" {
		result.Description = "Unknown"
	}
	if resp.Stdout != nil {
		result.Stdout = *resp.Stdout
	}
	if resp.Memory != nil {
		if mem, err := resp.Memory.Int64(); err == nil {
			result.Memory = mem
		} else if memFloat, err := resp.Memory.Float64(); err == nil {
			result.Memory = int64(memFloat)
		}
	}
	return result, nil
}

func (c *Judge0Client) do(ctx context.Context, op, method, path string, query url.Values, body []byte) ([]byte, error) {
	endpoint := *c.baseURL
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + path
	endpoint.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIHost != "" {
		req.Header.Set("X-RapidAPI-Host", c.cfg.APIHost)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-RapidAPI-Key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("read response body failed: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := respBody
		if len(snippet) > maxErrorBodyBytes {
			snippet = snippet[:maxErrorBodyBytes]
		}
		return nil, &ServiceError{Op: op, StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	return respBody, nil
}
