package agents

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"convictionexecutor/src/model"
)

const (
	defaultHTTPTimeout      = 60 * time.Second
	defaultHTTPRetryWait    = time.Second
	defaultHTTPRetryMaxWait = 10 * time.Second
)

// HTTPOptions configures the transport of an HTTP agent.
type HTTPOptions struct {
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
}

type analysisRequest struct {
	Agent  string                `json:"agent"`
	Role   Role                  `json:"role"`
	Market *model.MarketSnapshot `json:"market"`
}

type analysisResponse struct {
	Signal     model.AgentSignal `json:"signal"`
	Confidence float64           `json:"confidence"`
	Score      float64           `json:"score"`
	Reasoning  string            `json:"reasoning"`
}

// HTTPAgent delegates the analysis to a remote (usually LLM-backed) endpoint.
type HTTPAgent struct {
	name     string
	role     Role
	endpoint string
	apiKey   string
	http     *resty.Client
	logger   *logrus.Entry
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		// context cancellation is final
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == http.StatusTooManyRequests {
		return true
	}
	if code == http.StatusRequestTimeout {
		return true
	}
	return false
}

func NewHTTPAgent(name string, role Role, endpoint, apiKey string, opts HTTPOptions, logger *logrus.Entry) *HTTPAgent {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultHTTPTimeout
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = defaultHTTPRetryWait
	}
	if opts.RetryMaxWait <= 0 {
		opts.RetryMaxWait = defaultHTTPRetryMaxWait
	}
	if opts.RetryCount < 0 {
		opts.RetryCount = 0
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryMaxWait).
		AddRetryCondition(isRetryableResp)

	return &HTTPAgent{
		name:     name,
		role:     role,
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     client,
		logger:   logger.WithFields(logrus.Fields{"agent": name, "role": role}),
	}
}

func (a *HTTPAgent) Name() string { return a.name }

func (a *HTTPAgent) Role() Role { return a.role }

func (a *HTTPAgent) Analyze(ctx context.Context, market *model.MarketSnapshot) (*model.AgentOutput, error) {
	var result analysisResponse

	req := a.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetBody(analysisRequest{Agent: a.name, Role: a.role, Market: market}).
		SetResult(&result)
	if a.apiKey != "" {
		req.SetAuthToken(a.apiKey)
	}

	resp, err := req.Post(a.endpoint)
	retries := retryCount(resp)
	if err != nil {
		return nil, &AgentExecutionError{AgentName: a.name, RetryCount: retries, Err: fmt.Errorf("post analysis: %w", err)}
	}
	if resp.IsError() {
		return nil, &AgentExecutionError{
			AgentName:  a.name,
			RetryCount: retries,
			Err:        fmt.Errorf("unexpected status %d. body: %s", resp.StatusCode(), truncate(resp.String(), 512)),
		}
	}

	out, err := normalizeOutput(a.name, &model.AgentOutput{
		Signal:     result.Signal,
		Confidence: result.Confidence,
		Score:      result.Score,
		Reasoning:  result.Reasoning,
	})
	if err != nil {
		return nil, &AgentExecutionError{AgentName: a.name, RetryCount: retries, Err: fmt.Errorf("decode analysis: %w", err)}
	}

	a.logger.WithFields(logrus.Fields{
		"signal":     out.Signal,
		"confidence": out.Confidence,
		"retries":    retries,
		"elapsed_ms": resp.Time().Milliseconds(),
	}).Debug("agent analysis received")

	return out, nil
}

func retryCount(resp *resty.Response) int {
	if resp == nil || resp.Request == nil || resp.Request.Attempt <= 1 {
		return 0
	}
	return resp.Request.Attempt - 1
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
