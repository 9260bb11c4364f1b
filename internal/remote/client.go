// Package remote はリモートのRESTサービスを呼び出すHTTPクライアントを提供する。
// レート制限、サーキットブレーカー、冪等なGETのリトライを内蔵する。
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/hitoshi/syncbook/internal/security"
)

const (
	// maxResponseSize はレスポンスボディの最大読み取りサイズ（5MB）。
	maxResponseSize = 5 * 1024 * 1024
	// userAgent はリモートサービスへ送るUser-Agent。
	userAgent = "syncbook/1.0"
)

// RequestObserver はリモートリクエストの結果を受け取るインターフェース。
// metrics.Collectorが実装する。
type RequestObserver interface {
	RecordRemoteRequest(resource, method, outcome string, duration time.Duration)
}

// Options はClientの設定。
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	// RateLimit は1秒あたりの最大リクエスト数。0以下で無制限。
	RateLimit float64
	// BlockPrivateNetworks がtrueの場合、プライベートネットワーク宛ての接続を拒否する。
	BlockPrivateNetworks bool
	// RetryInitialInterval はGETリトライの初回待機時間。0の場合は200ms。
	RetryInitialInterval time.Duration
	// HTTPClient を指定した場合はTimeoutとBlockPrivateNetworksより優先する。
	HTTPClient *http.Client
	Observer   RequestObserver
}

// Client はリモートRESTサービスのクライアント。
// 呼び出しごとにステートレスで、レートリミッタとサーキットブレーカーは並行利用に対して安全。
type Client struct {
	baseURL       string
	httpClient    *http.Client
	limiter       *rate.Limiter
	breaker       *gobreaker.CircuitBreaker
	maxRetries    int
	retryInterval time.Duration
	observer      RequestObserver
	logger        *slog.Logger
}

// NewClient はClientを生成する。
func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("remote base URL is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		if opts.BlockPrivateNetworks {
			guarded, err := security.NewGuardedClient(baseURL, timeout)
			if err != nil {
				return nil, fmt.Errorf("remote base URL rejected: %w", err)
			}
			httpClient = guarded
		} else {
			httpClient = &http.Client{Timeout: timeout}
		}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	retryInterval := opts.RetryInitialInterval
	if retryInterval <= 0 {
		retryInterval = 200 * time.Millisecond
	}

	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	c := &Client{
		baseURL:       baseURL,
		httpClient:    httpClient,
		limiter:       limiter,
		maxRetries:    maxRetries,
		retryInterval: retryInterval,
		observer:      opts.Observer,
		logger:        logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("サーキットブレーカーの状態が変化しました",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
		// 4xxは相手が応答できているため失敗として数えない
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			code, ok := StatusCode(err)
			return ok && code < 500
		},
	})

	return c, nil
}

// BaseURL はリモートサービスのベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping はリモートサービスに到達できるかを確認する。
// HTTPレスポンスが返ればステータスに関わらず到達可能とみなす。
// サーキットブレーカーが開いている間は到達不能として扱う。
func (c *Client) Ping(ctx context.Context) error {
	if c.breaker.State() == gobreaker.StateOpen {
		return &NetworkError{Method: http.MethodHead, URL: c.baseURL, Err: gobreaker.ErrOpenState}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create ping request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Method: http.MethodHead, URL: req.URL.String(), Err: err}
	}
	resp.Body.Close()
	return nil
}

// request は1回の論理リクエストの内容。
type request struct {
	resource string
	method   string
	path     string
	body     any
}

// do はリクエストを送信し、2xxの場合にレスポンスをoutへデコードする。
// GETはネットワークエラー・429・5xxに対して指数バックオフで最大maxRetries回リトライする。
func (c *Client) do(ctx context.Context, r request, out any) error {
	var payload []byte
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		payload = b
	}

	start := time.Now()
	attempts := 0
	operation := func() error {
		attempts++
		_, err := c.breaker.Execute(func() (any, error) {
			return nil, c.send(ctx, r, payload, out)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(&NetworkError{Method: r.method, URL: c.baseURL + r.path, Err: err})
		}
		if err != nil && !(r.method == http.MethodGet && retryable(err)) {
			return backoff.Permanent(err)
		}
		return err
	}

	var policy backoff.BackOff = &backoff.StopBackOff{}
	if r.method == http.MethodGet && c.maxRetries > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = c.retryInterval
		eb.MaxElapsedTime = 0
		policy = backoff.WithMaxRetries(eb, uint64(c.maxRetries))
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		c.logger.Warn("リモートリクエストをリトライします",
			slog.String("resource", r.resource),
			slog.String("method", r.method),
			slog.String("path", r.path),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	})

	c.observe(r, err, time.Since(start))
	if err != nil {
		c.logger.Debug("リモートリクエストが失敗しました",
			slog.String("resource", r.resource),
			slog.String("method", r.method),
			slog.String("path", r.path),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()),
		)
	}
	return err
}

// send はHTTPリクエストを1回送信する。
func (c *Client) send(ctx context.Context, r request, payload []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &NetworkError{Method: r.method, URL: c.baseURL + r.path, Err: err}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &NetworkError{Method: r.method, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return &StatusError{Method: r.method, URL: req.URL.String(), StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &NetworkError{Method: r.method, URL: req.URL.String(), Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response from %s %s: %w", r.method, req.URL.String(), err)
	}
	return nil
}

func (c *Client) observe(r request, err error, duration time.Duration) {
	if c.observer == nil {
		return
	}
	c.observer.RecordRemoteRequest(r.resource, r.method, outcomeOf(err), duration)
}

// outcomeOf はメトリクス用に結果を分類する。
func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "circuit_open"
	}
	if IsNetworkError(err) {
		return "network_error"
	}
	if code, ok := StatusCode(err); ok {
		if code == http.StatusNotFound {
			return "not_found"
		}
		return "status_error"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "error"
}
