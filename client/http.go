package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// httpClient HTTP客户端实现
type httpClient struct {
	endpoint string
	client   *http.Client
	logger   Logger
	debug    bool
	nextID   atomic.Uint64
	retry    *RetryConfig
}

// NewHTTPClient 创建HTTP客户端
func NewHTTPClient(config *Config) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	timeout := time.Duration(config.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	httpCli := &http.Client{Timeout: timeout}

	tlsConfig, err := buildTLSConfig(config.TLS)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		httpCli.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}

	logger := loggerOf(config)
	retryConfig := config.Retry
	if retryConfig == nil {
		retryConfig = DefaultRetryConfig()
		retryConfig.OnRetry = func(attempt int, err error) {
			logger.Warn("Retrying request", "attempt", attempt, "error", err)
		}
	}

	return &httpClient{
		endpoint: config.Endpoint,
		client:   httpCli,
		logger:   logger,
		debug:    config.Debug,
		retry:    retryConfig,
	}, nil
}

// Call 调用JSON-RPC方法
func (c *httpClient) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	// 使用原子计数器生成唯一ID
	req, err := NewRPCRequest(c.nextID.Add(1), method, params)
	if err != nil {
		return nil, fmt.Errorf("marshal params failed: %w", err)
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	if c.debug {
		c.logger.Debug("JSON-RPC request", "method", method, "body", string(reqBody))
	}

	var resp *http.Response
	err = WithRetry(ctx, func() error {
		// 每次重试都创建新的请求（因为 Body 只能读取一次）
		httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
		if reqErr != nil {
			return fmt.Errorf("create request failed: %w", reqErr)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")

		httpResp, reqErr := c.client.Do(httpReq)
		if reqErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return NewNetworkError(reqErr)
		}

		if isRetryableHTTPError(httpResp.StatusCode) {
			httpResp.Body.Close()
			return NewNetworkError(fmt.Errorf("HTTP error: %d", httpResp.StatusCode))
		}

		resp = httpResp
		return nil
	}, c.retry)
	if err != nil {
		return nil, fmt.Errorf("send request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewNetworkError(fmt.Errorf("read response failed: %w", err))
	}

	if c.debug {
		c.logger.Debug("JSON-RPC response", "status", resp.StatusCode, "body", string(respBody))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, NewInvalidResponseError(fmt.Sprintf("HTTP error: %d, body: %s", resp.StatusCode, string(respBody)))
	}

	var jsonResp RPCResponse
	if err := json.Unmarshal(respBody, &jsonResp); err != nil {
		return nil, &Error{Code: ErrCodeInvalidResponse, Message: "unmarshal response failed", Err: err}
	}

	if jsonResp.Error != nil {
		return nil, rpcErrorToError(jsonResp.Error)
	}

	return jsonResp.Result, nil
}

// Subscribe 订阅（HTTP不支持，需要使用WebSocket）
func (c *httpClient) Subscribe(ctx context.Context, method string, params interface{}) (<-chan json.RawMessage, error) {
	return nil, NewNotSupportedError("subscribe over HTTP, use WebSocket client instead")
}

// Close 关闭连接
func (c *httpClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
