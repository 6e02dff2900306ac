package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"aster_bot/internal/modules/config"
	"aster_bot/pkg/logger"
	"aster_bot/pkg/tracing"

	"github.com/bytedance/sonic"
)

const (
	DefaultBaseURL    = "https://fapi.asterdex.com"
	DefaultRecvWindow = 50000
	defaultTimeout    = 30 * time.Second
	userAgent         = "AsterBot/1.0"
)

// APIError — не-2xx ответ биржи. Тело сохраняется целиком.
type APIError struct {
	Method string
	Path   string
	Status int
	Code   int
	Msg    string
	Body   string
}

func (e *APIError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("aster %s %s: http %d code=%d: %s", e.Method, e.Path, e.Status, e.Code, e.Msg)
	}
	return fmt.Sprintf("aster %s %s: http %d: %s", e.Method, e.Path, e.Status, e.Body)
}

type Options struct {
	BaseURL    string
	User       string
	Signer     string
	PrivateKey string
	RecvWindow int64
	Timeout    time.Duration
	HTTPClient *http.Client
	Now        func() time.Time
}

// Client — REST-клиент fapi AsterDEX. Ретраев нет: решает вызывающий.
type Client struct {
	baseURL    string
	http       *http.Client
	signer     *Signer
	recvWindow int64
	now        func() time.Time
}

// NewClient — fx-провайдер поверх конфигурации.
func NewClient(cfg *config.Config) (*Client, error) {
	return New(Options{
		BaseURL:    cfg.Exchange.BaseURL,
		User:       cfg.Exchange.User,
		Signer:     cfg.Exchange.Signer,
		PrivateKey: cfg.Exchange.PrivateKey,
		RecvWindow: cfg.Exchange.RecvWindow,
		Timeout:    cfg.Exchange.Timeout,
	})
}

func New(opts Options) (*Client, error) {
	signer, err := NewSigner(opts.User, opts.Signer, opts.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("signer: %w", err)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.RecvWindow <= 0 {
		opts.RecvWindow = DefaultRecvWindow
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		http:       httpClient,
		signer:     signer,
		recvWindow: opts.RecvWindow,
		now:        now,
	}, nil
}

// sign добавляет recvWindow/timestamp, считает подпись и возвращает то, что уйдёт в запрос.
func (c *Client) sign(params Params) (url.Values, error) {
	now := c.now()
	nonce := now.UnixMicro()

	p := make(Params, len(params)+6)
	for k, v := range params {
		if v != nil {
			p[k] = v
		}
	}
	p["recvWindow"] = c.recvWindow
	p["timestamp"] = now.UnixMilli()

	payload, err := SigningPayload(p)
	if err != nil {
		return nil, err
	}
	signature, err := c.signer.Sign(payload, nonce)
	if err != nil {
		return nil, err
	}

	values, err := toValues(p)
	if err != nil {
		return nil, err
	}
	values.Set("nonce", fmt.Sprintf("%d", nonce))
	values.Set("user", c.signer.User())
	values.Set("signer", c.signer.Signer())
	values.Set("signature", signature)
	return values, nil
}

func toValues(p Params) (url.Values, error) {
	values := url.Values{}
	for k, v := range p {
		if v == nil {
			continue
		}
		s, err := stringify(v)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", k, err)
		}
		values.Set(k, s)
	}
	return values, nil
}

func (c *Client) public(ctx context.Context, path string, params Params, out any) error {
	values, err := toValues(params)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodGet, path, values, out)
}

func (c *Client) signed(ctx context.Context, method, path string, params Params, out any) error {
	values, err := c.sign(params)
	if err != nil {
		return fmt.Errorf("sign %s %s: %w", method, path, err)
	}
	return c.do(ctx, method, path, values, out)
}

// do: GET — query string, POST/DELETE — form body.
func (c *Client) do(ctx context.Context, method, path string, values url.Values, out any) (err error) {
	span, ctx := tracing.StartClientSpan(ctx, method, path)
	status := 0
	defer func() { tracing.FinishClientSpan(span, status, err) }()

	u := c.baseURL + path
	var body io.Reader
	if method == http.MethodGet {
		if len(values) > 0 {
			u += "?" + values.Encode()
		}
	} else {
		body = strings.NewReader(values.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Error("[ASTER] %s %s transport: %v", method, path, err)
		return fmt.Errorf("aster %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	var e struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	hasCode := len(b) > 0 && b[0] == '{' && sonic.Unmarshal(b, &e) == nil
	// 200 с отрицательным code — тоже ошибка биржи
	if resp.StatusCode/100 != 2 || (hasCode && e.Code < 0) {
		apiErr := &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: string(b)}
		if hasCode {
			apiErr.Code, apiErr.Msg = e.Code, e.Msg
		}
		logger.Error("[ASTER] %s %s http %d: %s", method, path, resp.StatusCode, string(b))
		return apiErr
	}

	if out == nil || len(b) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
