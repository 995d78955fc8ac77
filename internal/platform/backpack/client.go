// Package backpack is the REST adapter for the Backpack exchange.
package backpack

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

const venueName = "backpack"

// Config holds the Backpack connection settings.
type Config struct {
	BaseURL string
	// APIKey is the base64 ed25519 public key.
	APIKey string
	// APISecret is the base64 ed25519 seed.
	APISecret string
	// Window is how long a signed request stays valid.
	Window time.Duration
}

// Client is the REST client for the Backpack exchange API.
type Client struct {
	baseURL    string
	apiKey     string
	privateKey ed25519.PrivateKey
	window     time.Duration
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a Backpack client. Public endpoints work without keys.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.backpack.exchange"
	}
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		window:     cfg.Window,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	if cfg.APISecret != "" {
		seed, err := base64.StdEncoding.DecodeString(cfg.APISecret)
		if err != nil {
			return nil, fmt.Errorf("backpack: decode api secret: %w", err)
		}
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("backpack: api secret must be a %d-byte seed, got %d", ed25519.SeedSize, len(seed))
		}
		c.privateKey = ed25519.NewKeyFromSeed(seed)
	}
	return c, nil
}

// doPublic sends an unsigned GET request.
func (c *Client) doPublic(ctx context.Context, op, path string, params url.Values) ([]byte, error) {
	full := c.baseURL + path
	if len(params) > 0 {
		full += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, domain.NewVenueError(domain.ErrorKindUnknown, venueName, op, err)
	}
	req.Header.Set("Accept", "application/json")
	return c.send(req, op)
}

// doSignedRequest signs params under instruction. GET requests carry params
// in the query string; other methods send body as JSON.
func (c *Client) doSignedRequest(ctx context.Context, op, method, path, instruction string, params map[string]string, body any) ([]byte, error) {
	if c.privateKey == nil {
		return nil, domain.NewVenueError(domain.ErrorKindAuth, venueName, op, errors.New("api secret not configured"))
	}

	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, domain.NewVenueError(domain.ErrorKindUnknown, venueName, op, fmt.Errorf("marshal request body: %w", err))
		}
		bodyReader = bytes.NewReader(raw)
	}

	full := c.baseURL + path
	if method == http.MethodGet && len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		full += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, full, bodyReader)
	if err != nil {
		return nil, domain.NewVenueError(domain.ErrorKindUnknown, venueName, op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	ts := c.now().UnixMilli()
	window := c.window.Milliseconds()
	sig := ed25519.Sign(c.privateKey, []byte(signingString(instruction, params, ts, window)))

	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("X-Signature", base64.StdEncoding.EncodeToString(sig))
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Window", strconv.FormatInt(window, 10))

	return c.send(req, op)
}

// signingString builds "instruction=X&a=1&b=2&timestamp=T&window=W" with
// params in alphabetical order.
func signingString(instruction string, params map[string]string, ts, window int64) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("instruction=")
	b.WriteString(instruction)
	for _, k := range keys {
		b.WriteString("&")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(params[k])
	}
	fmt.Fprintf(&b, "&timestamp=%d&window=%d", ts, window)
	return b.String()
}

func (c *Client) send(req *http.Request, op string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewVenueError(domain.KindOf(err), venueName, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewVenueError(domain.ErrorKindNetwork, venueName, op, fmt.Errorf("read response: %w", err))
	}
	if err := checkStatus(op, resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkStatus maps a non-2xx response to a classified VenueError.
func checkStatus(op string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	kind := domain.KindFromStatus(status)
	code := strings.ToUpper(apiErr.Code)
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(code, "INSUFFICIENT") || strings.Contains(lower, "insufficient"):
		kind = domain.ErrorKindInsufficientFunds
	case code == "UNAUTHORIZED" || code == "INVALID_SIGNATURE" || strings.Contains(lower, "signature"):
		kind = domain.ErrorKindAuth
	case code == "FORBIDDEN":
		kind = domain.ErrorKindPermission
	case code == "TOO_MANY_REQUESTS":
		kind = domain.ErrorKindRateLimited
	}

	ve := domain.NewVenueError(kind, venueName, op, fmt.Errorf("%s (%s)", msg, apiErr.Code))
	ve.Status = status
	return ve
}
