// Package hyperliquid is the REST adapter for the Hyperliquid perp exchange.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/crypto"
	"github.com/alanyoungcy/hedgebot/internal/domain"
)

const venueName = "hyperliquid"

// Config holds the Hyperliquid connection settings.
type Config struct {
	BaseURL string
	// PrivateKey is the hex secp256k1 key of the account or API wallet.
	PrivateKey string
	// AccountAddress is the account queried for fills and balances. It
	// defaults to the signer address.
	AccountAddress string
	Testnet        bool
	// SlippagePct bounds the IOC price used to emulate a market order.
	SlippagePct float64
}

// Client is the REST client for the Hyperliquid API.
type Client struct {
	baseURL    string
	account    string
	mainnet    bool
	slippage   float64
	signer     *crypto.Signer
	httpClient *http.Client
	now        func() time.Time

	mu        sync.Mutex
	assets    map[string]assetInfo
	lastNonce uint64
}

type assetInfo struct {
	index      int
	szDecimals int32
}

// NewClient creates a Hyperliquid client. Without a private key only the
// info endpoints work.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.hyperliquid.xyz"
		if cfg.Testnet {
			cfg.BaseURL = "https://api.hyperliquid-testnet.xyz"
		}
	}
	if cfg.SlippagePct <= 0 {
		cfg.SlippagePct = 5
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		account:    cfg.AccountAddress,
		mainnet:    !cfg.Testnet,
		slippage:   cfg.SlippagePct / 100,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	if cfg.PrivateKey != "" {
		s, err := crypto.NewSigner(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("hyperliquid: %w", err)
		}
		c.signer = s
		if c.account == "" {
			c.account = s.Address().Hex()
		}
	}
	return c, nil
}

// info posts a query to /info and decodes the result into out.
func (c *Client) info(ctx context.Context, op string, req map[string]any, out any) error {
	body, err := c.post(ctx, op, "/info", req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domain.NewVenueError(domain.ErrorKindUnknown, venueName, op, fmt.Errorf("decode %s: %w", op, err))
	}
	return nil
}

// exchange signs action and posts it to /exchange. It returns the response
// payload of a successful call.
func (c *Client) exchange(ctx context.Context, op string, action any) (json.RawMessage, error) {
	if c.signer == nil {
		return nil, domain.NewVenueError(domain.ErrorKindAuth, venueName, op, fmt.Errorf("private key not configured"))
	}
	nonce := c.nextNonce()
	hash, err := actionHash(action, nonce)
	if err != nil {
		return nil, domain.NewVenueError(domain.ErrorKindUnknown, venueName, op, err)
	}
	sig, err := c.signer.SignL1Action(hash, c.mainnet)
	if err != nil {
		return nil, domain.NewVenueError(domain.ErrorKindAuth, venueName, op, err)
	}

	body, err := c.post(ctx, op, "/exchange", exchangeRequest{
		Action:    action,
		Nonce:     nonce,
		Signature: signatureWire{R: sig.R, S: sig.S, V: sig.V},
	})
	if err != nil {
		return nil, err
	}

	var resp exchangeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewVenueError(domain.ErrorKindUnknown, venueName, op, fmt.Errorf("decode exchange response: %w", err))
	}
	if resp.Status != "ok" {
		var msg string
		if err := json.Unmarshal(resp.Response, &msg); err != nil {
			msg = string(resp.Response)
		}
		return nil, domain.NewVenueError(classifyMessage(msg), venueName, op, fmt.Errorf("%s", msg))
	}
	return resp.Response, nil
}

func (c *Client) nextNonce() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := uint64(c.now().UnixMilli())
	if n <= c.lastNonce {
		n = c.lastNonce + 1
	}
	c.lastNonce = n
	return n
}

func (c *Client) post(ctx context.Context, op, path string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, domain.NewVenueError(domain.ErrorKindUnknown, venueName, op, fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, domain.NewVenueError(domain.ErrorKindUnknown, venueName, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewVenueError(domain.KindOf(err), venueName, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewVenueError(domain.ErrorKindNetwork, venueName, op, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		kind := domain.KindFromStatus(resp.StatusCode)
		if kind == domain.ErrorKindUnknown {
			kind = classifyMessage(msg)
		}
		ve := domain.NewVenueError(kind, venueName, op, fmt.Errorf("%s", msg))
		ve.Status = resp.StatusCode
		return nil, ve
	}
	return body, nil
}

// classifyMessage maps exchange error text to an ErrorKind.
func classifyMessage(msg string) domain.ErrorKind {
	m := strings.ToLower(msg)
	switch {
	case strings.Contains(m, "insufficient"), strings.Contains(m, "margin"):
		return domain.ErrorKindInsufficientFunds
	case strings.Contains(m, "does not exist"), strings.Contains(m, "signature"), strings.Contains(m, "unauthorized"):
		return domain.ErrorKindAuth
	case strings.Contains(m, "not allowed"), strings.Contains(m, "permission"):
		return domain.ErrorKindPermission
	case strings.Contains(m, "rate limit"), strings.Contains(m, "too many"):
		return domain.ErrorKindRateLimited
	default:
		return domain.ErrorKindUnknown
	}
}
