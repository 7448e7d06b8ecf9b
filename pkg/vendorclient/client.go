package vendorclient

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fleetcore/engine/internal/correlation"
	"github.com/fleetcore/engine/internal/metrics"
	"github.com/fleetcore/engine/pkg/ferrors"
	"github.com/fleetcore/engine/pkg/httpclient"
)

// Client speaks the AutoXing dispatch API: token acquisition, robot
// state, POI listing, and navigation task create/poll/cancel. It is the
// only package that knows the vendor's wire format.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter

	mu             sync.Mutex
	token          string
	tokenFetchedAt time.Time
}

// New builds a Client from cfg. The underlying HTTP client uses
// pkg/httpclient's retry transport for transient transport failures
// (5xx/429/408); the vendor's application-level 401/403-refresh-and-retry
// contract is implemented separately in do, since the generic transport
// has no notion of an application-level status field. Outbound calls are
// additionally paced by cfg.RateLimitPerSec to stay under the vendor's
// undocumented rate limits.
func New(cfg Config) (*Client, error) {
	hcCfg := httpclient.DefaultConfig()
	hcCfg.Timeout = cfg.RequestTimeout
	hcCfg.UserAgent = "fleet-engine/1.0"
	hc, err := httpclient.New(hcCfg)
	if err != nil {
		return nil, ferrors.Wrap(err, "vendorclient: build http client")
	}

	limit := rate.Limit(cfg.RateLimitPerSec)
	if cfg.RateLimitPerSec <= 0 {
		limit = rate.Inf
	}
	burst := int(cfg.RateLimitPerSec)
	if burst < 1 {
		burst = 1
	}

	return &Client{cfg: cfg, http: hc, limiter: rate.NewLimiter(limit, burst)}, nil
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// fetchToken unconditionally acquires a fresh token from the vendor via
// POST /auth/v1.1/token, Authorization: APPCODE <app_code>, body
// {appId, timestamp (ms), sign = md5(appId + str(timestamp) + appSecret)}.
func (c *Client) fetchToken(ctx context.Context) (string, error) {
	timestampMs := time.Now().UnixMilli()
	sign := md5Hex(c.cfg.AppID + strconv.FormatInt(timestampMs, 10) + c.cfg.AppSecret)

	body, _ := json.Marshal(map[string]interface{}{
		"appId":     c.cfg.AppID,
		"timestamp": timestampMs,
		"sign":      sign,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/auth/v1.1/token", bytes.NewReader(body))
	if err != nil {
		return "", ferrors.Internal("vendorclient.fetchToken", err)
	}
	req.Header.Set("Authorization", "APPCODE "+c.cfg.AppCode)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", ferrors.Internal("vendorclient.fetchToken", err)
	}
	defer resp.Body.Close()

	var env struct {
		Status int `json:"status"`
		Data   struct {
			Token string `json:"token"`
		} `json:"data"`
		Msg string `json:"msg"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", ferrors.Internal("vendorclient.fetchToken", err)
	}
	if env.Status != 200 {
		return "", &ferrors.InternalError{Op: "vendorclient.fetchToken", Cause: fmt.Errorf("auth failed: status=%d msg=%s", env.Status, env.Msg)}
	}
	return env.Data.Token, nil
}

// cachedToken returns a cached token, refreshing proactively once its age
// exceeds the configured TTL. Refreshes are safe to duplicate under
// contention; whichever completes last wins.
func (c *Client) cachedToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	tok, age := c.token, time.Since(c.tokenFetchedAt)
	c.mu.Unlock()

	if tok != "" && age < c.cfg.TokenTTL {
		return tok, nil
	}
	return c.refreshToken(ctx)
}

// refreshToken fetches a brand-new token unconditionally and caches it.
func (c *Client) refreshToken(ctx context.Context) (string, error) {
	tok, err := c.fetchToken(ctx)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.token = tok
	c.tokenFetchedAt = time.Now()
	c.mu.Unlock()
	return tok, nil
}

// clearToken invalidates the cached token, forcing the next call to
// refresh.
func (c *Client) clearToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// requestFunc builds the *http.Request for one attempt; called twice on
// a 401/403 so the X-Token header reflects the refreshed token.
type requestFunc func(token string) (*http.Request, error)

// do executes build once, and on a 401/403 — either the transport status
// or the application-level envelope status — clears the cached token and
// retries exactly once. Any other
// non-200 application status is returned as an error.
func (c *Client) do(ctx context.Context, op string, build requestFunc) (*envelope, error) {
	corrID := correlation.FromContext(ctx)
	ctx = correlation.ToContext(ctx, corrID)
	log := slog.With("op", op, "correlation_id", corrID.String())
	start := time.Now()
	defer func() { metrics.ObserveVendorCall(op, time.Since(start).Seconds()) }()

	env, status, err := c.attempt(ctx, build)
	if err != nil {
		log.Warn("vendor request failed", "error", err)
		metrics.RecordVendorCallError(op, "transport")
		return nil, ferrors.Internal(op, err)
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden ||
		env.Status == http.StatusUnauthorized || env.Status == http.StatusForbidden {
		log.Debug("vendor token rejected, retrying after refresh", "transport_status", status, "vendor_status", env.Status)
		c.clearToken()
		env, status, err = c.attempt(ctx, build)
		if err != nil {
			log.Warn("vendor request failed on retry", "error", err)
			metrics.RecordVendorCallError(op, "transport")
			return nil, ferrors.Internal(op, err)
		}
	}

	if status != http.StatusOK {
		metrics.RecordVendorCallError(op, "transport_status")
		return nil, &ferrors.InternalError{Op: op, Cause: fmt.Errorf("transport status %d", status)}
	}
	if env.Status != 200 {
		metrics.RecordVendorCallError(op, "vendor_status")
		return nil, &ferrors.InternalError{Op: op, Cause: fmt.Errorf("vendor status=%d msg=%s", env.Status, env.Msg)}
	}
	log.Debug("vendor request succeeded")
	return env, nil
}

func (c *Client) attempt(ctx context.Context, build requestFunc) (*envelope, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	tok, err := c.cachedToken(ctx)
	if err != nil {
		return nil, 0, err
	}
	req, err := build(tok)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return &env, resp.StatusCode, nil
		}
		return nil, resp.StatusCode, err
	}
	return &env, resp.StatusCode, nil
}
