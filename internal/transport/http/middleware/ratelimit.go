package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"branchpay/internal/transport/http/api"
	"branchpay/internal/transport/http/shared"
)

// RateCounter counts hits per key in fixed windows.
type RateCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int, resetIn time.Duration, err error)
}

// NewRateCounter shares limits across instances through Redis when client is
// non-nil and counts in memory otherwise.
func NewRateCounter(client *redis.Client) RateCounter {
	if client == nil {
		return NewMemoryCounter()
	}
	return RedisCounter{Client: client, Prefix: "branchpay:ratelimit:"}
}

type memWindow struct {
	count int
	reset time.Time
}

type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*memWindow
	swept   time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{windows: map[string]*memWindow{}}
}

func (c *MemoryCounter) Hit(_ context.Context, key string, size time.Duration) (int, time.Duration, error) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.swept) > size {
		for k, w := range c.windows {
			if now.After(w.reset) {
				delete(c.windows, k)
			}
		}
		c.swept = now
	}

	w, ok := c.windows[key]
	if !ok || now.After(w.reset) {
		w = &memWindow{reset: now.Add(size)}
		c.windows[key] = w
	}
	w.count++
	return w.count, w.reset.Sub(now), nil
}

type RedisCounter struct {
	Client redis.Cmdable
	Prefix string
}

func (c RedisCounter) Hit(ctx context.Context, key string, size time.Duration) (int, time.Duration, error) {
	full := c.Prefix + key
	n, err := c.Client.Incr(ctx, full).Result()
	if err != nil {
		return 0, 0, err
	}
	if n == 1 {
		if err := c.Client.PExpire(ctx, full, size).Err(); err != nil {
			return 0, 0, err
		}
		return 1, size, nil
	}
	ttl, err := c.Client.PTTL(ctx, full).Result()
	if err != nil {
		return 0, 0, err
	}
	if ttl < 0 {
		// expiry lost between INCR and PEXPIRE on a previous hit
		_ = c.Client.PExpire(ctx, full, size).Err()
		ttl = size
	}
	return int(n), ttl, nil
}

type RateLimitKeyFunc func(r *http.Request) string

type limiterConfig struct {
	counter RateCounter
	key     RateLimitKeyFunc
}

type RateLimitOption func(*limiterConfig)

func WithCounter(counter RateCounter) RateLimitOption {
	return func(c *limiterConfig) {
		if counter != nil {
			c.counter = counter
		}
	}
}

func buildConfig(opts []RateLimitOption) limiterConfig {
	cfg := limiterConfig{key: actorOrIPKey}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.counter == nil {
		cfg.counter = NewMemoryCounter()
	}
	return cfg
}

type limiter struct {
	name    string
	limit   int
	window  time.Duration
	key     RateLimitKeyFunc
	counter RateCounter
}

// RateLimit applies one budget of limit requests per window to every API
// call, keyed by the signed-in user or the client IP.
func RateLimit(limit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	cfg := buildConfig(opts)
	l := limiter{name: "api", limit: limit, window: window, key: cfg.key, counter: cfg.counter}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.allow(w, r) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// SensitiveMutationRateLimit adds tighter budgets on login and MFA calls
// (per IP and per submitted email) and on payroll runs, finalize/reopen and
// attendance bulk writes (per actor).
func SensitiveMutationRateLimit(baseLimit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	cfg := buildConfig(opts)
	authLimit := max(baseLimit/4, 1)
	byIP := limiter{name: "auth-ip", limit: authLimit, window: window, key: clientIPKey, counter: cfg.counter}
	byEmail := limiter{name: "auth-email", limit: authLimit, window: window, key: AuthEmailOrIPKey("email"), counter: cfg.counter}
	byActor := limiter{name: "mutation", limit: max(baseLimit/2, 1), window: window, key: actorOrIPKey, counter: cfg.counter}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch classifyMutation(r) {
			case mutationAuth:
				if !byIP.allow(w, r) || !byEmail.allow(w, r) {
					return
				}
			case mutationPayroll, mutationBulk:
				if !byActor.allow(w, r) {
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l limiter) allow(w http.ResponseWriter, r *http.Request) bool {
	if l.limit <= 0 {
		return true
	}
	key := l.key(r)
	if key == "" {
		key = clientIPKey(r)
	}

	count, resetIn, err := l.counter.Hit(r.Context(), l.name+":"+key, l.window)
	if err != nil {
		slog.Warn("rate limit counter unavailable", "limiter", l.name, "err", err)
		return true
	}

	resetSec := int((resetIn + time.Second - 1) / time.Second)
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(l.limit-count, 0)))
	h.Set("X-RateLimit-Reset", strconv.Itoa(resetSec))
	if count <= l.limit {
		return true
	}

	h.Set("Retry-After", strconv.Itoa(max(resetSec, 1)))
	slog.Warn("rate limit exceeded", "limiter", l.name, "key", key, "method", r.Method, "path", r.URL.Path)
	api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
	return false
}

// AuthEmailOrIPKey keys login attempts by the email in the JSON body so a
// single address cannot be brute forced from many IPs.
func AuthEmailOrIPKey(field string) RateLimitKeyFunc {
	if field = strings.TrimSpace(field); field == "" {
		field = "email"
	}
	return func(r *http.Request) string {
		if email := peekJSONString(r, field); email != "" {
			return "email:" + strings.ToLower(email)
		}
		return clientIPKey(r)
	}
}

func actorOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.UserID
	}
	return clientIPKey(r)
}

func clientIPKey(r *http.Request) string {
	return "ip:" + shared.ClientIP(r)
}

// peekJSONString reads one string field from a JSON body and restores the
// body for the handler.
func peekJSONString(r *http.Request, field string) string {
	if r.Body == nil || !strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(raw), r.Body), r.Body}
	if err != nil || len(raw) == 0 {
		return ""
	}
	var payload map[string]any
	if json.Unmarshal(raw, &payload) != nil {
		return ""
	}
	value, _ := payload[field].(string)
	return strings.TrimSpace(value)
}

type mutationClass int

const (
	mutationNone mutationClass = iota
	mutationAuth
	mutationPayroll
	mutationBulk
)

var payrollActions = []string{"/generate", "/finalize", "/reopen"}

func classifyMutation(r *http.Request) mutationClass {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return mutationNone
	}

	path := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1"), "/")
	switch {
	case path == "/auth/login", strings.HasPrefix(path, "/auth/mfa/"):
		return mutationAuth
	case path == "/daily-logs/import", path == "/daily-logs/mark-present":
		return mutationBulk
	case strings.HasPrefix(path, "/payroll/periods/"):
		for _, action := range payrollActions {
			if strings.HasSuffix(path, action) {
				return mutationPayroll
			}
		}
	}
	return mutationNone
}
