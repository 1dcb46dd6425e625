// session-load drives the gateway with many concurrent sessions so the
// tenant broker's cache, claim and idle paths can be observed under load.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/repairradar/repairradar/internal/gateway/jwt"
	"github.com/repairradar/repairradar/internal/gateway/middleware"
)

// Config of one load run
type Config struct {
	BaseURL     string
	Path        string
	Secret      string
	AdminToken  string
	Users       []string
	Sessions    int
	Concurrency int
	Duration    time.Duration
	RPS         int
	Timeout     time.Duration
	LogoutRatio float64
}

// Result aggregates one run
type Result struct {
	TotalRequests  int64
	FailedRequests int64
	Logouts        int64
	TotalDuration  time.Duration
	StatusCodes    map[int]int64
	Errors         map[string]int64

	mu        sync.Mutex
	latencies []time.Duration
}

// LoadTest replays requests over a fixed pool of session tokens
type LoadTest struct {
	config  *Config
	client  *http.Client
	logger  *zap.Logger
	limiter *rate.Limiter
	tokens  []string
	next    atomic.Uint64
	result  *Result
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Gateway base URL")
	path := flag.String("path", "/api/v1/my-data", "Authenticated path to request")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HS256 secret shared with the gateway")
	adminToken := flag.String("admin-token", os.Getenv("ADMIN_TOKEN"), "Operator token for the broker stats report")
	users := flag.String("users", "", "Comma separated user ids present in the main database")
	sessions := flag.Int("sessions", 50, "Distinct session tokens to spread requests over")
	concurrency := flag.Int("c", 10, "Number of concurrent workers")
	duration := flag.Duration("d", 10*time.Second, "Test duration")
	rps := flag.Int("rps", 0, "Requests per second (0 = unlimited)")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	logoutRatio := flag.Float64("logout", 0, "Fraction of requests replaced by a logout")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if *secret == "" || *users == "" {
		logger.Fatal("both -secret and -users are required")
	}

	config := &Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Path:        *path,
		Secret:      *secret,
		AdminToken:  *adminToken,
		Users:       strings.Split(*users, ","),
		Sessions:    *sessions,
		Concurrency: *concurrency,
		Duration:    *duration,
		RPS:         *rps,
		Timeout:     *timeout,
		LogoutRatio: *logoutRatio,
	}

	lt, err := NewLoadTest(config, logger)
	if err != nil {
		logger.Fatal("failed to prepare sessions", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := lt.Run(ctx); err != nil {
		logger.Error("load test aborted", zap.Error(err))
	}
	lt.PrintResult(os.Stdout)
	lt.PrintBrokerStats(ctx, os.Stdout)
}

// NewLoadTest signs one token per session, cycling through the users
func NewLoadTest(config *Config, logger *zap.Logger) (*LoadTest, error) {
	tokens, err := mintTokens(config.Secret, config.Users, config.Sessions, time.Now().Add(config.Duration+time.Hour))
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if config.RPS > 0 {
		limit = rate.Limit(config.RPS)
	}

	return &LoadTest{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        config.Concurrency,
				MaxIdleConnsPerHost: config.Concurrency,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger:  logger,
		limiter: rate.NewLimiter(limit, max(config.Concurrency, 1)),
		tokens:  tokens,
		result: &Result{
			StatusCodes: make(map[int]int64),
			Errors:      make(map[string]int64),
			latencies:   make([]time.Duration, 0, 10000),
		},
	}, nil
}

func mintTokens(secret string, users []string, sessions int, expiry time.Time) ([]string, error) {
	if len(users) == 0 || sessions <= 0 {
		return nil, fmt.Errorf("need at least one user and one session")
	}

	tokens := make([]string, sessions)
	for i := range tokens {
		user := strings.TrimSpace(users[i%len(users)])
		claims := jwt.Claims{
			UserID: user,
			RegisteredClaims: gojwt.RegisteredClaims{
				ID:        fmt.Sprintf("load-%d", i),
				IssuedAt:  gojwt.NewNumericDate(time.Now()),
				ExpiresAt: gojwt.NewNumericDate(expiry),
			},
		}
		token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		if err != nil {
			return nil, fmt.Errorf("signing token for %s: %w", user, err)
		}
		tokens[i] = token
	}
	return tokens, nil
}

// Run drives the workers until the duration elapses or ctx is cancelled
func (lt *LoadTest) Run(ctx context.Context) error {
	lt.logger.Info("starting session load",
		zap.String("target", lt.config.BaseURL+lt.config.Path),
		zap.Int("sessions", len(lt.tokens)),
		zap.Int("concurrency", lt.config.Concurrency),
		zap.Duration("duration", lt.config.Duration),
		zap.Int("rps", lt.config.RPS))

	ctx, cancel := context.WithTimeout(ctx, lt.config.Duration)
	defer cancel()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < lt.config.Concurrency; i++ {
		g.Go(func() error {
			for {
				if err := lt.limiter.Wait(ctx); err != nil {
					return nil
				}
				lt.sendRequest(ctx)
			}
		})
	}
	err := g.Wait()
	lt.result.TotalDuration = time.Since(start)
	return err
}

func (lt *LoadTest) sendRequest(ctx context.Context) {
	n := lt.next.Add(1)
	token := lt.tokens[n%uint64(len(lt.tokens))]

	method, path := http.MethodGet, lt.config.Path
	logout := lt.config.LogoutRatio > 0 && float64(n%1000) < lt.config.LogoutRatio*1000
	if logout {
		method, path = http.MethodPost, "/api/v1/logout"
	}

	req, err := http.NewRequestWithContext(ctx, method, lt.config.BaseURL+path, nil)
	if err != nil {
		lt.recordError("request_creation", err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := lt.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		lt.recordError("request_execution", err)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if logout {
		atomic.AddInt64(&lt.result.Logouts, 1)
	}
	lt.record(resp.StatusCode, latency)
}

func (lt *LoadTest) record(code int, latency time.Duration) {
	lt.result.mu.Lock()
	defer lt.result.mu.Unlock()
	lt.result.TotalRequests++
	lt.result.StatusCodes[code]++
	lt.result.latencies = append(lt.result.latencies, latency)
}

func (lt *LoadTest) recordError(kind string, err error) {
	lt.result.mu.Lock()
	defer lt.result.mu.Unlock()
	lt.result.TotalRequests++
	lt.result.FailedRequests++
	lt.result.Errors[kind+": "+err.Error()]++
}

// percentile expects sorted latencies
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// PrintResult writes the summary table
func (lt *LoadTest) PrintResult(w io.Writer) {
	r := lt.result
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := make([]time.Duration, len(r.latencies))
	copy(sorted, r.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	line := strings.Repeat("=", 60)
	fmt.Fprintln(w, "\n"+line)
	fmt.Fprintln(w, "Session Load Results")
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "Target:           %s%s\n", lt.config.BaseURL, lt.config.Path)
	fmt.Fprintf(w, "Sessions:         %d\n", len(lt.tokens))
	fmt.Fprintf(w, "Duration:         %v\n", r.TotalDuration.Round(time.Millisecond))
	fmt.Fprintf(w, "Total Requests:   %d\n", r.TotalRequests)
	fmt.Fprintf(w, "Failed:           %d\n", r.FailedRequests)
	fmt.Fprintf(w, "Logouts:          %d\n", r.Logouts)
	if secs := r.TotalDuration.Seconds(); secs > 0 {
		fmt.Fprintf(w, "Throughput:       %.2f req/s\n", float64(len(sorted))/secs)
	}
	if len(sorted) > 0 {
		fmt.Fprintf(w, "Min / Max:        %v / %v\n", sorted[0], sorted[len(sorted)-1])
		fmt.Fprintf(w, "P50 / P95 / P99:  %v / %v / %v\n",
			percentile(sorted, 0.50), percentile(sorted, 0.95), percentile(sorted, 0.99))
	}

	codes := make([]int, 0, len(r.StatusCodes))
	for code := range r.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	fmt.Fprintln(w, strings.Repeat("-", 60))
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, r.StatusCodes[code])
	}
	for msg, count := range r.Errors {
		fmt.Fprintf(w, "  %s: %d\n", msg, count)
	}
	fmt.Fprintln(w, line)
}

// PrintBrokerStats fetches the gateway's cache occupancy after the run.
// It needs the operator token.
func (lt *LoadTest) PrintBrokerStats(ctx context.Context, w io.Writer) {
	if lt.config.AdminToken == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lt.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lt.config.BaseURL+"/api/v1/admin/broker/stats", nil)
	if err != nil {
		return
	}
	req.Header.Set(middleware.AdminTokenHeader, lt.config.AdminToken)

	resp, err := lt.client.Do(req)
	if err != nil {
		lt.logger.Warn("failed to fetch broker stats", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Fprintf(w, "Broker stats (%d): %s\n", resp.StatusCode, strings.TrimSpace(string(body)))
}
