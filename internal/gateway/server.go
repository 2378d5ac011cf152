// Package gateway runs a local HTTP gateway embedding the same
// interception flow as pkg/guard, for callers that are not written in Go.
// It accepts chat-style completion requests, scans the user-authored text,
// and either rejects with the sanitized verdict or forwards the request
// bytes unchanged to the configured upstream provider.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trustfence/trustfence-go/pkg/guard"
	"github.com/trustfence/trustfence-go/pkg/scan"
)

// Config holds the gateway's immutable runtime settings.
type Config struct {
	// UpstreamURL is the provider API base the gateway forwards to,
	// e.g. https://api.openai.com.
	UpstreamURL string
	// UpstreamKey is sent to the upstream as the bearer credential. When
	// empty, the caller's own Authorization header is passed through.
	UpstreamKey string
	// CORSOrigins lists allowed browser origins. Empty disables CORS.
	CORSOrigins []string
	// RateLimitRPS and RateLimitBurst bound per-client request rates.
	// Zero RPS disables rate limiting.
	RateLimitRPS   int
	RateLimitBurst int
	// UpstreamTimeout bounds the forwarded call; zero means 60 seconds.
	UpstreamTimeout time.Duration
}

// Server is the gateway HTTP server.
type Server struct {
	cfg     Config
	scanner guard.Scanner
	logger  *zap.Logger
	http    *http.Client
	engine  *gin.Engine
}

// New builds a gateway Server around scanner.
func New(cfg Config, scanner guard.Scanner, logger *zap.Logger) (*Server, error) {
	if scanner == nil {
		return nil, errors.New("gateway: scanner must not be nil")
	}
	if !strings.HasPrefix(cfg.UpstreamURL, "http://") && !strings.HasPrefix(cfg.UpstreamURL, "https://") {
		return nil, fmt.Errorf("gateway: not a valid upstream URL: %q", cfg.UpstreamURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.UpstreamTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	s := &Server{
		cfg:     cfg,
		scanner: scanner,
		logger:  logger,
		http:    &http.Client{Timeout: timeout},
	}
	s.engine = s.buildEngine()
	return s, nil
}

// Handler exposes the router for tests and custom servers.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until the listener fails or the process is stopped.
func (s *Server) Run(addr string) error {
	s.logger.Info("gateway listening", zap.String("addr", addr))
	return s.engine.Run(addr)
}

func (s *Server) buildEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(prometheusMiddleware())

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: s.cfg.CORSOrigins,
			AllowMethods: []string{"POST", "GET", "OPTIONS"},
			AllowHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	if s.cfg.RateLimitRPS > 0 {
		burst := s.cfg.RateLimitBurst
		if burst == 0 {
			burst = s.cfg.RateLimitRPS
		}
		r.Use(rateLimiter(s.cfg.RateLimitRPS, burst))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metricsHandler())
	r.POST("/v1/chat/completions", s.handleChatCompletions)
	return r
}

// chatBody is the slice of the request the gateway needs for extraction.
// The full body is forwarded verbatim; this struct is never re-serialized.
type chatBody struct {
	Messages []guard.ChatMessage `json:"messages"`
}

func (s *Server) handleChatCompletions(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 4<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read request body"})
		return
	}

	var parsed chatBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "request body is not valid JSON"})
		return
	}

	text := guard.ExtractChatText(parsed.Messages)
	if strings.TrimSpace(text) != "" {
		verdict, err := s.scanner.Scan(c.Request.Context(), text)
		if err != nil {
			// Fail-closed scan errors block with 502: the gateway could
			// not establish safety and is configured not to guess.
			var scanErr *scan.ScanError
			if errors.As(err, &scanErr) {
				c.JSON(http.StatusBadGateway, gin.H{"error": "scan unavailable", "detail": scanErr.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !verdict.Safe {
			gwBlockedTotal.WithLabelValues(string(verdict.ThreatType)).Inc()
			s.logger.Warn("request blocked",
				zap.String("threat_type", string(verdict.ThreatType)),
				zap.String("confidence", string(verdict.Confidence)),
			)
			c.JSON(http.StatusForbidden, gin.H{"error": "request blocked", "verdict": verdict})
			return
		}
	}

	s.forward(c, body)
}

// forward relays the original request bytes to the upstream and streams the
// native response back unchanged.
func (s *Server) forward(c *gin.Context, body []byte) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	url := strings.TrimRight(s.cfg.UpstreamURL, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "build upstream request"})
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.UpstreamKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.UpstreamKey)
	} else if auth := c.GetHeader("Authorization"); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		s.logger.Error("upstream request failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream unavailable"})
		return
	}
	defer resp.Body.Close() //nolint:errcheck

	gwForwardedTotal.Inc()

	for k, vals := range resp.Header {
		for _, v := range vals {
			c.Writer.Header().Add(k, v)
		}
	}
	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		s.logger.Warn("relay upstream response", zap.Error(err))
	}
}
