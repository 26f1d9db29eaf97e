/*
Package main initializes the status monitor backend server.

This backend watches status-page feeds (Atom/RSS or raw HTTP endpoints),
detects new incidents and content changes, and pushes them to connected
dashboards over WebSockets.

Key Features:
  - Concurrent polling with conditional requests and per-source backoff.
  - Change detection for feed entries and raw-body fingerprints.
  - Live WebSocket delivery with bounded per-client queues and replay.
  - REST API to start/stop a run and inspect health and recent events.

Run the application:

	$ go run main.go

Endpoints:
  - POST /api/start: Start monitoring a set of sources.
  - GET /api/status: Run state, per-source health, and recent events.
  - GET /ws: WebSocket stream of change events.
*/
package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"golang.org/x/time/rate"

	"github.com/statuswatch/status-monitor-backend/config"
	_ "github.com/statuswatch/status-monitor-backend/docs"
	"github.com/statuswatch/status-monitor-backend/middleware"
	"github.com/statuswatch/status-monitor-backend/monitoring"
	"github.com/statuswatch/status-monitor-backend/utils"
)

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	clients map[string]*ClientLimiter
	mutex   sync.RWMutex
	rate    rate.Limit
	burst   int
}

// ClientLimiter represents a rate limiter for a specific client
type ClientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*ClientLimiter),
		rate:    r,
		burst:   b,
	}
}

// Allow checks if a client is allowed to make a request
func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	if _, exists := rl.clients[clientID]; !exists {
		rl.clients[clientID] = &ClientLimiter{
			limiter:  rate.NewLimiter(rl.rate, rl.burst),
			lastSeen: time.Now(),
		}
	}

	rl.clients[clientID].lastSeen = time.Now()
	return rl.clients[clientID].limiter.Allow()
}

// Cleanup removes stale client entries
func (rl *RateLimiter) Cleanup() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	for clientID, client := range rl.clients {
		if time.Since(client.lastSeen) > 5*time.Minute {
			delete(rl.clients, clientID)
		}
	}
}

func main() {
	// Load .env when present; deployments set real environment variables
	_ = godotenv.Load()

	// Initialize structured logger
	middleware.InitLogger()
	middleware.Logger.Info("Starting Status Monitor Backend Server")

	// Initialize configuration and services
	appConfig, err := config.NewAppConfig()
	if err != nil {
		log.Fatalf("Failed to initialize application configuration: %v", err)
	}
	defer appConfig.Services.Close()

	// Initialize tracing
	tracerProvider, err := monitoring.InitTracing("status-monitor-backend", appConfig.Config.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer monitoring.ShutdownTracing(tracerProvider)

	// Resolve services from the DI container
	handler, err := appConfig.Services.Container.GetHandler()
	if err != nil {
		log.Fatalf("Failed to initialize handler: %v", err)
	}
	healthHandler, err := appConfig.Services.Container.GetHealthHandler()
	if err != nil {
		log.Fatalf("Failed to initialize health handler: %v", err)
	}
	manager, err := appConfig.Services.Container.GetManager()
	if err != nil {
		log.Fatalf("Failed to initialize monitor manager: %v", err)
	}
	eventBus, err := appConfig.Services.Container.GetBus()
	if err != nil {
		log.Fatalf("Failed to initialize event bus: %v", err)
	}
	gw, err := appConfig.Services.Container.GetGateway()
	if err != nil {
		log.Fatalf("Failed to initialize websocket gateway: %v", err)
	}

	// Initialize alert manager and bind its rules to the live pipeline
	alertManager := monitoring.NewAlertManager(middleware.Logger)
	defer alertManager.Stop()

	alertManager.UpdateRuleCondition("Sources Failing", func() bool {
		return manager.FailingSources() > 0
	})
	alertManager.UpdateRuleCondition("All Sources Down", func() bool {
		sources := len(manager.Health())
		return manager.Running() && sources > 0 && manager.FailingSources() == sources
	})
	// Rule evaluation is single-threaded, so plain closure state is enough
	// to track whether the drop counter is still climbing.
	var lastDropped uint64
	alertManager.UpdateRuleCondition("Slow Subscribers", func() bool {
		dropped := eventBus.DroppedTotal()
		climbing := dropped > lastDropped
		lastDropped = dropped
		return climbing
	})

	if ac := appConfig.Config.AlertingConfig; ac.MailgunDomain != "" && ac.MailgunAPIKey != "" && ac.AlertRecipient != "" {
		alertManager.AddNotifier(monitoring.NewMailgunNotifier(ac.MailgunDomain, ac.MailgunAPIKey, ac.AlertSender, ac.AlertRecipient))
		middleware.Logger.Info("Mailgun alert notifications enabled")
	}

	// Optionally begin a run over the default sources right away
	if appConfig.Config.AutoStart {
		specs, err := appConfig.Config.DefaultSourceSpecs()
		if err != nil {
			log.Fatalf("Failed to load default sources: %v", err)
		}
		if err := manager.Start(specs); err != nil {
			log.Fatalf("Failed to start monitor: %v", err)
		}
	}

	// Initialize rate limiter with configuration
	limiter := NewRateLimiter(rate.Limit(appConfig.Config.RateLimitRequestsPerMinute/60.0), appConfig.Config.RateLimitBurst)

	// Start cleanup goroutine with configured interval
	go func() {
		ticker := time.NewTicker(appConfig.Config.ClientCleanupInterval)
		defer ticker.Stop()
		for range ticker.C {
			limiter.Cleanup()
		}
	}()

	// Initialize the router
	router := mux.NewRouter()

	// Setup metrics endpoint
	monitoring.SetupMetricsEndpoint(router)

	// Setup health check endpoints (no rate limiting)
	router.HandleFunc("/health", healthHandler.HandleHealthCheck).Methods("GET")
	router.HandleFunc("/health/live", healthHandler.HandleLivenessCheck).Methods("GET")
	router.HandleFunc("/health/ready", healthHandler.HandleReadinessCheck).Methods("GET")

	// Setup Swagger documentation
	router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	// Setup API routes with rate limiting and monitoring middleware
	router.HandleFunc("/api/start", MonitoringMiddleware(RateLimitMiddleware(limiter, handler.HandleStartMonitor))).Methods("POST")
	router.HandleFunc("/api/stop", MonitoringMiddleware(RateLimitMiddleware(limiter, handler.HandleStopMonitor))).Methods("POST")
	router.HandleFunc("/api/status", MonitoringMiddleware(RateLimitMiddleware(limiter, handler.HandleGetStatus))).Methods("GET")
	router.HandleFunc("/api/events", MonitoringMiddleware(RateLimitMiddleware(limiter, handler.HandleGetEvents))).Methods("GET")
	router.HandleFunc("/api/sources", MonitoringMiddleware(RateLimitMiddleware(limiter, handler.HandleGetSources))).Methods("GET")

	// WebSocket stream. MonitoringMiddleware is skipped here: its response
	// wrapper cannot be hijacked, and the gateway keeps its own connection
	// metrics.
	router.HandleFunc("/ws", RateLimitMiddleware(limiter, gw.HandleWebSocket)).Methods("GET")

	// Apply logging middleware
	withLogging := middleware.LoggingMiddleware(router)

	// Attach the CORS middleware with enhanced configuration
	withCORS := CORSMiddleware(withLogging, appConfig.Config)

	addr := ":" + appConfig.Config.ServerPort
	server := &http.Server{
		Addr:    addr,
		Handler: withCORS,
	}

	// Start the server
	go func() {
		fmt.Printf("Server is running on http://localhost%s\n", addr)
		fmt.Printf("Metrics available at http://localhost%s/metrics\n", addr)
		middleware.Logger.WithField("addr", addr).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for a termination signal, then drain within the grace period
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	middleware.Logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), appConfig.Config.ShutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		middleware.Logger.WithError(err).Warn("Server shutdown did not complete cleanly")
	}

	// Stop the pipeline before the deferred trace shutdown flushes exporters
	if err := appConfig.Services.Close(); err != nil {
		middleware.Logger.WithError(err).Warn("Service shutdown reported an error")
	}
	middleware.Logger.Info("Server stopped")
}

// MonitoringMiddleware adds metrics and tracing to HTTP handlers
func MonitoringMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create tracing span
		ctx, span := monitoring.CreateSpan(r.Context(), fmt.Sprintf("%s %s", r.Method, r.URL.Path))
		defer span.End()

		// Set span attributes
		monitoring.SetSpanAttributes(span, map[string]interface{}{
			"http.method":     r.Method,
			"http.url":        r.URL.String(),
			"http.user_agent": r.UserAgent(),
			"remote.addr":     r.RemoteAddr,
		})

		// Update request context with tracing
		r = r.WithContext(ctx)

		// Wrap response writer to capture status code
		rw := &responseWriter{ResponseWriter: w, statusCode: 200}

		// Call the next handler
		next.ServeHTTP(rw, r)

		// Record metrics
		duration := time.Since(start).Seconds()
		status := fmt.Sprintf("%d", rw.statusCode)

		monitoring.RecordHTTPRequest(r.Method, r.URL.Path, status, duration)

		// Update span with response info
		monitoring.SetSpanAttributes(span, map[string]interface{}{
			"http.status_code": rw.statusCode,
			"duration_seconds": duration,
		})

		// Record error if status indicates failure
		if rw.statusCode >= 400 {
			monitoring.SetSpanError(span, fmt.Errorf("HTTP %d", rw.statusCode))
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// getClientIdentifier generates a robust client identifier using multiple factors
func getClientIdentifier(r *http.Request) string {
	var identifiers []string

	// 1. IP Address (with X-Forwarded-For support)
	ip := r.RemoteAddr
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// Take the first IP from the forwarded chain
		ips := strings.Split(forwarded, ",")
		ip = strings.TrimSpace(ips[0])
	} else if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		ip = realIP
	}
	identifiers = append(identifiers, "ip:"+ip)

	// 2. User Agent (normalized)
	userAgent := r.Header.Get("User-Agent")
	if userAgent != "" {
		// Normalize user agent by removing version numbers and extra spaces
		userAgent = strings.ToLower(userAgent)
		userAgent = strings.Fields(userAgent)[0] // Take first word
		identifiers = append(identifiers, "ua:"+userAgent)
	}

	// 3. Accept-Language header
	if acceptLang := r.Header.Get("Accept-Language"); acceptLang != "" {
		// Take the leading language code; the header can be a single byte
		lang := strings.ToLower(strings.TrimSpace(acceptLang))
		lang = lang[:min(2, len(lang))]
		identifiers = append(identifiers, "lang:"+lang)
	}

	// 4. Session/Cookie identifier (if available)
	if cookie, err := r.Cookie("session_id"); err == nil && cookie.Value != "" {
		// Hash the cookie value for privacy
		hash := sha256.Sum256([]byte(cookie.Value))
		identifiers = append(identifiers, "sess:"+fmt.Sprintf("%x", hash)[:8])
	}

	// Combine all identifiers
	combined := strings.Join(identifiers, "|")

	// Create final hash for client ID
	finalHash := sha256.Sum256([]byte(combined))
	return fmt.Sprintf("%x", finalHash)[:16]
}

// RateLimitMiddleware implements enhanced rate limiting for HTTP handlers
func RateLimitMiddleware(limiter *RateLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Use robust client identifier instead of just IP
		clientID := getClientIdentifier(r)

		if !limiter.Allow(clientID) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = utils.GenerateRequestID()
			}
			middleware.RespondRateLimited(w, fmt.Errorf("rate limit exceeded"), requestID)
			return
		}

		next.ServeHTTP(w, r)
	}
}

// isOriginAllowed checks if the origin is allowed based on CORS configuration
func isOriginAllowed(origin string, appConfig *config.Config) bool {
	allowedOrigins := appConfig.AllowedOrigins()
	corsConfig := appConfig.CORSConfig

	// Check exact matches first
	for _, allowedOrigin := range allowedOrigins {
		if origin == allowedOrigin {
			return true
		}
	}

	// If subdomains are allowed, check domain patterns
	if corsConfig.AllowSubdomains {
		// Check against explicitly allowed domains
		for _, domain := range corsConfig.AllowedDomains {
			if origin == "https://"+domain || origin == "http://"+domain {
				return true
			}
			if strings.HasSuffix(origin, "."+domain) {
				return true
			}
		}

		// Also check if origin matches any allowed origin with wildcard subdomain
		for _, allowedOrigin := range allowedOrigins {
			if strings.HasPrefix(allowedOrigin, "*.") {
				domain := allowedOrigin[2:] // Remove "*."
				if origin == "https://"+domain || origin == "http://"+domain {
					return true
				}
				if strings.HasSuffix(origin, "."+domain) {
					return true
				}
			}
		}
	}

	return false
}

func CORSMiddleware(next http.Handler, appConfig *config.Config) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		corsConfig := appConfig.CORSConfig

		// Set CORS headers based on configuration
		if origin != "" && isOriginAllowed(origin, appConfig) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}

		// Set allowed methods
		if len(corsConfig.AllowedMethods) > 0 {
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(corsConfig.AllowedMethods, ", "))
		} else {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		}

		// Set allowed headers
		if len(corsConfig.AllowedHeaders) > 0 {
			w.Header().Set("Access-Control-Allow-Headers", strings.Join(corsConfig.AllowedHeaders, ", "))
		} else {
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, X-Request-ID")
		}

		// Set exposed headers
		if len(corsConfig.ExposedHeaders) > 0 {
			w.Header().Set("Access-Control-Expose-Headers", strings.Join(corsConfig.ExposedHeaders, ", "))
		}

		// Set credentials
		if corsConfig.AllowCredentials {
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		// Set max age
		if corsConfig.MaxAge > 0 {
			w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", corsConfig.MaxAge))
		}

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
