package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/averyhale/booking-concierge/internal/abuse"
	"github.com/averyhale/booking-concierge/internal/api/router"
	"github.com/averyhale/booking-concierge/internal/calendar"
	appconfig "github.com/averyhale/booking-concierge/internal/config"
	"github.com/averyhale/booking-concierge/internal/http/handlers"
	"github.com/averyhale/booking-concierge/internal/httpclient"
	"github.com/averyhale/booking-concierge/internal/notify"
	"github.com/averyhale/booking-concierge/internal/observability/metrics"
	"github.com/averyhale/booking-concierge/internal/scheduler"
	"github.com/averyhale/booking-concierge/internal/session"
	"github.com/averyhale/booking-concierge/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-concierge API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bookingMetrics := metrics.NewBookingMetrics(registry)

	// Session store and abuse guard. Redis keeps conversations across
	// restarts; without it everything runs in-process.
	policy := abuse.Policy{
		Window:      cfg.AbuseWindow,
		MaxFailures: cfg.AbuseMaxFailures,
		Lockout:     cfg.AbuseLockout,
	}
	var sessions session.Store
	var guard abuse.Guard
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis unreachable", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		sessions = session.NewRedisStore(redisClient, cfg.SessionTTL, nil)
		guard = abuse.NewRedisGuard(redisClient, policy, logger)
		logger.Info("using redis", "addr", cfg.RedisAddr)
	} else {
		sessions = session.NewMemoryStore(cfg.SessionTTL)
		guard = abuse.NewMemoryGuard(policy, logger)
		logger.Warn("REDIS_ADDR not set, sessions and lockouts are in-memory only")
	}

	// Calendar provider
	if cfg.CalendarBaseURL == "" {
		logger.Error("CALENDAR_BASE_URL is required")
		os.Exit(1)
	}
	requestClient := httpclient.New(httpclient.Config{
		Timeout: cfg.CalendarTimeout,
		Logger:  logger,
	})
	calendarClient, err := calendar.NewClient(calendar.Config{
		BaseURL:     cfg.CalendarBaseURL,
		APIKey:      cfg.CalendarAPIKey,
		CallTimeout: cfg.CalendarTimeout,
		Retry: httpclient.RetryConfig{
			MaxAttempts: cfg.CalendarMaxAttempts,
			BaseDelay:   cfg.CalendarRetryBase,
			MaxDelay:    cfg.CalendarRetryCap,
		},
		Logger: logger,
	}, requestClient)
	if err != nil {
		logger.Error("failed to create calendar client", "error", err)
		os.Exit(1)
	}

	// Dialogue machine
	resolver := scheduler.NewSlotResolver(calendarClient, logger)
	resolver.SetLimits(cfg.MaxCandidateSlots, cfg.MaxPresentedSlots)
	transactor := scheduler.NewTransactor(calendarClient, logger)
	machine := scheduler.NewMachine(resolver, transactor, guard, bookingMetrics, logger)
	machine.SetLookaheadDays(cfg.BookingWindowDays)

	// Confirmation email
	notifier := notify.NewService(newEmailSender(cfg, logger), logger)

	chatHandler := handlers.NewChatHandler(machine, sessions, notifier, cfg.DefaultTimezone, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		ChatHandler:        chatHandler,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: splitOrigins(cfg.CORSAllowedOrigins),
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// newEmailSender picks the confirmation email backend from config. An
// unset provider returns the stub sender.
func newEmailSender(cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch strings.ToLower(cfg.EmailProvider) {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.FromEmail,
			FromName:  cfg.FromName,
		}, logger)
		if sender == nil {
			logger.Warn("EMAIL_PROVIDER=sendgrid but SENDGRID_API_KEY is unset, using stub sender")
			return notify.NewStubEmailSender(logger)
		}
		return sender
	case "ses":
		opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
		if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
			))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
		if err != nil {
			logger.Error("failed to load AWS config, using stub sender", "error", err)
			return notify.NewStubEmailSender(logger)
		}
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.FromEmail,
			FromName:  cfg.FromName,
		}, logger)
	default:
		return notify.NewStubEmailSender(logger)
	}
}

func splitOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
