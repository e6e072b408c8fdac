// Command server runs the admission layer as a standalone HTTP service: rate
// limited event intake, Facebook webhook verification, and the OAuth
// start/callback pair protected by the signed-state codec.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/eventgate/admission"
	"github.com/eventgate/admission/instrumentation"
	"github.com/eventgate/admission/internal/config"
	mw "github.com/eventgate/admission/middleware"
	"github.com/eventgate/admission/providers/facebook"
	"github.com/eventgate/admission/security"
	"github.com/eventgate/admission/store"
)

const version = "0.1.0"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := newStore(ctx, cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}
	defer closeStore()

	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName:    "eventgate-admission",
		ServiceVersion: version,
		Enabled:        true,
	})
	if err != nil {
		return fmt.Errorf("initializing instrumentation: %w", err)
	}
	defer inst.Shutdown(context.Background())

	auditor := security.NewAuditor(logger)

	adm, err := admission.New(admission.Config{
		Store:           st,
		Logger:          logger,
		Auditor:         auditor,
		Instrumentation: inst,
	})
	if err != nil {
		return fmt.Errorf("initializing admission: %w", err)
	}

	throttle := mw.NewThrottle(mw.ThrottleConfig{
		Rate:            cfg.Throttle.Rate,
		Burst:           cfg.Throttle.Burst,
		Logger:          logger,
		Auditor:         auditor,
		Instrumentation: inst,
	})
	defer throttle.Stop()

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders(cfg.Server.PublicURL))
	r.Use(throttle.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok")
	})

	registerWebhookRoutes(r, adm, cfg.Secrets, logger, auditor, inst)

	if err := registerOAuthRoutes(r, adm, cfg, logger, auditor, inst); err != nil {
		return err
	}

	registerAdminRoutes(r, adm, throttle, cfg.Admin, logger, auditor)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// newStore picks Redis when an address is configured, the in-process memory
// store otherwise.
func newStore(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (store.Store, func(), error) {
	if cfg.Addr == "" {
		logger.Info("using in-process memory store")
		return store.NewMemory(ctx), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, nil, fmt.Errorf("redis unreachable at %s: %w", cfg.Addr, err)
	}

	logger.Info("using redis store", "addr", cfg.Addr)
	return store.NewRedis(client), func() {
		if err := client.Close(); err != nil {
			logger.Warn("closing redis client", "error", err)
		}
	}, nil
}

func registerWebhookRoutes(r chi.Router, adm *admission.Admission, secrets config.SecretsConfig, logger *slog.Logger, auditor *security.Auditor, inst *instrumentation.Instrumentation) {
	if secrets.WebhookSecret == "" {
		logger.Warn("WEBHOOK_SECRET not set, webhook routes disabled")
		return
	}

	limited := r.With(mw.RateLimit(adm, admission.PolicyWebhook))

	// Subscription handshake: echo hub.challenge when the verify token
	// matches.
	limited.Get("/webhooks/facebook", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		if q.Get("hub.mode") != "subscribe" ||
			!security.ConstantTimeEquals(q.Get("hub.verify_token"), secrets.VerifyToken) {
			http.Error(w, "verification failed", http.StatusForbidden)
			return
		}
		io.WriteString(w, q.Get("hub.challenge"))
	})

	limited.With(mw.VerifySignature(mw.SignatureConfig{
		Secret:          secrets.WebhookSecret,
		Logger:          logger,
		Auditor:         auditor,
		Instrumentation: inst,
	})).Post("/webhooks/facebook", func(w http.ResponseWriter, req *http.Request) {
		// Intake only: the event pipeline picks the payload up elsewhere.
		// Here the delivery is acknowledged once its signature verified.
		w.WriteHeader(http.StatusOK)
	})
}

func registerOAuthRoutes(r chi.Router, adm *admission.Admission, cfg config.Config, logger *slog.Logger, auditor *security.Auditor, inst *instrumentation.Instrumentation) error {
	if cfg.Facebook.AppID == "" {
		logger.Warn("FACEBOOK_APP_ID not set, oauth routes disabled")
		return nil
	}

	fb, err := facebook.NewProvider(&facebook.Config{
		AppID:          cfg.Facebook.AppID,
		AppSecret:      cfg.Facebook.AppSecret,
		RedirectURL:    cfg.Facebook.RedirectURL,
		StateSecret:    cfg.Secrets.StateSecret,
		AllowedOrigins: cfg.Secrets.AllowedOrigins,
	})
	if err != nil {
		return fmt.Errorf("initializing facebook provider: %w", err)
	}

	limited := r.With(mw.RateLimit(adm, admission.PolicyOAuth))

	limited.Get("/oauth/start", func(w http.ResponseWriter, req *http.Request) {
		origin := req.URL.Query().Get("origin")
		if origin == "" {
			origin = cfg.Secrets.AllowedOrigins[0]
		}
		http.Redirect(w, req, fb.AuthURL(origin), http.StatusFound)
	})

	limited.Get("/oauth/callback", func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		key := security.ClientKey(req.Header.Get("X-Forwarded-For"), req.RemoteAddr)

		origin, err := fb.VerifyCallbackState(req.URL.Query().Get("state"))
		if inst != nil {
			inst.Metrics().RecordStateVerification(ctx, err == nil)
		}
		if err != nil {
			logger.Warn("oauth state rejected", "key", key, "error", err)
			auditor.LogStateRejected(key, err)
			http.Error(w, "invalid state", http.StatusUnauthorized)
			return
		}

		code := req.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		token, err := fb.Exchange(ctx, code)
		if err != nil {
			logger.Warn("code exchange failed", "key", key, "error", err)
			http.Error(w, "exchange failed", http.StatusBadGateway)
			return
		}
		if _, err := fb.ExchangeLongLived(ctx, token.AccessToken); err != nil {
			logger.Warn("long-lived exchange failed", "key", key, "error", err)
		}

		// Safe to redirect: the origin survived signature and allow-list.
		http.Redirect(w, req, origin+"/connected", http.StatusFound)
	})
	return nil
}

func registerAdminRoutes(r chi.Router, adm *admission.Admission, throttle *mw.Throttle, cfg config.AdminConfig, logger *slog.Logger, auditor *security.Auditor) {
	if cfg.Username == "" || cfg.PasswordHash == "" {
		logger.Warn("admin credentials not set, admin routes disabled")
		return
	}

	protected := r.With(mw.BasicAuth(mw.BasicAuthConfig{
		Username:     cfg.Username,
		PasswordHash: cfg.PasswordHash,
		Realm:        "admission",
		Guard:        adm.Guard(),
		Logger:       logger,
		Auditor:      auditor,
	}))

	protected.Get("/admin/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"throttle_entries": throttle.Len(),
			"request_id":       mw.RequestIDFromContext(req.Context()),
		})
	})
}
