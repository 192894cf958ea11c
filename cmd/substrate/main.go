// Command substrate runs the governance substrate's HTTP surface: the
// Intent -> Decision -> Semantic Validation -> Audit pipeline behind a
// single /v1/evaluate endpoint, plus health checks and escalation
// resolution.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/agentgov/substrate/pkg/api"
	"github.com/agentgov/substrate/pkg/audit"
	"github.com/agentgov/substrate/pkg/auth"
	"github.com/agentgov/substrate/pkg/config"
	"github.com/agentgov/substrate/pkg/contracts"
	"github.com/agentgov/substrate/pkg/escalation"
	"github.com/agentgov/substrate/pkg/governance"
	"github.com/agentgov/substrate/pkg/identity"
	"github.com/agentgov/substrate/pkg/observability"
	"github.com/agentgov/substrate/pkg/orchestrator"
	"github.com/agentgov/substrate/pkg/policyloader"
	"github.com/agentgov/substrate/pkg/ratelimit"
	"github.com/agentgov/substrate/pkg/semantic"
	"github.com/agentgov/substrate/pkg/trust"
)

func main() {
	cfg := config.Load()

	logLevel := new(slog.LevelVar)
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel.Set(slog.LevelInfo)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry, err := observability.New(ctx, observability.DefaultConfig())
	if err != nil {
		logger.Warn("observability disabled: init failed", "error", err)
		telemetry = nil
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := telemetry.Shutdown(shutdownCtx); err != nil {
				logger.Error("observability shutdown failed", "error", err)
			}
		}()
	}

	auditStore, closeStore, err := openAuditStore(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open audit store", "error", err)
		os.Exit(1)
	}
	defer closeStore()
	auditSvc := audit.New(auditStore)

	policyDir := os.Getenv("POLICY_BUNDLE_DIR")
	if policyDir == "" {
		policyDir = "./policies"
	}
	policies := policyloader.NewLoader(policyDir)
	policies.OnReload(func(tenantID string, b contracts.Bundle) {
		logger.Info("policy bundle reloaded", "tenant_id", tenantID, "bundle_id", b.PolicyID)
	})
	if err := policies.LoadAll(); err != nil {
		logger.Warn("policy bundle load incomplete", "error", err)
	}

	trustStore := trust.NewMemoryStore()
	trustSvc := trust.New(trustStore, trust.WithCache(trust.NewInMemoryCache()))

	lifecycle := trust.NewCredentialLifecycle(24 * time.Hour)
	credentials := trust.NewCredentialCache(lifecycle)
	semanticSvc := semantic.New(credentials)

	engine, err := governance.New(
		governance.WithConflictStrategy(governance.ConflictStrategy(cfg.DefaultConflictStrategy)),
		governance.WithDefaultAction(cfg.AllowOnNoMatch),
		governance.WithCapabilityResolver(capabilityResolver{trustSvc}),
	)
	if err != nil {
		logger.Error("failed to construct governance engine", "error", err)
		os.Exit(1)
	}

	escalationMgr := escalation.NewManager()

	pipeline := orchestrator.New(engine, policies, trustSvc, semanticSvc, auditSvc, escalationMgr, orchestrator.Timeouts{
		PreAction:  cfg.PreActionValidatorTimeout,
		PostAction: cfg.PostActionValidatorTimeout,
	}).WithTelemetry(telemetry)

	keySet, err := identity.NewInMemoryKeySet()
	if err != nil {
		logger.Error("failed to init signing keyset", "error", err)
		os.Exit(1)
	}
	jwtValidator := auth.NewJWTValidator(keySet)

	rlStore := ratelimit.Store(ratelimit.NewMemoryStore())
	rlPolicy := ratelimit.Policy{RPM: 600, Burst: 60}

	h := &handlers{pipeline: pipeline, escalation: escalationMgr, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /readiness", h.health)
	mux.HandleFunc("POST /v1/evaluate", h.evaluate)
	mux.HandleFunc("POST /v1/escalations/{id}/approve", h.approveEscalation)
	mux.HandleFunc("POST /v1/escalations/{id}/deny", h.denyEscalation)

	var handler http.Handler = mux
	handler = auth.RateLimitMiddleware(rlStore, rlPolicy)(handler)
	handler = auth.NewMiddleware(jwtValidator)(handler)
	handler = auth.CORSMiddleware(nil)(handler)
	handler = auth.RequestIDMiddleware(handler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("substrate listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

// openAuditStore selects a Store implementation from a DATABASE_URL
// scheme: postgres:// or postgresql:// uses lib/pq, sqlite:// uses
// modernc.org/sqlite with the rest of the URL as the database path, and
// "memory" (or empty) uses the in-process MemoryStore for local
// development. Any other value, a bare file path included, is rejected.
func openAuditStore(databaseURL string) (audit.Store, func(), error) {
	noop := func() {}
	switch {
	case databaseURL == "" || databaseURL == "memory":
		return audit.NewMemoryStore(), noop, nil
	case strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://"):
		db, err := sql.Open("postgres", databaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("open postgres: %w", err)
		}
		return audit.NewSQLStore(db), func() { _ = db.Close() }, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		db, err := sql.Open("sqlite", strings.TrimPrefix(databaseURL, "sqlite://"))
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite: %w", err)
		}
		return audit.NewSQLStore(db), func() { _ = db.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unrecognized DATABASE_URL scheme: %q", databaseURL)
	}
}

// capabilityResolver adapts trust.Service to governance.CapabilityResolver.
type capabilityResolver struct {
	trust *trust.Service
}

func (r capabilityResolver) GrantedCapabilities(ctx context.Context, tenantID, actorID string) ([]string, error) {
	profile, err := r.trust.Resolve(ctx, tenantID, actorID)
	if err != nil {
		return nil, err
	}
	return profile.GrantedCapabilities, nil
}

type handlers struct {
	pipeline   *orchestrator.Pipeline
	escalation *escalation.Manager
	logger     *slog.Logger
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// evaluateRequest is the wire shape of a /v1/evaluate call: an Intent plus
// the caller/environment maps the Rule Evaluator consults.
type evaluateRequest struct {
	Intent        contracts.Intent           `json:"intent"`
	CallerContext map[string]any             `json:"caller_context,omitempty"`
	Environment   map[string]any             `json:"environment,omitempty"`
	Interaction   *semantic.AgentInteraction `json:"interaction,omitempty"`
}

func (h *handlers) evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.Intent.TenantID == "" {
		api.WriteBadRequest(w, "intent.tenant_id is required")
		return
	}

	result, err := h.pipeline.Evaluate(r.Context(), req.Intent, req.CallerContext, req.Environment, req.Interaction)
	if err != nil {
		api.WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (h *handlers) approveEscalation(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.GetPrincipal(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, "")
		return
	}
	receipt, err := h.escalation.Approve(r.Context(), r.PathValue("id"), principal.GetID())
	if err != nil {
		api.WriteNotFound(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(receipt)
}

func (h *handlers) denyEscalation(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.GetPrincipal(r.Context())
	if err != nil {
		api.WriteUnauthorized(w, "")
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	receipt, err := h.escalation.Deny(r.Context(), r.PathValue("id"), principal.GetID(), body.Reason)
	if err != nil {
		api.WriteNotFound(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(receipt)
}
