package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/carebridge/platform/internal/adapters/emr"
	"github.com/carebridge/platform/internal/audit"
	"github.com/carebridge/platform/internal/careplan"
	"github.com/carebridge/platform/internal/export"
	orderapi "github.com/carebridge/platform/internal/order/api"
	"github.com/carebridge/platform/internal/order/domain"
	orderinfra "github.com/carebridge/platform/internal/order/infrastructure"
	"github.com/carebridge/platform/internal/order/workflow"
	"github.com/carebridge/platform/internal/patient"
	"github.com/carebridge/platform/internal/provider"
	"github.com/carebridge/platform/internal/shared/auth"
	"github.com/carebridge/platform/internal/shared/config"
	"github.com/carebridge/platform/internal/shared/database"
	"github.com/carebridge/platform/internal/shared/events"
	"github.com/carebridge/platform/internal/shared/metrics"
	secmiddleware "github.com/carebridge/platform/internal/shared/middleware"
)

// App holds all application dependencies
type App struct {
	Config *config.Config
	DB     *database.DB
	Bus    *events.Bus
	EMR    *emr.Adapter
}

func main() {
	ctx := context.Background()

	// Load .env if present; real env vars win
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	app := &App{Config: cfg}

	// Initialize database
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	app.DB = db
	defer db.Close()

	// Run migrations
	if err := database.Migrate(ctx, db.Pool); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}

	// Initialize event bus with KurrentDB (optional - skip if not available)
	bus, err := events.NewEventBus(ctx, cfg.KurrentDB)
	if err != nil {
		fmt.Printf("Warning: KurrentDB not available: %v\n", err)
		fmt.Println("Running without event streaming...")
	} else {
		app.Bus = bus
		defer bus.Close()
		fmt.Println("KurrentDB Event Bus initialized")
	}

	// Legacy EMR adapter (optional - intake pre-fill)
	emrAdapter := emr.New(cfg.EMR)
	if emrAdapter.Enabled() {
		if err := emrAdapter.Start(ctx); err != nil {
			fmt.Printf("Warning: EMR adapter failed to start: %v\n", err)
		} else {
			app.EMR = emrAdapter
			defer emrAdapter.Stop()
			fmt.Println("EMR adapter connected")
		}
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler(app))
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	// API info
	r.Get("/", infoHandler)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes (no auth required for now in dev mode)
		if cfg.Server.Env == "production" {
			r.Use(auth.Middleware(cfg.Auth))
		}

		// Audit store: event-store chain when the bus is up, the
		// append-only Postgres table otherwise
		var auditRepo audit.AuditRepository
		if app.Bus != nil {
			auditRepo = audit.NewKurrentDBRepository(app.Bus.Client())
		} else {
			auditRepo = audit.NewPostgresRepository(app.DB.Pool)
		}
		if err := auditRepo.Initialize(ctx); err != nil {
			fmt.Printf("Warning: Audit initialization failed: %v\n", err)
		}

		// Handlers publish through the bus when connected. Without a
		// bus they publish through the recorder, which appends audit
		// entries synchronously.
		var bus events.EventBus
		if app.Bus != nil {
			bus = app.Bus
		} else {
			bus = audit.NewRecorder(auditRepo)
		}

		// Order intake, duplicate detection, review, care plans
		orderRepo := orderinfra.NewPostgresRepository(app.DB.Pool)
		providerDir := orderinfra.NewProviderDirectory(app.DB.Pool)
		detector := domain.NewDetector(orderRepo, providerDir)
		planner := careplan.NewClient(cfg.CarePlan)
		orderService := workflow.NewService(orderRepo, detector, planner)
		orderHandler := orderapi.NewHandler(orderService, bus, cfg.CarePlan)
		r.Mount("/orders", orderHandler.Routes())

		// Patient directory
		patientRepo := patient.NewRepository(app.DB.Pool)
		patientHandler := patient.NewHandler(patientRepo)
		r.Mount("/patients", patientHandler.Routes())

		// Provider directory
		providerRepo := provider.NewRepository(app.DB.Pool)
		providerHandler := provider.NewHandler(providerRepo)
		r.Mount("/providers", providerHandler.Routes())

		// Export engine (rate limited per IP)
		exportService := export.NewService(orderRepo, cfg.Export.MaxRows)
		exportHandler := export.NewHandler(exportService, orderRepo, cfg.Export)
		r.Mount("/export", exportHandler.Routes())

		auditHandler := audit.NewHandler(auditRepo, cfg.Server.Env != "production")
		r.Mount("/audit", auditHandler.Routes())

		// Audit subscriber needs the event stream
		if app.Bus != nil {
			auditSubscriber := audit.NewSubscriber(auditRepo, app.Bus)
			if err := auditSubscriber.Start(ctx); err != nil {
				fmt.Printf("Warning: Audit subscriber failed to start: %v\n", err)
			} else {
				fmt.Println("Audit subscriber started")
			}
		}

		// Legacy EMR lookups for intake pre-fill
		if app.EMR != nil {
			emrHandler := emr.NewHandler(app.EMR)
			r.Mount("/emr", emrHandler.Routes())
		}
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		fmt.Println("\nShutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			fmt.Printf("Server shutdown error: %v\n", err)
		}
		close(done)
	}()

	fmt.Println("============================================")
	fmt.Println("CareBridge Pharmacy Workflow Platform")
	fmt.Println("============================================")
	fmt.Printf("Environment:    %s\n", cfg.Server.Env)
	fmt.Printf("Server:         http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("API:            http://localhost:%d/api/v1\n", cfg.Server.Port)
	fmt.Printf("Health:         http://localhost:%d/health\n", cfg.Server.Port)
	fmt.Printf("Care plans:     %s (%s)\n", cfg.CarePlan.URL, cfg.CarePlan.Model)
	fmt.Printf("EMR adapter:    %v\n", cfg.EMR.Enabled)
	fmt.Printf("KurrentDB:      %s:%d\n", cfg.KurrentDB.Host, cfg.KurrentDB.Port)
	fmt.Println("============================================")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	<-done
	fmt.Println("Server stopped")
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "CareBridge Pharmacy Workflow Platform",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		// Check database
		if err := app.DB.Health(r.Context()); err != nil {
			checks["database"] = "not ready: " + err.Error()
		} else {
			checks["database"] = "ready"
		}

		// Check KurrentDB
		if app.Bus != nil {
			if err := app.Bus.Health(); err != nil {
				checks["kurrentdb"] = "not ready: " + err.Error()
			} else {
				checks["kurrentdb"] = "ready"
			}
		} else {
			checks["kurrentdb"] = "not configured"
		}

		// Check EMR adapter
		if app.EMR != nil {
			if err := app.EMR.Health(r.Context()); err != nil {
				checks["emr"] = "not ready: " + err.Error()
			} else {
				checks["emr"] = "ready"
			}
		} else {
			checks["emr"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
