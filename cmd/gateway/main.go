package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mind-engage/mindengage-obe/internal/alerts"
	api "github.com/mind-engage/mindengage-obe/internal/api/http"
	"github.com/mind-engage/mindengage-obe/internal/attainment"
	auth "github.com/mind-engage/mindengage-obe/internal/auth/middleware"
	"github.com/mind-engage/mindengage-obe/internal/config"
	"github.com/mind-engage/mindengage-obe/internal/db"
	"github.com/mind-engage/mindengage-obe/internal/gamification"
	"github.com/mind-engage/mindengage-obe/internal/grading"
	"github.com/mind-engage/mindengage-obe/internal/logger"
	"github.com/mind-engage/mindengage-obe/internal/notify"
	"github.com/mind-engage/mindengage-obe/internal/outcome"
	"github.com/mind-engage/mindengage-obe/internal/risk"
	"github.com/mind-engage/mindengage-obe/internal/store"
	"github.com/mind-engage/mindengage-obe/internal/sweep"
)

func main() {
	cfg := config.FromEnv()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		log.Fatal("bad db driver", "error", err)
	}
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := db.Open(openCtx, driver, cfg.DBDSN)
	cancel()
	if err != nil {
		log.Fatal("db open failed", "error", err)
	}
	defer dbh.Close()
	st := store.New(dbh, driver, string(cfg.Mode))

	// --- Notifications ---
	dispatchers := notify.Multi{notify.NewLogDispatcher(log)}
	if cfg.RedisAddr != "" {
		rd, err := notify.NewRedisDispatcher(cfg.RedisAddr, cfg.RedisChannel, log)
		if err != nil {
			log.Fatal("redis connect failed", "addr", cfg.RedisAddr, "error", err)
		}
		defer rd.Close()
		dispatchers = append(dispatchers, rd)
	}

	// --- Services ---
	outcomes := outcome.NewService(st, log, nil)
	att := attainment.NewService(st, log, nil)
	gr := grading.NewService(st, st, att, log)
	alertSvc := alerts.NewService(st, dispatchers, cfg.AlertDedupWindow, log)
	gen := alerts.NewGenerator(alertSvc, st, cfg.InactivityDays, log)
	engine := gamification.NewEngine(st, gen, log, nil)
	gr.GradeListeners = []grading.GradeListener{engine, gen}
	gr.SubmissionListeners = []grading.SubmissionListener{engine}

	if err := engine.EnsureTemplates(ctx); err != nil {
		log.Fatal("badge templates", "error", err)
	}

	sched := sweep.NewScheduler(st, engine, gen, cfg.SweepInterval, cfg.SweepConcurrency, log)
	if cfg.EnableSweep {
		sched.Start(ctx)
	}

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)
	handlers := &api.API{
		Outcomes:    outcomes,
		Grading:     gr,
		Attainment:  att,
		Badges:      engine,
		Alerts:      alertSvc,
		Generator:   gen,
		Risk:        risk.NewDetector(st, cfg.InactivityDays, log),
		Sweep:       sched,
		Directory:   st,
		Performance: st,
		Events:      st.Events,
		Log:         log,
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", api.Healthz)
	r.Get("/readyz", api.Readyz(dbh))

	if cfg.EnableLocalAuth {
		r.Post("/auth/login", auth.LoginHandler(authSvc, st, log))
	}

	// Protected API (JWT → stored role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.AttachRole(st, cfg.Mode == config.ModeOffline))
		handlers.Routes(pr)
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown", "error", err)
		}
	}()

	log.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", driver, "sweep", cfg.EnableSweep)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server failed", "error", err)
	}
}
