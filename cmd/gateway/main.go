package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang/glog"

	api "github.com/mind-engage/sashakt-gateway/internal/api/http"
	"github.com/mind-engage/sashakt-gateway/internal/backend"
	"github.com/mind-engage/sashakt-gateway/internal/candidate"
	"github.com/mind-engage/sashakt-gateway/internal/config"
	"github.com/mind-engage/sashakt-gateway/internal/db"
	"github.com/mind-engage/sashakt-gateway/internal/exam"
	"github.com/mind-engage/sashakt-gateway/internal/grading"
	"github.com/mind-engage/sashakt-gateway/internal/storage"
	syncx "github.com/mind-engage/sashakt-gateway/internal/sync"
)

func main() {
	flag.Parse() // glog flags: -v, -logtostderr, ...
	defer glog.Flush()
	cfg := config.FromEnv()

	// --- DB (session records and/or event log) ---
	var dbh *sql.DB
	if cfg.SessionDriver == "sql" || cfg.EnableEventLog {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		var err error
		dbh, err = db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
		cancel()
		if err != nil {
			glog.Fatalf("db open failed: %v", err)
		}
		defer dbh.Close()
	}

	// --- Session records ---
	var records storage.RecordStore
	switch cfg.SessionDriver {
	case "sql":
		records = storage.NewSQLStore(dbh)
	case "fs":
		fs, err := storage.NewFSStore(cfg.SessionBasePath)
		if err != nil {
			glog.Fatalf("session store: %v", err)
		}
		records = fs
	case "memory":
		records = storage.NewMemoryStore()
	default:
		glog.Fatalf("unknown SESSION_DRIVER %q (want sql|fs|memory)", cfg.SessionDriver)
	}

	// --- Backend ---
	client, err := backend.New(backend.Config{
		BaseURL:      cfg.BackendURL,
		TokenURL:     cfg.BackendTokenURL,
		ClientID:     cfg.BackendClientID,
		ClientSecret: cfg.BackendClientSecret,
		Timeout:      cfg.BackendTimeout,

		CertificateOrigins: cfg.CertificateOrigins,
	})
	if err != nil {
		glog.Fatalf("backend: %v", err)
	}

	var (
		events  *syncx.EventRepo
		sink    exam.EventSink
		subOpts []exam.SubmitOption
	)
	if cfg.EnableEventLog {
		events = syncx.NewEventRepo(dbh)
		sink = events
		subOpts = append(subOpts, exam.WithEvents(events))
	}

	deps := &api.Deps{
		Backend:   client,
		Sessions:  exam.NewRegistry(records),
		Submitter: exam.NewSubmitter(client, subOpts...),
		Cookies:   candidate.NewService(cfg.CookieSecret, cfg.CookieSecure),
		Reviewer:  grading.NewReviewer(),
		Events:    sink,
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	api.Mount(r, deps)
	if cfg.AdminPassHash != "" {
		api.MountAdmin(r, deps, cfg.AdminUser, cfg.AdminPassHash, events)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if dbh != nil {
			if err := dbh.PingContext(r.Context()); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(200)
	})

	glog.Infof("listening on %s (mode=%s, sessions=%s, backend=%s, public=%s)",
		cfg.HTTPAddr, cfg.Mode, cfg.SessionDriver, cfg.BackendURL, cfg.PublicURL)
	glog.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
