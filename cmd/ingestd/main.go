package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"scorecard-ingest-go/internal/config"
	"scorecard-ingest-go/internal/logger"
	"scorecard-ingest-go/internal/matcher"
	"scorecard-ingest-go/internal/notify"
	"scorecard-ingest-go/internal/pipeline"
	"scorecard-ingest-go/internal/scanner"
	"scorecard-ingest-go/internal/scheduler"
	"scorecard-ingest-go/internal/store"
	"scorecard-ingest-go/internal/transformer"
	"scorecard-ingest-go/internal/validator"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "scorecard-ingest").Info("starting service")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer st.Close()
	log.WithField("db_path", cfg.DBPath).Info("store ready")

	orch := pipeline.New(log,
		scanner.New(log, scanner.Options{}),
		validator.New(log),
		matcher.New(log),
		transformer.New(log),
		st,
	)

	var notifier notify.Notifier = notify.Nop{}
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhook(log, cfg.WebhookURL)
	}
	sched := scheduler.New(log, st, orch, notifier, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sched.StartRunner(ctx, "* * * * *"); err != nil {
		log.WithError(err).Fatal("failed to start scheduler runner")
	}

	mux := http.NewServeMux()

	// health
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r)
		health, err := sched.HealthCheck(r.Context())
		if err != nil {
			reqLog.WithError(err).Error("health check failed")
			http.Error(w, "health check failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, health)
	})

	// synchronous one-shot ingestion
	mux.HandleFunc("/ingest", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "ingest")
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		file := r.URL.Query().Get("file")
		if file == "" {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		programID := queryOr(r, "program_id", "default")
		managerID := queryOr(r, "manager_id", "")

		program, _ := scheduler.DefaultPrograms{}.Resolve(r.Context(), programID)
		start := time.Now()
		res := orch.Run(r.Context(), pipeline.RunInput{
			FilePath:  file,
			Program:   program,
			ManagerID: managerID,
			Config:    cfg.Processing,
		})
		reqLog.WithField("duration_ms", time.Since(start).Milliseconds()).
			WithField("success", res.Success).Info("ingest finished")

		status := http.StatusOK
		if !res.Success {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, res)
	})

	// schedule a job
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "jobs")
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		file := r.URL.Query().Get("file")
		if file == "" {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		when := time.Now().UTC()
		if at := r.URL.Query().Get("at"); at != "" {
			parsed, err := time.Parse(time.RFC3339, at)
			if err != nil {
				http.Error(w, "invalid at timestamp", http.StatusBadRequest)
				return
			}
			when = parsed
		}
		jobID, err := sched.ScheduleJob(r.Context(),
			queryOr(r, "program_id", "default"), queryOr(r, "manager_id", ""),
			file, when, cfg.Processing)
		if err != nil {
			reqLog.WithError(err).Error("scheduling failed")
			http.Error(w, "scheduling failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"job_id": jobID})
	})

	// cancel a scheduled job
	mux.HandleFunc("/jobs/cancel", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "cancel")
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		err := sched.CancelJob(r.Context(), r.URL.Query().Get("id"), r.URL.Query().Get("requester"))
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
		case errors.Is(err, scheduler.ErrNotJobOwner):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, scheduler.ErrJobNotCancellable):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, store.ErrJobNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			reqLog.WithError(err).Error("cancel failed")
			http.Error(w, "cancel failed", http.StatusInternalServerError)
		}
	})

	// register a weekly schedule
	mux.HandleFunc("/schedules", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "schedules")
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		file := r.URL.Query().Get("file")
		if file == "" {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		day := cfg.ScheduleDay
		if d := r.URL.Query().Get("day"); d != "" {
			parsed, err := strconv.Atoi(d)
			if err != nil {
				http.Error(w, "invalid day", http.StatusBadRequest)
				return
			}
			day = parsed
		}
		ws, err := sched.SetupWeeklySchedule(r.Context(),
			queryOr(r, "program_id", "default"), queryOr(r, "manager_id", ""),
			file, day, queryOr(r, "time", cfg.ScheduleTime))
		if err != nil {
			reqLog.WithError(err).Warn("schedule setup rejected")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, ws)
	})

	// monitoring
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r)
		metrics, err := sched.GetMonitoringMetrics(r.Context())
		if err != nil {
			reqLog.WithError(err).Error("metrics failed")
			http.Error(w, "metrics failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, metrics)
	})

	addr := fmt.Sprintf(":%s", envOr("PORT", cfg.Port))
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func queryOr(r *http.Request, key, def string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return def
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
