package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/wadayano/wadayano-server/internal/api/http"
	"github.com/wadayano/wadayano-server/internal/attempt"
	"github.com/wadayano/wadayano-server/internal/audit"
	"github.com/wadayano/wadayano-server/internal/auth"
	"github.com/wadayano/wadayano-server/internal/config"
	"github.com/wadayano/wadayano-server/internal/db"
	"github.com/wadayano/wadayano-server/internal/logging"
	"github.com/wadayano/wadayano-server/internal/lti"
	"github.com/wadayano/wadayano-server/internal/quiz"
)

func main() {
	cfg := config.FromEnv()
	log := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db open failed")
	}
	store := quiz.NewSQLStore(dbh)
	events := audit.NewEventRepo(dbh)

	authSvc := auth.NewAuthService(cfg.AuthSecret)
	attempts := attempt.NewService(store, lti.NewOutcomesClient(), events, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))

	// LMS-facing: signed form POST, no bearer token.
	r.Post("/lti/launch/{action}/{objectID}", lti.LaunchHandler(lti.LaunchDeps{
		Store:    store,
		Attempts: attempts,
		Auth:     authSvc,
		Audit:    events,
		Log:      log,
	}))

	// Student-facing API (JWT from the launch redirect).
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		pr.Post("/consent", api.SubmitConsentHandler(store))

		pr.Post("/attempts/start", api.StartAttemptHandler(attempts, store))
		pr.Post("/attempts/{attemptID}/answer", api.AnswerHandler(store))
		pr.Post("/attempts/{attemptID}/confidences", api.ConfidencesHandler(store))
		pr.Post("/attempts/{attemptID}/complete", api.CompleteAttemptHandler(attempts, store))
		pr.Get("/attempts/{attemptID}", api.GetAttemptHandler(store))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Info().Str("addr", cfg.HTTPAddr).Str("db", cfg.DBDriver).Msg("listening")
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
