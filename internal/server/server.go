package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"exproctor/internal/proctor"
	"exproctor/pkg/types"

	"github.com/alexedwards/flow"
	"github.com/go-playground/form/v4"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/sirupsen/logrus"
)

var decoder = form.NewDecoder()

type QuizSettingsStore interface {
	QuizSettings(ctx context.Context, quizID int64) (*types.QuizSettings, error)
	UpsertQuizSettings(ctx context.Context, settings *types.QuizSettings) error
}

type Service struct {
	logger *logrus.Logger
	config *types.Config

	intake    *proctor.IntakeService
	retention *proctor.RetentionManager
	report    *proctor.ReportService
	settings  QuizSettingsStore

	// files serves local evidence. Nil when local storage is not configured.
	files http.Handler

	jwksCache *jwk.Cache
	jwksURL   string

	server *http.Server
}

func New(
	config *types.Config,
	logger *logrus.Logger,
	intake *proctor.IntakeService,
	retention *proctor.RetentionManager,
	report *proctor.ReportService,
	settings QuizSettingsStore,
	files http.Handler,
	jwkCache *jwk.Cache,
	jwksURL string,
) *Service {
	mux := flow.New()

	s := &Service{
		logger:    logger,
		config:    config,
		intake:    intake,
		retention: retention,
		report:    report,
		settings:  settings,
		files:     files,

		jwksCache: jwkCache,
		jwksURL:   jwksURL,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.ServerPort),
			Handler:           mux,
			ReadTimeout:       time.Duration(config.ReadTimeoutSec) * time.Second,
			ReadHeaderTimeout: time.Duration(config.ReadTimeoutSec) * time.Second,
			WriteTimeout:      time.Duration(config.WriteTimeoutSec) * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
	}

	s.buildRouter(mux)

	return s
}

func (s *Service) Start() error {
	return s.server.ListenAndServe()
}

func (s *Service) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Service) Handler() http.Handler {
	return s.server.Handler
}

func (s *Service) buildRouter(r *flow.Mux) {
	r.Use(s.StripTrailingSlash)
	r.Use(s.LoggingMiddleware)

	r.HandleFunc("/healthz", s.handleHealth, http.MethodGet)

	r.Group(func(r *flow.Mux) {
		r.Use(s.RequireAuth)

		// capture client
		r.HandleFunc("/api/evidence/:evidenceType", s.handlePostEvidence, http.MethodPost)

		// quiz host
		r.HandleFunc("/api/attempts/finish", s.handlePostAttemptFinish, http.MethodPost)
		r.HandleFunc("/api/quizzes/:quizID/settings", s.handleGetQuizSettings, http.MethodGet)
		r.HandleFunc("/api/quizzes/:quizID/settings", s.handlePutQuizSettings, http.MethodPut)

		// report
		r.HandleFunc("/api/evidence/:id", s.handleGetEvidence, http.MethodGet)
		r.HandleFunc("/api/evidence/:id", s.handleDeleteEvidence, http.MethodDelete)
		r.HandleFunc("/api/courses/:courseID/quizzes/:quizID/users", s.handleGetQuizUsers, http.MethodGet)
		r.HandleFunc("/api/courses/:courseID/quizzes/:quizID/users/:userID/evidence", s.handleGetUserEvidence, http.MethodGet)
		r.HandleFunc("/api/courses/:courseID/quizzes/:quizID/users/:userID/evidence/:evidenceType", s.handleDeleteUserEvidence, http.MethodDelete)
	})

	if s.files != nil {
		r.Handle("/files/...", s.files, http.MethodGet)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
