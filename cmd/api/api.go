package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/KAsare1/Kodefx-capital/cmd/logging"
	"github.com/KAsare1/Kodefx-capital/cmd/utils"
	"github.com/KAsare1/Kodefx-capital/service/ledger"
	"github.com/KAsare1/Kodefx-capital/service/metrics"
	"github.com/KAsare1/Kodefx-capital/service/signals"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type APIServer struct {
	address string
	ledger  *ledger.Service
	metrics *metrics.Registry
	secret  []byte
	log     zerolog.Logger
	server  *http.Server
}

func NewApiServer(address string, svc *ledger.Service, reg *metrics.Registry, secret []byte, log zerolog.Logger) *APIServer {
	return &APIServer{
		address: address,
		ledger:  svc,
		metrics: reg,
		secret:  secret,
		log:     log,
	}
}

// Handler builds the full routing tree.
func (s *APIServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(logging.Middleware(s.log))
	router.Use(s.metrics.Middleware)

	router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.WriteSuccess(w, http.StatusOK, "ok", nil)
	}).Methods(http.MethodGet)

	subrouter := router.PathPrefix("/api/v1").Subrouter()
	signalHandler := signals.NewSignalHandler(s.ledger, utils.NewAuthMiddleware(s.secret))
	signalHandler.RegisterRoutes(subrouter)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type", logging.RequestIDHeader}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.log}),
		handlers.PrintRecoveryStack(false),
	)
	return recovery(cors(router))
}

// Run serves until ctx is cancelled, then drains in-flight requests for up to
// shutdownTimeout.
func (s *APIServer) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.server = &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("address", s.address).Msg("server running")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

type recoveryLogger struct {
	log zerolog.Logger
}

func (l recoveryLogger) Println(args ...interface{}) {
	l.log.Error().Interface("panic", args).Msg("recovered from panic")
}
