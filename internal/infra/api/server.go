package api

import (
	"net/http"
	"time"

	"gpu-notebook-bridge/internal/config"
	"gpu-notebook-bridge/internal/infra/api/apiv1"
	"gpu-notebook-bridge/internal/infra/security"
	"gpu-notebook-bridge/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Deps are the collaborators of the worker HTTP server.
type Deps struct {
	Training usecase.TrainingUseCase
	Host     usecase.HostUseCase
	Tokens   *security.TokenManager
	// Limiter may be nil; POST /train is then unlimited.
	Limiter  Limiter
	KeyFunc  func(client, command string) string
	Shutdown func()
}

// NewRouter builds the worker handler: middleware chain, /metrics and the
// apiv1 routes.
func NewRouter(cfg config.WorkerConfig, deps Deps, logger *zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(
		TraceID(logger),
		RequestLog(logger),
		Recover(logger),
		Timeout(cfg.RequestTimeout),
	)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	keyFn := deps.KeyFunc
	if keyFn == nil {
		keyFn = defaultKey
	}
	srv := apiv1.NewServer(deps.Training, deps.Host,
		apiv1.WithLogger(logger),
		apiv1.WithShutdown(deps.Shutdown),
		apiv1.WithAuth(Auth(deps.Tokens, logger)),
		apiv1.WithTrainGuard(RateLimit(deps.Limiter, "train", cfg.TrainRateLimit, time.Minute, keyFn, logger)),
	)
	apiv1.RegisterAPIV1(r, srv)
	return r
}

func defaultKey(client, command string) string { return command + ":" + client }

// NewHTTPServer wraps h with the worker's listen address and timeouts.
func NewHTTPServer(cfg config.WorkerConfig, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
