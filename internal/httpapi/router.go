// Package httpapi serves the trainer over REST with a server-sent event
// stream of frames for browser clients.
package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/signalsfoundry/plant-trainer/internal/logging"
	"github.com/signalsfoundry/plant-trainer/internal/observability"
	"github.com/signalsfoundry/plant-trainer/internal/sim"
)

const requestIDHeader = "X-Request-ID"

// API holds the handlers for one session.
type API struct {
	session *sim.Session
	log     logging.Logger
}

// New returns the handler set for session.
func New(session *sim.Session, log logging.Logger) *API {
	if log == nil {
		log = logging.Noop()
	}
	return &API{session: session, log: log}
}

// NewRouter wires every route under /api/v1 plus /healthz. collector may be nil.
func NewRouter(api *API, collector *observability.RPCCollector, allowedOrigins []string) http.Handler {
	r := mux.NewRouter()
	r.Use(mux.MiddlewareFunc(collector.HTTPMiddleware(routeTemplate)))
	r.Use(api.requestLogger)

	r.HandleFunc("/healthz", api.health).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/state", api.getState).Methods(http.MethodGet)
	v1.HandleFunc("/state/stream", api.streamState).Methods(http.MethodGet)
	v1.HandleFunc("/commands", api.issueCommand).Methods(http.MethodPost)
	v1.HandleFunc("/speed", api.getSpeed).Methods(http.MethodGet)
	v1.HandleFunc("/speed", api.setSpeed).Methods(http.MethodPut)
	v1.HandleFunc("/catalog", api.listCatalog).Methods(http.MethodGet)

	v1.HandleFunc("/scenarios/active", api.activeScenario).Methods(http.MethodGet)
	v1.HandleFunc("/scenarios/stop", api.stopScenario).Methods(http.MethodPost)
	v1.HandleFunc("/scenarios/{id}/start", api.startScenario).Methods(http.MethodPost)

	v1.HandleFunc("/tutorial", api.tutorialView).Methods(http.MethodGet)
	v1.HandleFunc("/tutorials/{id}/start", api.startTutorial).Methods(http.MethodPost)
	v1.HandleFunc("/tutorial/next", api.tutorialStep(api.session.NextStep)).Methods(http.MethodPost)
	v1.HandleFunc("/tutorial/back", api.tutorialStep(api.session.BackStep)).Methods(http.MethodPost)
	v1.HandleFunc("/tutorial/finish", api.tutorialStep(api.session.FinishTutorial)).Methods(http.MethodPost)
	v1.HandleFunc("/tutorial/exit", api.exitTutorial).Methods(http.MethodPost)
	v1.HandleFunc("/tutorial/ui-events", api.reportUIEvent).Methods(http.MethodPost)

	v1.HandleFunc("/alarms", api.listAlarms).Methods(http.MethodGet)
	v1.HandleFunc("/alarms/limits", api.alarmLimits).Methods(http.MethodGet)
	v1.HandleFunc("/alarms/{id}/ack", api.acknowledge).Methods(http.MethodPost)

	v1.HandleFunc("/history", api.listHistory).Methods(http.MethodGet)
	v1.HandleFunc("/history", api.clearHistory).Methods(http.MethodDelete)
	v1.HandleFunc("/history/export", api.exportHistory).Methods(http.MethodGet)

	v1.HandleFunc("/trends", api.trendTags).Methods(http.MethodGet)
	v1.HandleFunc("/trends/{tag}", api.trend).Methods(http.MethodGet)

	var h http.Handler = r
	if len(allowedOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(allowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}),
			handlers.AllowedHeaders([]string{"Content-Type", requestIDHeader}),
		)(h)
	}
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{log: api.log}),
		handlers.PrintRecoveryStack(false),
	)(h)
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return ""
}

// requestLogger attaches an operation_id, taken from X-Request-ID when the
// client sent one, and a request-scoped logger.
func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get(requestIDHeader); id != "" {
			ctx = logging.ContextWithOperationID(ctx, id)
		}
		ctx, reqLog := logging.WithOperationLogger(ctx, a.log.With(
			logging.String("method", r.Method),
			logging.String("route", routeTemplate(r)),
		))
		ctx = logging.ContextWithLogger(ctx, reqLog)
		w.Header().Set(requestIDHeader, logging.OperationIDFromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type recoveryLogger struct {
	log logging.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error(context.Background(), "http handler panic", logging.String("panic", fmt.Sprint(v...)))
}
