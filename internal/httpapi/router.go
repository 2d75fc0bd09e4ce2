package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	logx "mangabot/pkg/logx"
)

// Deps are the collaborators behind the routes. Gatherer and Health are
// optional.
type Deps struct {
	Dispatcher Dispatcher
	Items      ItemLister
	Gatherer   prometheus.Gatherer
	Health     func() map[string]any
	Log        logx.Logger
}

// RouterOptions are the per-config knobs of NewRouter.
type RouterOptions struct {
	Token  string
	Pprof  bool
	MaxReq int64
}

// NewRouter wires middleware and every route. /health stays open so
// probes work without the token.
func NewRouter(d Deps, opt RouterOptions) http.Handler {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.MaxReq <= 0 {
		opt.MaxReq = 1 << 20
	}
	h := &handlers{d: d.Dispatcher, items: d.Items, health: d.Health, log: log}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestSize(opt.MaxReq))
	r.Use(CorrelationID)
	r.Use(RequestLogger(log))

	r.Get("/health", h.healthz)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(opt.Token))

		if d.Gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
		}
		if opt.Pprof {
			r.Mount("/debug", chimw.Profiler())
		}

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/notify", h.notify)
			r.Post("/notify", h.notify)
			r.Get("/due", h.due)
			r.Get("/items", h.list)
		})
	})
	return r
}
