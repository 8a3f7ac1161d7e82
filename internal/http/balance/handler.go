package balance

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"cashflow-service/internal/consolidation"
	"cashflow-service/internal/http/render"
)

type Handler struct {
	svc          *consolidation.Service
	orchestrator *consolidation.Orchestrator
	log          *logrus.Logger
}

func NewHandler(svc *consolidation.Service, orchestrator *consolidation.Orchestrator, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, orchestrator: orchestrator, log: log}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.report)
	r.Get("/{date}", h.get)
	r.Post("/{date}/recalculate", h.recalculate)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	date, ok := h.pathDate(w, r)
	if !ok {
		return
	}

	b, err := h.svc.BalanceForDate(r.Context(), date)
	if err != nil {
		render.Error(w, err, h.log)
		return
	}

	render.JSON(w, http.StatusOK, b, h.log)
}

// recalculate forces a consolidation of one day outside the event flow.
func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request) {
	date, ok := h.pathDate(w, r)
	if !ok {
		return
	}

	b, err := h.orchestrator.Recalculate(r.Context(), date)
	if err != nil {
		render.Error(w, err, h.log)
		return
	}

	render.JSON(w, http.StatusOK, b, h.log)
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, err := time.Parse(time.DateOnly, q.Get("from"))
	if err != nil {
		render.BadRequest(w, "from must be formatted as YYYY-MM-DD", h.log)
		return
	}

	to, err := time.Parse(time.DateOnly, q.Get("to"))
	if err != nil {
		render.BadRequest(w, "to must be formatted as YYYY-MM-DD", h.log)
		return
	}

	rep, err := h.svc.Report(r.Context(), from, to)
	if err != nil {
		render.Error(w, err, h.log)
		return
	}

	render.JSON(w, http.StatusOK, reportResponse{
		From:    rep.From.Format(time.DateOnly),
		To:      rep.To.Format(time.DateOnly),
		Days:    rep.Days,
		Summary: rep.Summary,
	}, h.log)
}

func (h *Handler) pathDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	date, err := time.Parse(time.DateOnly, chi.URLParam(r, "date"))
	if err != nil {
		render.BadRequest(w, "date must be formatted as YYYY-MM-DD", h.log)
		return time.Time{}, false
	}

	return date, true
}
