package entry

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"cashflow-service/internal/entry"
	"cashflow-service/internal/http/render"
	"cashflow-service/internal/ledger"
)

type Handler struct {
	svc      *entry.Service
	validate *validator.Validate
	log      *logrus.Logger
}

func NewHandler(svc *entry.Service, validate *validator.Validate, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, validate: validate, log: log}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/date/{date}", h.forDate)
	r.Get("/{id}", h.get)
}

type createEntryRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Kind        string          `json:"kind" validate:"required"`
	Date        string          `json:"date" validate:"required,datetime=2006-01-02"`
	Description string          `json:"description" validate:"required,max=500"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.BadRequest(w, "invalid request body", h.log)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		render.Error(w, err, h.log)
		return
	}

	kind, err := ledger.ParseKind(req.Kind)
	if err != nil {
		render.Error(w, err, h.log)
		return
	}

	date, _ := time.Parse(time.DateOnly, req.Date)

	res, err := h.svc.Create(r.Context(), entry.CreateParams{
		Amount:      req.Amount,
		Kind:        kind,
		Date:        date,
		Description: req.Description,
	})
	if err != nil {
		render.Error(w, err, h.log)
		return
	}

	render.JSON(w, http.StatusCreated, createEntryResponse{
		entryResponse: toResponse(res.Entry),
		Published:     res.Published,
	}, h.log)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, err := intQuery(r, "page", 1)
	if err != nil {
		render.BadRequest(w, "invalid page", h.log)
		return
	}

	size, err := intQuery(r, "size", entry.DefaultPageSize)
	if err != nil {
		render.BadRequest(w, "invalid size", h.log)
		return
	}

	p, err := h.svc.List(r.Context(), page, size)
	if err != nil {
		render.Error(w, err, h.log)
		return
	}

	render.JSON(w, http.StatusOK, pageResponse{
		Items: toResponseList(p.Items),
		Total: p.Total,
		Page:  p.Page,
		Size:  p.Size,
	}, h.log)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		render.BadRequest(w, "invalid id", h.log)
		return
	}

	e, err := h.svc.Get(r.Context(), id)
	if err != nil {
		render.Error(w, err, h.log)
		return
	}

	render.JSON(w, http.StatusOK, toResponse(e), h.log)
}

func (h *Handler) forDate(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse(time.DateOnly, chi.URLParam(r, "date"))
	if err != nil {
		render.BadRequest(w, "date must be formatted as YYYY-MM-DD", h.log)
		return
	}

	entries, err := h.svc.ForDate(r.Context(), date)
	if err != nil {
		render.Error(w, err, h.log)
		return
	}

	render.JSON(w, http.StatusOK, toResponseList(entries), h.log)
}

func intQuery(r *http.Request, name string, fallback int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return fallback, nil
	}

	return strconv.Atoi(s)
}
