package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"storico/internal/core"
	applog "storico/internal/log"
	"storico/internal/sales"
	"storico/internal/services"
)

type monthDTO struct {
	Year       int    `json:"year"`
	Month      int    `json:"month"`
	Label      string `json:"label"`
	Total      string `json:"total"`
	TotalCents int64  `json:"total_cents"`
}

type productDTO struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

type historyDTO struct {
	ClientID     string       `json:"client_id"`
	GeneratedAt  time.Time    `json:"generated_at"`
	Months       []monthDTO   `json:"months"`
	TopProducts  []productDTO `json:"top_products"`
	WindowTotal  string       `json:"window_total"`
	HasSpend     bool         `json:"has_spend"`
	SalesCount   int          `json:"sales_count"`
	SkippedItems int          `json:"skipped_items"`
	Cached       bool         `json:"cached"`
}

func toHistoryDTO(h core.History, cached bool) historyDTO {
	dto := historyDTO{
		ClientID:     h.ClientID,
		GeneratedAt:  h.GeneratedAt,
		Months:       make([]monthDTO, 0, len(h.Months)),
		TopProducts:  make([]productDTO, 0, len(h.TopProducts)),
		WindowTotal:  h.WindowTotal().String(),
		HasSpend:     h.HasSpend(),
		SalesCount:   h.SalesCount,
		SkippedItems: h.SkippedItems,
		Cached:       cached,
	}
	for _, b := range h.Months {
		dto.Months = append(dto.Months, monthDTO{
			Year:       b.Year,
			Month:      int(b.Month),
			Label:      b.Label,
			Total:      b.Total.String(),
			TotalCents: b.Total.Cents,
		})
	}
	for _, p := range h.TopProducts {
		dto.TopProducts = append(dto.TopProducts, productDTO{
			ProductID:   p.ProductID,
			ProductName: p.ProductName,
			Quantity:    p.Quantity,
		})
	}
	return dto
}

// classifyHistoryError maps a history failure to a status, an error code and a
// user-facing message.
func classifyHistoryError(err error) (int, string, string) {
	switch {
	case errors.Is(err, errInvalidClientID):
		return http.StatusBadRequest, "invalid_client_id", "Invalid client id"
	case errors.Is(err, services.ErrInvalidMonths):
		return http.StatusBadRequest, "invalid_months", err.Error()
	case errors.Is(err, sales.ErrClientNotFound):
		return http.StatusNotFound, "not_found", "Client not found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout", "Sales source timed out"
	default:
		return http.StatusBadGateway, "upstream_error", "Could not load purchase history"
	}
}

// handleHistoryAPI serves the purchase history as JSON.
func (s *Server) handleHistoryAPI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	params, err := ParseHistoryParams(r)
	if err != nil {
		status, code, msg := classifyHistoryError(err)
		writeJSONError(w, status, code, msg)
		return
	}

	h, cached, err := s.history.History(ctx, params.ClientID, params.Options())
	if err != nil {
		status, code, msg := classifyHistoryError(err)
		if status >= http.StatusInternalServerError {
			applog.NewStructuredLogger(logger).LogError(ctx, "History load failed", err,
				applog.ComponentHistory, applog.OpRead, applog.NewFields().WithClientID(params.ClientID))
		}
		writeJSONError(w, status, code, msg)
		return
	}

	applog.NewStructuredLogger(logger).LogHistoryServed(ctx, h.ClientID, len(h.Months),
		h.SalesCount, h.SkippedItems, h.WindowTotal().Cents, cached)
	writeJSON(w, http.StatusOK, toHistoryDTO(h, cached))
}

type monthRow struct {
	Label      string
	Year       int
	TotalCents int64
	Width      int
}

type productRow struct {
	Rank     int
	Name     string
	Quantity int
}

type historyView struct {
	ClientID     string
	Months       []monthRow
	TotalCents   int64
	MaxLabel     string
	MaxCents     int64
	HasSpend     bool
	TopProducts  []productRow
	SkippedItems int
	Failed       bool
}

func newHistoryView(h core.History, failed bool) historyView {
	view := historyView{
		ClientID:     h.ClientID,
		TotalCents:   h.WindowTotal().Cents,
		HasSpend:     h.HasSpend(),
		SkippedItems: h.SkippedItems,
		Failed:       failed,
	}
	for _, b := range h.Months {
		if b.Total.Cents > view.MaxCents {
			view.MaxCents = b.Total.Cents
			view.MaxLabel = b.Label
		}
	}
	for _, b := range h.Months {
		view.Months = append(view.Months, monthRow{
			Label:      b.Label,
			Year:       b.Year,
			TotalCents: b.Total.Cents,
			Width:      barWidth(b.Total.Cents, view.MaxCents),
		})
	}
	for i, p := range h.TopProducts {
		name := p.ProductName
		if strings.TrimSpace(name) == "" {
			name = p.ProductID
		}
		view.TopProducts = append(view.TopProducts, productRow{Rank: i + 1, Name: name, Quantity: p.Quantity})
	}
	return view
}

// handleHistoryPartial renders the client history partial. A failed load
// renders an empty history and raises an error notification.
func (s *Server) handleHistoryPartial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx)

	params, err := ParseHistoryParams(r)
	if err != nil {
		_, _, msg := classifyHistoryError(err)
		BadRequestError(msg).Write(w)
		return
	}
	if s.templates == nil {
		logger.ErrorContext(ctx, "Templates not loaded",
			applog.FieldPath, r.URL.Path,
			"error_type", applog.ErrorTypeConfiguration)
		InternalServerError("Templates not loaded").Write(w)
		return
	}

	resp := NewHTMXResponse()
	h, cached, err := s.history.History(ctx, params.ClientID, params.Options())
	if err != nil {
		_, _, msg := classifyHistoryError(err)
		logger.WarnContext(ctx, "Rendering empty history after load failure",
			applog.FieldClientID, params.ClientID,
			applog.FieldError, err)
		h = s.history.Empty(params.ClientID, params.Options())
		resp.TriggerErrorNotification(msg)
	} else {
		applog.NewStructuredLogger(logger).LogHistoryServed(ctx, h.ClientID, len(h.Months),
			h.SalesCount, h.SkippedItems, h.WindowTotal().Cents, cached)
	}

	var buf strings.Builder
	if err := s.templates.ExecuteTemplate(&buf, "client_history.html", newHistoryView(h, err != nil)); err != nil {
		logger.ErrorContext(ctx, "Template execution error",
			applog.FieldError, err,
			"template", "client_history.html",
			applog.FieldOperation, applog.OpRender)
		InternalServerError("Error rendering history").Write(w)
		return
	}
	resp.BodyHTML(buf.String()).Write(w)
}
