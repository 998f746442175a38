package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/malusev998/currency-rates"
)

type ConversionResponse struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	Amount    decimal.Decimal `json:"amount"`
	Result    decimal.Decimal `json:"result"`
	Rate      float64         `json:"rate"`
	UpdatedAt string          `json:"updated_at"`
}

func (h *Handler) listRates(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := currency.ListFilter{
		Currency: query.Get("currency"),
		Base:     query.Get("base"),
	}

	if top := strings.TrimSpace(query.Get("top")); top != "" {
		n, err := strconv.Atoi(top)
		if err != nil || n <= 0 {
			h.writeError(w, r, currency.NewError(currency.KindInvalidArgument, err, "top must be a positive integer"))
			return
		}

		filter.Top = n
	}

	rates, err := h.Rates.ListCached(filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, rates)
}

func (h *Handler) getRate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	rate, err := h.Rates.GetRate(r.Context(), vars["from"], vars["to"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, rate)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	source := strings.TrimSpace(r.URL.Query().Get("source"))

	if source != "" {
		provider, err := currency.ConvertToProviderFromString(source)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		source = string(provider)
	}

	result, err := h.Updater.RunUpdate(r.Context(), source)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, result)
}

func (h *Handler) convert(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	amount, err := decimal.NewFromString(strings.TrimSpace(query.Get("amount")))
	if err != nil {
		h.writeError(w, r, currency.NewError(currency.KindInvalidArgument, err, "amount %q is not a number", query.Get("amount")))
		return
	}

	result, rate, err := h.Conversion.Convert(r.Context(), query.Get("from"), query.Get("to"), amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeData(w, ConversionResponse{
		From:      rate.From,
		To:        rate.To,
		Amount:    amount,
		Result:    result,
		Rate:      rate.Rate,
		UpdatedAt: rate.UpdatedAt,
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	status := map[string]interface{}{"status": "ok"}

	if h.Scheduler != nil {
		status["scheduler_running"] = h.Scheduler.Running()
	}

	writeData(w, status)
}
