package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-shop-orders.git/internal/orders"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps the domain taxonomy ke status code; pesan error domain
// sudah aman untuk caller.
func writeErr(w http.ResponseWriter, err error) {
	var (
		ve *orders.ValidationError
		nf *orders.NotFoundError
		is *orders.InsufficientStockError
		ad *orders.AccessDeniedError
		st *orders.InvalidStateError
	)
	switch {
	case errors.As(err, &ve), errors.Is(err, orders.ErrEmptyOrder):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &is):
		ordersRejected.WithLabelValues("insufficient_stock").Inc()
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &ad):
		ordersRejected.WithLabelValues("access_denied").Inc()
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.As(err, &st):
		ordersRejected.WithLabelValues("invalid_state").Inc()
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrTxConflict):
		// retry budget habis; ini transient
		ordersRejected.WithLabelValues("conflict").Inc()
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "temporary conflict, please retry"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
