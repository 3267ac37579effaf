package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

type RouterConfig struct {
	CORSOrigin string
	JWTSecret  string
}

// NewRouter wires the payment routes. The callback route never requires
// auth since the gateway cannot present a token.
func NewRouter(h *MpesaHandler, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestLogger)
	router.Use(CORS(cfg.CORSOrigin))

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "HEAD")

	router.HandleFunc("/api/mpesa/callback", h.Callback).Methods("POST", "OPTIONS")

	api := router.PathPrefix("/api").Subrouter()
	if cfg.JWTSecret != "" {
		api.Use(JWTAuth([]byte(cfg.JWTSecret)))
	}
	api.HandleFunc("/mpesa/stkpush", h.InitiateSTKPush).Methods("POST", "OPTIONS")
	api.HandleFunc("/transactions", h.GetTransactions).Methods("GET", "OPTIONS")
	api.HandleFunc("/transactions/{transactionID}", h.GetTransaction).Methods("GET", "OPTIONS")

	return router
}
