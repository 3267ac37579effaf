package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/markjakearzadon/stkpush-gobackend/internal/models"
	"github.com/markjakearzadon/stkpush-gobackend/internal/services"
)

const (
	maxInitiateBody = 64 << 10
	maxCallbackBody = 1 << 20
)

// PaymentService is what the handlers need from services.MpesaService.
type PaymentService interface {
	Initiate(ctx context.Context, req models.InitiateRequest) (*models.InitiateResult, error)
	Reconcile(ctx context.Context, raw []byte) services.ReconcileOutcome
	Transaction(ctx context.Context, id string) (*models.Transaction, error)
	Transactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error)
}

type MpesaHandler struct {
	service PaymentService
}

func NewMpesaHandler(service PaymentService) *MpesaHandler {
	return &MpesaHandler{service: service}
}

// initiateBody keeps field values raw so a wrongly typed field fails
// validation instead of decoding.
type initiateBody struct {
	PhoneNumber json.RawMessage `json:"phoneNumber"`
	Phone       json.RawMessage `json:"phone"`
	Amount      json.RawMessage `json:"amount"`
}

// scalarText turns a JSON number or string into text. Anything else becomes
// empty and fails validation like a missing field.
func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return string(raw)
	default:
		return ""
	}
}

// InitiateSTKPush handles POST /api/mpesa/stkpush. Business outcomes are
// reported through "accepted" with a 200; only an unreadable body is a 400.
func (h *MpesaHandler) InitiateSTKPush(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxInitiateBody)

	var body initiateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"Invalid request body"}`, http.StatusBadRequest)
		return
	}

	phone := body.PhoneNumber
	if len(phone) == 0 || string(phone) == "null" {
		phone = body.Phone
	}
	result, err := h.service.Initiate(r.Context(), models.InitiateRequest{
		PhoneNumber: scalarText(phone),
		Amount:      scalarText(body.Amount),
	})
	if err != nil {
		log.Printf("STK push initiation not accepted: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		log.Printf("Failed to encode initiation result: %v", err)
	}
}

// Callback handles POST /api/mpesa/callback. The gateway always gets {}.
func (h *MpesaHandler) Callback(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBody))
	if err != nil {
		log.Printf("Failed to read M-Pesa callback body: %v", err)
	}

	outcome := h.service.Reconcile(r.Context(), raw)
	log.Printf("M-Pesa callback processed: outcome=%s", outcome)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("{}"))
}

// GetTransaction handles GET /api/transactions/{transactionID}.
func (h *MpesaHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["transactionID"]
	if id == "" {
		http.Error(w, `{"error":"Transaction ID is required"}`, http.StatusBadRequest)
		return
	}

	txn, err := h.service.Transaction(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			http.Error(w, `{"error":"transaction not found"}`, http.StatusNotFound)
			return
		}
		log.Printf("Failed to get transaction %s: %v", id, err)
		http.Error(w, `{"error":"Failed to fetch transaction"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(txn); err != nil {
		log.Printf("Failed to encode transaction: %v", err)
	}
}

// GetTransactions handles GET /api/transactions with optional status,
// checkout_request_id and limit query parameters.
func (h *MpesaHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.TransactionFilter{
		Status:            models.TransactionStatus(strings.TrimSpace(q.Get("status"))),
		CheckoutRequestID: strings.TrimSpace(q.Get("checkout_request_id")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		http.Error(w, `{"error":"Invalid status filter, must be Pending, Completed or Failed"}`, http.StatusBadRequest)
		return
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			http.Error(w, `{"error":"limit must be a positive integer"}`, http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}

	txns, err := h.service.Transactions(r.Context(), filter)
	if err != nil {
		log.Printf("Failed to fetch transactions: %v", err)
		http.Error(w, `{"error":"Failed to fetch transactions"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(txns); err != nil {
		log.Printf("Failed to encode transactions: %v", err)
	}
}
