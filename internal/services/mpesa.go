package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/markjakearzadon/stkpush-gobackend/internal/models"
)

const (
	stkPushPath     = "/mpesa/stkpush/v1/processrequest"
	timestampLayout = "20060102150405"
	storeTimeout    = 5 * time.Second
)

const (
	msgAccepted        = "STK push initiated successfully. Please check your phone to complete the transaction."
	msgInvalidPhone    = "Invalid phone number format. Use 07xxxxxxxx or 2547xxxxxxxx."
	msgInvalidAmount   = "Invalid phone number or amount."
	msgDatabase        = "Database error during transaction initiation."
	msgCredentials     = "Error: Access token not generated."
	msgNetwork         = "Network error during payment initiation."
	msgInvalidResponse = "Error: Could not decode M-Pesa response or response structure is unexpected."
	msgRejectedPrefix  = "Error initiating STK push: "

	reasonInvalidResponse = "Invalid M-Pesa Response"
	reasonUnknownGateway  = "Unknown M-Pesa error."
)

// MpesaConfig carries the STK push constants.
type MpesaConfig struct {
	BaseURL          string
	ShortCode        string
	Passkey          string
	CallbackURL      string
	AccountReference string
	TransactionDesc  string
	TransactionType  string
	Location         *time.Location
}

// MpesaService initiates STK pushes and reconciles their callbacks. The two
// flows share nothing but the store.
type MpesaService struct {
	store       TransactionStore
	credentials CredentialProvider
	client      *http.Client
	cfg         MpesaConfig
	now         func() time.Time
}

func NewMpesaService(store TransactionStore, credentials CredentialProvider, client *http.Client, cfg MpesaConfig) *MpesaService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &MpesaService{
		store:       store,
		credentials: credentials,
		client:      client,
		cfg:         cfg,
		now:         time.Now,
	}
}

// STKPassword is base64(shortCode + passkey + timestamp).
func STKPassword(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

func rejected(message, transactionID string) *models.InitiateResult {
	return &models.InitiateResult{Accepted: false, Message: message, TransactionID: transactionID}
}

// Initiate validates the request, records a Pending transaction and submits
// the STK push. The returned result is always non-nil; the error classifies
// the failure and is nil only when the gateway accepted the request.
func (s *MpesaService) Initiate(ctx context.Context, req models.InitiateRequest) (*models.InitiateResult, error) {
	phone, err := NormalizePhone(req.PhoneNumber)
	if err != nil {
		log.Printf("Invalid input: phone=%s: %v", maskPhone(req.PhoneNumber), err)
		return rejected(msgInvalidPhone, ""), err
	}
	amount, err := ParseAmount(req.Amount)
	if err != nil {
		log.Printf("Invalid input: amount=%q: %v", req.Amount, err)
		return rejected(msgInvalidAmount, ""), err
	}

	// Past this point the request runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	txn, err := s.store.Create(storeCtx, phone, amount)
	cancel()
	if err != nil {
		log.Printf("Failed to create transaction for %s: %v", maskPhone(phone), err)
		return rejected(msgDatabase, ""), fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	log.Printf("Transaction created: ID=%s, phone=%s, amount=%s", txn.ID, maskPhone(phone), amount.String())

	token, err := s.credentials.AccessToken(ctx)
	if err != nil {
		// No request reached the gateway, so the Pending row is left as is.
		log.Printf("Failed to obtain access token for transaction %s: %v", txn.ID, err)
		return rejected(msgCredentials, txn.ID), fmt.Errorf("%w: %v", ErrCredentials, err)
	}

	timestamp := s.now().In(s.cfg.Location).Format(timestampLayout)
	payload := models.STKPushRequest{
		BusinessShortCode: s.cfg.ShortCode,
		Password:          STKPassword(s.cfg.ShortCode, s.cfg.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   s.cfg.TransactionType,
		Amount:            amount.IntPart(),
		PartyA:            phone,
		PartyB:            s.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       s.cfg.CallbackURL,
		AccountReference:  s.cfg.AccountReference,
		TransactionDesc:   s.cfg.TransactionDesc,
	}

	resp, err := s.submit(ctx, token, payload)
	if err != nil {
		reason := "transport error: " + err.Error()
		log.Printf("STK push request failed for transaction %s: %v", txn.ID, err)
		s.markFailed(ctx, txn.ID, reason, nil)
		return rejected(msgNetwork, txn.ID), fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return s.handleResponse(ctx, txn.ID, resp)
}

type gatewayResponse struct {
	status int
	body   []byte
}

func (s *MpesaService) submit(ctx context.Context, token string, payload models.STKPushRequest) (*gatewayResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal STK push request: %w", err)
	}
	log.Printf("Sending STK push request: %s", maskSensitiveFields(body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+stkPushPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create STK push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read STK push response: %w", err)
	}
	return &gatewayResponse{status: resp.StatusCode, body: respBody}, nil
}

func (s *MpesaService) handleResponse(ctx context.Context, txnID string, resp *gatewayResponse) (*models.InitiateResult, error) {
	var stk models.STKPushResponse
	if err := json.Unmarshal(resp.body, &stk); err != nil || stk.ResponseCode == nil {
		log.Printf("Unexpected STK push response for transaction %s: status %d, errorCode=%q, errorMessage=%q, body=%s",
			txnID, resp.status, stk.ErrorCode, stk.ErrorMessage, string(resp.body))
		s.markFailed(ctx, txnID, reasonInvalidResponse, optional(stk.CheckoutRequestID))
		return rejected(msgInvalidResponse, txnID), ErrInvalidResponse
	}

	checkoutID := stk.CheckoutRequestID
	if stk.ResponseCode.String() != "0" {
		desc := stk.ResponseDescription
		if desc == "" {
			desc = reasonUnknownGateway
		}
		log.Printf("STK push rejected for transaction %s: code=%s, description=%s", txnID, stk.ResponseCode.String(), desc)
		s.markFailed(ctx, txnID, desc, optional(checkoutID))
		return rejected(msgRejectedPrefix+desc, txnID), fmt.Errorf("%w: %s", ErrGatewayRejected, desc)
	}

	if checkoutID == "" {
		// Accepted without a correlation id can never be reconciled.
		log.Printf("STK push accepted without CheckoutRequestID for transaction %s", txnID)
		s.markFailed(ctx, txnID, reasonInvalidResponse, nil)
		return rejected(msgInvalidResponse, txnID), ErrInvalidResponse
	}

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := s.store.AttachCheckoutRequestID(storeCtx, txnID, checkoutID); err != nil {
		log.Printf("Failed to attach CheckoutRequestID %s to transaction %s: %v", checkoutID, txnID, err)
		return rejected(msgDatabase, txnID), fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	log.Printf("STK push accepted: transaction=%s, CheckoutRequestID=%s", txnID, checkoutID)
	return &models.InitiateResult{
		Accepted:          true,
		Message:           msgAccepted,
		CheckoutRequestID: checkoutID,
		TransactionID:     txnID,
	}, nil
}

// markFailed records a terminal failure. A store error is logged only; the
// caller already receives a failure acknowledgment.
func (s *MpesaService) markFailed(ctx context.Context, txnID, reason string, checkoutID *string) {
	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := s.store.MarkFailed(storeCtx, txnID, reason, checkoutID); err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Printf("Transaction %s was no longer Pending when marking failed", txnID)
			return
		}
		log.Printf("Failed to mark transaction %s failed (%s): %v", txnID, reason, err)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
