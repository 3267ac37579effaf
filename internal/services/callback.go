package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/markjakearzadon/stkpush-gobackend/internal/models"
)

// ReconcileOutcome describes what a callback did. The gateway never sees it.
type ReconcileOutcome string

const (
	OutcomeMalformed  ReconcileOutcome = "malformed"
	OutcomeCompleted  ReconcileOutcome = "completed"
	OutcomeFailed     ReconcileOutcome = "failed"
	OutcomeNoMatch    ReconcileOutcome = "no_match"
	OutcomeStoreError ReconcileOutcome = "store_error"
)

type metadataSetter func(d *models.CompletionDetails, raw json.RawMessage, loc *time.Location) error

// metadataSetters maps callback item names to typed fields. Unknown names are
// skipped and missing ones leave the field nil.
var metadataSetters = map[string]metadataSetter{
	"MpesaReceiptNumber": func(d *models.CompletionDetails, raw json.RawMessage, _ *time.Location) error {
		v, err := scalarString(raw)
		if err != nil {
			return err
		}
		d.MpesaReceiptNumber = &v
		return nil
	},
	"Amount": func(d *models.CompletionDetails, raw json.RawMessage, _ *time.Location) error {
		v, err := scalarString(raw)
		if err != nil {
			return err
		}
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("amount %q is not a number", v)
		}
		d.Amount = &amount
		return nil
	},
	"TransactionDate": func(d *models.CompletionDetails, raw json.RawMessage, loc *time.Location) error {
		v, err := scalarString(raw)
		if err != nil {
			return err
		}
		t, err := ParseTransactionDate(v, loc)
		if err != nil {
			return err
		}
		d.TransactionDate = &t
		return nil
	},
	"PhoneNumber": func(d *models.CompletionDetails, raw json.RawMessage, _ *time.Location) error {
		v, err := scalarString(raw)
		if err != nil {
			return err
		}
		d.PhoneNumber = &v
		return nil
	},
}

// ParseTransactionDate reads the gateway's compact YYYYMMDDhhmmss timestamp.
func ParseTransactionDate(v string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(timestampLayout, v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("transaction date %q: %w", v, err)
	}
	return t, nil
}

// scalarString returns a JSON string or number literal as text.
func scalarString(raw json.RawMessage) (string, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", fmt.Errorf("value is missing")
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("value %s is neither string nor number", trimmed)
	}
	return n.String(), nil
}

func completionDetails(meta *models.CallbackMetadata, loc *time.Location) models.CompletionDetails {
	var d models.CompletionDetails
	if meta == nil {
		return d
	}
	for _, item := range meta.Item {
		set, ok := metadataSetters[item.Name]
		if !ok {
			continue
		}
		if err := set(&d, item.Value, loc); err != nil {
			log.Printf("Ignoring callback metadata item %s: %v", item.Name, err)
		}
	}
	return d
}

// Reconcile applies a result notification to the matching Pending
// transaction. It never fails: every problem is logged and the gateway is
// acknowledged regardless. Replays match nothing once the row is terminal.
func (s *MpesaService) Reconcile(ctx context.Context, raw []byte) ReconcileOutcome {
	log.Printf("M-Pesa callback received: %s", maskSensitiveFields(raw))

	var env models.CallbackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("Invalid or malformed M-Pesa callback data: %v", err)
		return OutcomeMalformed
	}
	if env.Body == nil || env.Body.STKCallback == nil {
		log.Printf("Invalid or malformed M-Pesa callback data: missing Body.stkCallback")
		return OutcomeMalformed
	}
	cb := env.Body.STKCallback
	checkoutID := strings.TrimSpace(cb.CheckoutRequestID)
	if checkoutID == "" || cb.ResultCode == nil {
		log.Printf("Invalid or malformed M-Pesa callback data: missing CheckoutRequestID or ResultCode")
		return OutcomeMalformed
	}
	code, err := cb.ResultCode.Int64()
	if err != nil {
		log.Printf("Invalid ResultCode %q for CheckoutRequestID %s", cb.ResultCode.String(), checkoutID)
		return OutcomeMalformed
	}

	ctx = context.WithoutCancel(ctx)
	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if code == 0 {
		details := completionDetails(cb.CallbackMetadata, s.cfg.Location)
		matched, err := s.store.CompleteByCheckoutRequestID(storeCtx, checkoutID, details)
		if err != nil {
			log.Printf("Database update error (success case) for CheckoutRequestID %s: %v", checkoutID, err)
			return OutcomeStoreError
		}
		if !matched {
			log.Printf("No Pending transaction for CheckoutRequestID %s, callback ignored", checkoutID)
			return OutcomeNoMatch
		}
		receipt := ""
		if details.MpesaReceiptNumber != nil {
			receipt = *details.MpesaReceiptNumber
		}
		log.Printf("Successfully updated transaction for CheckoutRequestID %s - Receipt: %s", checkoutID, receipt)
		return OutcomeCompleted
	}

	reason := cb.ResultDesc
	if reason == "" {
		reason = fmt.Sprintf("result code %d", code)
	}
	matched, err := s.store.FailByCheckoutRequestID(storeCtx, checkoutID, reason, s.now())
	if err != nil {
		log.Printf("Database update error (failure case) for CheckoutRequestID %s: %v", checkoutID, err)
		return OutcomeStoreError
	}
	if !matched {
		log.Printf("No Pending transaction for CheckoutRequestID %s, callback ignored", checkoutID)
		return OutcomeNoMatch
	}
	log.Printf("Updated transaction to failed for CheckoutRequestID %s. Reason: %s", checkoutID, reason)
	return OutcomeFailed
}
