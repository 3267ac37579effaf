package models

import "encoding/json"

// STKPushRequest is the body posted to the Daraja processrequest endpoint.
type STKPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPushResponse is the synchronous gateway answer. ResponseCode is a
// pointer so a missing field can be told apart from a zero code.
type STKPushResponse struct {
	MerchantRequestID   string       `json:"MerchantRequestID"`
	CheckoutRequestID   string       `json:"CheckoutRequestID"`
	ResponseCode        *json.Number `json:"ResponseCode"`
	ResponseDescription string       `json:"ResponseDescription"`
	CustomerMessage     string       `json:"CustomerMessage"`

	// Daraja error bodies
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// CallbackEnvelope is the asynchronous result notification.
type CallbackEnvelope struct {
	Body *struct {
		STKCallback *STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        *json.Number      `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackMetadata struct {
	Item []CallbackItem `json:"Item"`
}

// CallbackItem values arrive as strings or numbers depending on the field.
type CallbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

// InitiateRequest is the caller-facing initiation body.
type InitiateRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Amount      string `json:"amount"`
}

// InitiateResult is the immediate acknowledgment returned to the caller.
type InitiateResult struct {
	Accepted          bool   `json:"accepted"`
	Message           string `json:"message"`
	CheckoutRequestID string `json:"checkoutRequestId,omitempty"`
	TransactionID     string `json:"transactionId,omitempty"`
}
