package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/markjakearzadon/stkpush-gobackend/internal/models"
)

type MongoTransactionStore struct {
	collection *mongo.Collection
}

func NewMongoTransactionStore(db *mongo.Database) *MongoTransactionStore {
	return &MongoTransactionStore{collection: db.Collection("transactions")}
}

type transactionDocument struct {
	ID                 string               `bson:"_id"`
	PhoneNumber        string               `bson:"phone_number"`
	Amount             primitive.Decimal128 `bson:"amount"`
	Status             string               `bson:"status"`
	FailureReason      string               `bson:"failure_reason,omitempty"`
	CheckoutRequestID  *string              `bson:"checkout_request_id"`
	MpesaReceiptNumber *string              `bson:"mpesa_receipt_number"`
	TransactionDate    *time.Time           `bson:"transaction_date"`
	CreatedAt          time.Time            `bson:"created_at"`
	UpdatedAt          time.Time            `bson:"updated_at"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("amount %s out of range: %w", d.String(), err)
	}
	return v, nil
}

func (d transactionDocument) model() (*models.Transaction, error) {
	amount, err := decimal.NewFromString(d.Amount.String())
	if err != nil {
		return nil, fmt.Errorf("failed to decode amount %s: %w", d.Amount.String(), err)
	}
	return &models.Transaction{
		ID:                 d.ID,
		PhoneNumber:        d.PhoneNumber,
		Amount:             amount,
		Status:             models.TransactionStatus(d.Status),
		FailureReason:      d.FailureReason,
		CheckoutRequestID:  d.CheckoutRequestID,
		MpesaReceiptNumber: d.MpesaReceiptNumber,
		TransactionDate:    d.TransactionDate,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}, nil
}

// EnsureIndexes creates the correlation-id and listing indexes. Only string
// values take part in the unique index, so many rows may lack an id.
func (s *MongoTransactionStore) EnsureIndexes(ctx context.Context) error {
	indexModels := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "checkout_request_id", Value: 1}},
			Options: options.Index().
				SetName("checkout_request_id_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"checkout_request_id": bson.M{"$type": "string"}}),
		},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	}
	if _, err := s.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Printf("Failed to create indexes: %v", err)
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (s *MongoTransactionStore) Create(ctx context.Context, phoneNumber string, amount decimal.Decimal) (*models.Transaction, error) {
	dec, err := toDecimal128(amount)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := transactionDocument{
		ID:          uuid.NewString(),
		PhoneNumber: phoneNumber,
		Amount:      dec,
		Status:      string(models.StatusPending),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to save transaction: %w", err)
	}
	return doc.model()
}

// updatePending applies set to the Pending row matching filter and reports
// whether one matched.
func (s *MongoTransactionStore) updatePending(ctx context.Context, filter, set bson.M) (bool, error) {
	filter["status"] = string(models.StatusPending)
	set["updated_at"] = time.Now().UTC()

	res, err := s.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, fmt.Errorf("checkout_request_id already in use: %w", err)
		}
		return false, fmt.Errorf("failed to update transaction: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (s *MongoTransactionStore) AttachCheckoutRequestID(ctx context.Context, id, checkoutRequestID string) error {
	matched, err := s.updatePending(ctx, bson.M{"_id": id}, bson.M{"checkout_request_id": checkoutRequestID})
	if err != nil {
		return err
	}
	if !matched {
		return fmt.Errorf("%w: no Pending transaction %s", ErrNotFound, id)
	}
	return nil
}

func (s *MongoTransactionStore) MarkFailed(ctx context.Context, id, reason string, checkoutRequestID *string) error {
	set := bson.M{
		"status":         string(models.StatusFailed),
		"failure_reason": reason,
	}
	if checkoutRequestID != nil {
		set["checkout_request_id"] = *checkoutRequestID
	}
	matched, err := s.updatePending(ctx, bson.M{"_id": id}, set)
	if err != nil {
		return err
	}
	if !matched {
		return fmt.Errorf("%w: no Pending transaction %s", ErrNotFound, id)
	}
	return nil
}

// completionSet builds the $set for a successful callback. An amount that
// Decimal128 cannot hold is dropped so the completion still lands and the
// stored amount is kept.
func completionSet(checkoutRequestID string, details models.CompletionDetails) bson.M {
	set := bson.M{
		"status":               string(models.StatusCompleted),
		"mpesa_receipt_number": details.MpesaReceiptNumber,
		"transaction_date":     details.TransactionDate,
	}
	if details.Amount != nil {
		dec, err := toDecimal128(*details.Amount)
		if err != nil {
			log.Printf("Keeping stored amount for CheckoutRequestID %s: %v", checkoutRequestID, err)
		} else {
			set["amount"] = dec
		}
	}
	if details.PhoneNumber != nil {
		set["phone_number"] = *details.PhoneNumber
	}
	return set
}

func (s *MongoTransactionStore) CompleteByCheckoutRequestID(ctx context.Context, checkoutRequestID string, details models.CompletionDetails) (bool, error) {
	return s.updatePending(ctx, bson.M{"checkout_request_id": checkoutRequestID}, completionSet(checkoutRequestID, details))
}

func (s *MongoTransactionStore) FailByCheckoutRequestID(ctx context.Context, checkoutRequestID, reason string, at time.Time) (bool, error) {
	return s.updatePending(ctx, bson.M{"checkout_request_id": checkoutRequestID}, bson.M{
		"status":           string(models.StatusFailed),
		"failure_reason":   reason,
		"transaction_date": at.UTC(),
	})
}

func (s *MongoTransactionStore) findOne(ctx context.Context, filter bson.M) (*models.Transaction, error) {
	var doc transactionDocument
	if err := s.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch transaction: %w", err)
	}
	return doc.model()
}

func (s *MongoTransactionStore) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoTransactionStore) GetByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.Transaction, error) {
	return s.findOne(ctx, bson.M{"checkout_request_id": checkoutRequestID})
}

func (s *MongoTransactionStore) List(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	if filter.CheckoutRequestID != "" {
		query["checkout_request_id"] = filter.CheckoutRequestID
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(listLimit(filter.Limit)))
	cur, err := s.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	defer cur.Close(ctx)

	var docs []transactionDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}

	out := make([]models.Transaction, 0, len(docs))
	for _, d := range docs {
		t, err := d.model()
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}
