package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentCompleted        = "payment.completed"
	EventTypePaymentFailed           = "payment.failed"
	EventTypePaymentCancelled        = "payment.cancelled"
	EventTypePaymentRefunded         = "payment.refunded"
	EventTypeBatchCompleted          = "batch.completed"
	EventTypeBatchCancelled          = "batch.cancelled"
	EventTypeReconciliationCompleted = "reconciliation.completed"
)

// TerminalEventTypes are the events forwarded to notification subscribers.
var TerminalEventTypes = []string{
	EventTypePaymentCompleted,
	EventTypePaymentFailed,
	EventTypePaymentCancelled,
	EventTypePaymentRefunded,
	EventTypeBatchCompleted,
	EventTypeBatchCancelled,
	EventTypeReconciliationCompleted,
}

func newBase(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

type PaymentEvent struct {
	BaseEvent
	PaymentID     string `json:"payment_id"`
	Reference     string `json:"reference"`
	BatchID       string `json:"batch_id"`
	BeneficiaryID string `json:"beneficiary_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
}

// NewPaymentEvent builds the event for a payment that reached status.
func NewPaymentEvent(eventType, paymentID, reference, batchID, beneficiaryID, amount, currency, status, reason string) *PaymentEvent {
	data := map[string]interface{}{
		"payment_id":     paymentID,
		"reference":      reference,
		"batch_id":       batchID,
		"beneficiary_id": beneficiaryID,
		"amount":         amount,
		"currency":       currency,
		"status":         status,
	}
	if reason != "" {
		data["reason"] = reason
	}
	return &PaymentEvent{
		BaseEvent:     newBase(eventType, data),
		PaymentID:     paymentID,
		Reference:     reference,
		BatchID:       batchID,
		BeneficiaryID: beneficiaryID,
		Amount:        amount,
		Currency:      currency,
		Status:        status,
		Reason:        reason,
	}
}

type BatchEvent struct {
	BaseEvent
	BatchID     string `json:"batch_id"`
	BatchNumber string `json:"batch_number"`
	Status      string `json:"status"`
	Successful  int    `json:"successful"`
	Failed      int    `json:"failed"`
	Pending     int    `json:"pending"`
}

func NewBatchEvent(eventType, batchID, batchNumber, status string, successful, failed, pending int) *BatchEvent {
	return &BatchEvent{
		BaseEvent: newBase(eventType, map[string]interface{}{
			"batch_id":     batchID,
			"batch_number": batchNumber,
			"status":       status,
			"successful":   successful,
			"failed":       failed,
			"pending":      pending,
		}),
		BatchID:     batchID,
		BatchNumber: batchNumber,
		Status:      status,
		Successful:  successful,
		Failed:      failed,
		Pending:     pending,
	}
}

type ReconciliationCompletedEvent struct {
	BaseEvent
	BatchID       string `json:"batch_id"`
	ResultID      string `json:"result_id"`
	Reconciled    int    `json:"reconciled"`
	Unreconciled  int    `json:"unreconciled"`
	Discrepancies int    `json:"discrepancies"`
}

func NewReconciliationCompletedEvent(batchID, resultID string, reconciled, unreconciled, discrepancies int) *ReconciliationCompletedEvent {
	return &ReconciliationCompletedEvent{
		BaseEvent: newBase(EventTypeReconciliationCompleted, map[string]interface{}{
			"batch_id":      batchID,
			"result_id":     resultID,
			"reconciled":    reconciled,
			"unreconciled":  unreconciled,
			"discrepancies": discrepancies,
		}),
		BatchID:       batchID,
		ResultID:      resultID,
		Reconciled:    reconciled,
		Unreconciled:  unreconciled,
		Discrepancies: discrepancies,
	}
}
