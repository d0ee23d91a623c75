package acquirer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"paygate-backend/internal/domains/payment/model"
	"paygate-backend/internal/shared/errcodes"
)

// ================================================
// SIMULATED ACQUIRER (for development)
// ================================================
// Deterministic stand-in for the card processor. Amounts whose minor
// units end in 13 are declined, which gives tests and manual QA a
// stable way to exercise the failure path.

type Simulator struct {
	latency time.Duration
}

func NewSimulator(latency time.Duration) *Simulator {
	return &Simulator{latency: latency}
}

// Authorize implements payment service Authorizer.
func (s *Simulator) Authorize(ctx context.Context, payment *model.Payment) error {
	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if payment.Amount%100 == 13 {
		log.Info().
			Str("payment_id", payment.PaymentID).
			Int64("amount", payment.Amount).
			Msg("[MOCK] authorization declined")
		return model.NewPaymentError(errcodes.BankDeclined, "insufficient funds", nil)
	}

	log.Info().
		Str("payment_id", payment.PaymentID).
		Int64("amount", payment.Amount).
		Msg("[MOCK] authorization approved")
	return nil
}

// Reconcile implements payment service Reconciler. The simulator has no
// external state to diverge from, so it always agrees.
func (s *Simulator) Reconcile(ctx context.Context, payment *model.Payment) (model.Status, error) {
	return "", nil
}
