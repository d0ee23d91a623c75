package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	paymentmodel "paygate-backend/internal/domains/payment/model"
	teammodel "paygate-backend/internal/domains/team/model"
	"paygate-backend/internal/shared"
	"paygate-backend/internal/shared/errcodes"
	"paygate-backend/internal/shared/response"
)

type fakeTeams struct {
	team *teammodel.Team
}

func (f *fakeTeams) Create(_ context.Context, _ *teammodel.Team) error { return nil }
func (f *fakeTeams) GetByID(_ context.Context, _ uuid.UUID) (*teammodel.Team, error) {
	return f.team, nil
}
func (f *fakeTeams) GetBySlug(_ context.Context, slug string) (*teammodel.Team, error) {
	if f.team == nil || f.team.TeamSlug != slug {
		return nil, teammodel.ErrTeamNotFound
	}
	return f.team, nil
}
func (f *fakeTeams) Update(_ context.Context, _ *teammodel.Team) error { return nil }
func (f *fakeTeams) List(_ context.Context, _, _ int) ([]*teammodel.Team, int, error) {
	return nil, 0, nil
}
func (f *fakeTeams) RecordAuthFailure(_ context.Context, _ uuid.UUID, _ *time.Time) error {
	return nil
}
func (f *fakeTeams) ResetAuthFailures(_ context.Context, _ uuid.UUID) error { return nil }

type fakeEnqueuer struct {
	payloads []shared.WebhookPayload
}

func (f *fakeEnqueuer) EnqueueWebhook(_ context.Context, payload shared.WebhookPayload) error {
	f.payloads = append(f.payloads, payload)
	return nil
}

func confirmedPayment() *paymentmodel.Payment {
	return &paymentmodel.Payment{
		ID:        uuid.New(),
		PaymentID: "pay-1",
		OrderID:   "order-1",
		TeamSlug:  "acme-shop",
		Amount:    10000,
		Status:    paymentmodel.StatusConfirmed,
	}
}

func TestDispatcher_QueuesMerchantBody(t *testing.T) {
	url := "https://merchant.example.com/hook"
	teams := &fakeTeams{team: &teammodel.Team{
		TeamSlug:   "acme-shop",
		Password:   "terminal-secret",
		WebhookURL: &url,
	}}
	q := &fakeEnqueuer{}
	d := NewDispatcher(teams, q)

	payment := confirmedPayment()
	d.PublishTransition(context.Background(), payment, &paymentmodel.TransitionResult{
		FromStatus: paymentmodel.StatusConfirming,
		ToStatus:   paymentmodel.StatusConfirmed,
	})

	require.Len(t, q.payloads, 1)
	assert.Equal(t, url, q.payloads[0].URL)
	assert.Equal(t, webhookMaxRetries, q.payloads[0].MaxRetries)
	assert.Equal(t, SignBody(q.payloads[0].Body, "terminal-secret"), q.payloads[0].Signature)

	var body response.Merchant
	require.NoError(t, json.Unmarshal(q.payloads[0].Body, &body))
	assert.True(t, body.Success)
	assert.Equal(t, "CONFIRMED", body.Status)
	assert.Equal(t, "pay-1", body.PaymentID)
	assert.Equal(t, errcodes.Success, body.ErrorCode)
}

func TestDispatcher_SkipsTeamsWithoutURL(t *testing.T) {
	teams := &fakeTeams{team: &teammodel.Team{TeamSlug: "acme-shop"}}
	q := &fakeEnqueuer{}
	d := NewDispatcher(teams, q)

	d.PublishTransition(context.Background(), confirmedPayment(), &paymentmodel.TransitionResult{})
	assert.Empty(t, q.payloads)
}

func TestDispatcher_FailureStatusCarriesErrorCode(t *testing.T) {
	url := "https://merchant.example.com/hook"
	teams := &fakeTeams{team: &teammodel.Team{TeamSlug: "acme-shop", WebhookURL: &url}}
	q := &fakeEnqueuer{}
	d := NewDispatcher(teams, q)

	payment := confirmedPayment()
	payment.Status = paymentmodel.StatusAuthFail
	code := errcodes.BankDeclined
	payment.ErrorCode = &code

	d.PublishTransition(context.Background(), payment, &paymentmodel.TransitionResult{
		ToStatus: paymentmodel.StatusAuthFail,
	})

	require.Len(t, q.payloads, 1)
	var body response.Merchant
	require.NoError(t, json.Unmarshal(q.payloads[0].Body, &body))
	assert.False(t, body.Success)
	assert.Equal(t, errcodes.BankDeclined, body.ErrorCode)
}

func TestSender_DeliversAndRetriesOnServerError(t *testing.T) {
	var got []byte
	var gotSignature string
	status := http.StatusInternalServerError
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		got = body
		gotSignature = r.Header.Get(SignatureHeader)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	body := []byte(`{"Success":true}`)
	payload, err := json.Marshal(shared.WebhookPayload{
		PaymentID: "pay-1",
		TeamSlug:  "acme-shop",
		URL:       srv.URL,
		Body:      body,
		Signature: SignBody(body, "terminal-secret"),
	})
	require.NoError(t, err)
	task := asynq.NewTask(shared.TypeWebhookDeliver, payload)

	sender := NewSender(time.Second)

	// 5xx surfaces an error so asynq retries.
	err = sender.ProcessTask(context.Background(), task)
	require.Error(t, err)

	status = http.StatusOK
	require.NoError(t, sender.ProcessTask(context.Background(), task))
	assert.JSONEq(t, `{"Success":true}`, string(got))
	assert.Equal(t, SignBody(body, "terminal-secret"), gotSignature)
}

func TestSignBody(t *testing.T) {
	body := []byte(`{"PaymentId":"pay-1","Status":"CONFIRMED"}`)

	sig := SignBody(body, "terminal-secret")
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, SignBody(body, "terminal-secret"))

	// A tampered body or a different secret must not verify.
	assert.NotEqual(t, sig, SignBody(append(body, ' '), "terminal-secret"))
	assert.NotEqual(t, sig, SignBody(body, "other-secret"))
}

func TestSender_MalformedPayloadSkipsRetry(t *testing.T) {
	sender := NewSender(time.Second)
	task := asynq.NewTask(shared.TypeWebhookDeliver, []byte("{not json"))
	assert.ErrorIs(t, sender.ProcessTask(context.Background(), task), asynq.SkipRetry)
}
