// Package payments adapts the Stripe API to the checkout provider used by the payment service.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"github.com/noah-isme/skillswap-api/internal/models"
	"github.com/noah-isme/skillswap-api/pkg/config"
)

// ErrNotConfigured is returned when no secret key is set.
var ErrNotConfigured = errors.New("stripe is not configured")

// listLimit bounds how many sessions a reconciliation scan pulls.
const listLimit = 100

// StripeProvider talks to Stripe Checkout.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
	allowUnsigned bool
	timeout       time.Duration
	retries       uint64
	logger        *zap.Logger
}

// NewStripeProvider builds a provider from configuration. A missing secret key yields a provider
// whose calls fail with ErrNotConfigured so the rest of the API keeps serving.
func NewStripeProvider(cfg config.PaymentsConfig, logger *zap.Logger) *StripeProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &StripeProvider{
		webhookSecret: cfg.WebhookSecret,
		allowUnsigned: cfg.AllowUnsignedDev,
		timeout:       cfg.ProviderTimeout,
		logger:        logger,
	}
	if cfg.ProviderRetries > 0 {
		p.retries = uint64(cfg.ProviderRetries)
	}
	if p.timeout <= 0 {
		p.timeout = 10 * time.Second
	}
	if cfg.StripeSecretKey != "" {
		p.api = client.New(cfg.StripeSecretKey, nil)
	} else {
		logger.Warn("stripe secret key missing; checkout is disabled")
	}
	if p.allowUnsigned {
		logger.Warn("accepting unsigned webhook payloads (development only)")
	}
	return p
}

// CreateCheckoutSession opens a one-off payment session for a single line item.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req models.CheckoutRequest) (*models.CheckoutSession, error) {
	if p.api == nil {
		return nil, ErrNotConfigured
	}
	var session *stripe.CheckoutSession
	err := p.call(ctx, func(ctx context.Context) error {
		params := &stripe.CheckoutSessionParams{
			Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
			SuccessURL: stripe.String(req.SuccessURL),
			CancelURL:  stripe.String(req.CancelURL),
			LineItems: []*stripe.CheckoutSessionLineItemParams{{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ProductName),
					},
				},
			}},
			PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
				Metadata: req.Metadata,
			},
		}
		if req.Description != "" {
			params.LineItems[0].PriceData.ProductData.Description = stripe.String(req.Description)
		}
		if req.CustomerEmail != "" {
			params.CustomerEmail = stripe.String(req.CustomerEmail)
		}
		if req.ClientReferenceID != "" {
			params.ClientReferenceID = stripe.String(req.ClientReferenceID)
		}
		for k, v := range req.Metadata {
			params.AddMetadata(k, v)
		}
		params.Context = ctx

		created, err := p.api.CheckoutSessions.New(params)
		if err != nil {
			return err
		}
		session = created
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return toSession(session), nil
}

// GetCheckoutSession fetches a session by id.
func (p *StripeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*models.CheckoutSession, error) {
	if p.api == nil {
		return nil, ErrNotConfigured
	}
	var session *stripe.CheckoutSession
	err := p.call(ctx, func(ctx context.Context) error {
		params := &stripe.CheckoutSessionParams{}
		params.Context = ctx
		found, err := p.api.CheckoutSessions.Get(sessionID, params)
		if err != nil {
			return err
		}
		session = found
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get checkout session %s: %w", sessionID, err)
	}
	return toSession(session), nil
}

// ListCheckoutSessions returns sessions created at or after createdAfter, newest first.
func (p *StripeProvider) ListCheckoutSessions(ctx context.Context, createdAfter time.Time) ([]models.CheckoutSession, error) {
	if p.api == nil {
		return nil, ErrNotConfigured
	}
	var sessions []models.CheckoutSession
	err := p.call(ctx, func(ctx context.Context) error {
		sessions = sessions[:0]
		params := &stripe.CheckoutSessionListParams{}
		params.Context = ctx
		params.Limit = stripe.Int64(listLimit)
		params.Filters.AddFilter("created", "gte", strconv.FormatInt(createdAfter.Unix(), 10))

		it := p.api.CheckoutSessions.List(params)
		for it.Next() && len(sessions) < listLimit {
			sessions = append(sessions, *toSession(it.CheckoutSession()))
		}
		return it.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list checkout sessions: %w", err)
	}
	return sessions, nil
}

// ParseWebhook verifies the signature and reduces the event to what settlement needs.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (*models.WebhookEvent, error) {
	var event stripe.Event
	switch {
	case p.webhookSecret != "":
		verified, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			return nil, fmt.Errorf("verify webhook: %w", err)
		}
		event = verified
	case p.allowUnsigned:
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("decode webhook: %w", err)
		}
	default:
		return nil, errors.New("webhook secret not configured")
	}
	return decodeEvent(event)
}

func decodeEvent(event stripe.Event) (*models.WebhookEvent, error) {
	out := &models.WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if event.ID == "" {
		return nil, errors.New("webhook event has no id")
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return out, nil
	}
	raw := event.Data.Raw
	switch out.Type {
	case models.EventCheckoutSessionCompleted, models.EventCheckoutSessionAsyncSucceeded, models.EventCheckoutSessionExpired:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(raw, &cs); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		out.Session = toSession(&cs)
		out.PaymentIntentID = out.Session.PaymentIntentID
	case models.EventPaymentIntentSucceeded, models.EventPaymentIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		out.PaymentIntentID = pi.ID
		if pi.LastPaymentError != nil {
			out.FailureMessage = pi.LastPaymentError.Msg
		}
	case models.EventChargeRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(raw, &ch); err != nil {
			return nil, fmt.Errorf("decode charge: %w", err)
		}
		if ch.PaymentIntent != nil {
			out.PaymentIntentID = ch.PaymentIntent.ID
		}
	case models.EventChargeDisputeCreated:
		var d stripe.Dispute
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode dispute: %w", err)
		}
		if d.PaymentIntent != nil {
			out.PaymentIntentID = d.PaymentIntent.ID
		}
	}
	return out, nil
}

func toSession(cs *stripe.CheckoutSession) *models.CheckoutSession {
	if cs == nil {
		return nil
	}
	out := &models.CheckoutSession{
		ID:            cs.ID,
		URL:           cs.URL,
		PaymentStatus: string(cs.PaymentStatus),
		Status:        string(cs.Status),
		AmountTotal:   cs.AmountTotal,
		Currency:      string(cs.Currency),
		Metadata:      cs.Metadata,
	}
	if out.Metadata == nil {
		out.Metadata = map[string]string{}
	}
	if cs.Created > 0 {
		out.Created = time.Unix(cs.Created, 0).UTC()
	}
	if cs.PaymentIntent != nil {
		out.PaymentIntentID = cs.PaymentIntent.ID
	}
	return out
}

// call runs fn with a per-attempt timeout, retrying transport failures and 5xx/429 responses.
func (p *StripeProvider) call(ctx context.Context, fn func(ctx context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		err := fn(callCtx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		p.logger.Warn("stripe call failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, p.retries), ctx))
}

func retryable(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.HTTPStatusCode >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled)
}
