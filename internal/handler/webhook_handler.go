package handler

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/internal/dto"
	"github.com/mcofie/gatepass-settlement/internal/metrics"
	"github.com/mcofie/gatepass-settlement/internal/service"
	"github.com/mcofie/gatepass-settlement/pkg/logger"
	"github.com/mcofie/gatepass-settlement/pkg/response"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
)

const (
	// SignatureHeader carries hex(HMAC-SHA512(body, secret))
	SignatureHeader = "X-Signature"
	// PaystackSignatureHeader is accepted as an alias of SignatureHeader
	PaystackSignatureHeader = "X-Paystack-Signature"
	// LegacyTokenHeader authenticates the legacy webhook
	LegacyTokenHeader = "X-Webhook-Token"
	// StripeSignatureHeader is verified by the stripe SDK
	StripeSignatureHeader = "Stripe-Signature"

	maxWebhookBody = 1 << 20
)

// WebhookConfig holds the webhook secrets
type WebhookConfig struct {
	// Secret keys the HMAC-SHA512 signature of /webhooks/gateway
	Secret string
	// StripeSecret is the whsec_ endpoint secret Stripe signs with
	StripeSecret string
	LegacyToken  string
}

// WebhookHandler handles gateway callbacks. Signatures are checked before
// the settlement service is called.
type WebhookHandler struct {
	settlements  service.SettlementService
	secret       string
	stripeSecret string
	legacyToken  string
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(settlements service.SettlementService, cfg *WebhookConfig) *WebhookHandler {
	h := &WebhookHandler{settlements: settlements}
	if cfg != nil {
		h.secret = cfg.Secret
		h.stripeSecret = cfg.StripeSecret
		h.legacyToken = cfg.LegacyToken
	}
	return h
}

// HandleGatewayWebhook handles POST /webhooks/gateway
func (h *WebhookHandler) HandleGatewayWebhook(c *gin.Context) {
	payload, ok := readBody(c)
	if !ok {
		return
	}

	signature := c.GetHeader(SignatureHeader)
	if signature == "" {
		signature = c.GetHeader(PaystackSignatureHeader)
	}
	if !VerifySignature(payload, signature, h.secret) {
		h.reject(c, domain.SourceWebhook, "signature_mismatch")
		return
	}

	h.handleEnvelope(c, payload, domain.SourceWebhook)
}

// HandleLegacyWebhook handles POST /webhooks/legacy
func (h *WebhookHandler) HandleLegacyWebhook(c *gin.Context) {
	payload, ok := readBody(c)
	if !ok {
		return
	}

	token := c.GetHeader(LegacyTokenHeader)
	if h.legacyToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.legacyToken)) != 1 {
		h.reject(c, domain.SourceLegacyWebhook, "token_mismatch")
		return
	}

	h.handleEnvelope(c, payload, domain.SourceLegacyWebhook)
}

// HandleStripeWebhook handles POST /webhooks/stripe
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	payload, ok := readBody(c)
	if !ok {
		return
	}

	if h.stripeSecret == "" {
		h.reject(c, domain.SourceWebhook, "stripe_secret_unset")
		return
	}
	event, err := webhook.ConstructEvent(payload, c.GetHeader(StripeSignatureHeader), h.stripeSecret)
	if err != nil {
		h.reject(c, domain.SourceWebhook, "signature_mismatch")
		return
	}
	metrics.RecordWebhookReceived(c.Request.Context(), string(domain.SourceWebhook), string(event.Type))

	if event.Type != "payment_intent.succeeded" {
		c.JSON(http.StatusOK, dto.WebhookAck{Received: true, Message: "event ignored"})
		return
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil || intent.ID == "" {
		response.BadRequest(c, "invalid payment intent payload")
		return
	}
	h.settle(c, intent.ID, domain.SourceWebhook)
}

func (h *WebhookHandler) handleEnvelope(c *gin.Context, payload []byte, source domain.SettlementSource) {
	var envelope dto.WebhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		response.BadRequest(c, "invalid webhook payload")
		return
	}
	metrics.RecordWebhookReceived(c.Request.Context(), string(source), envelope.Event)

	if envelope.Event != dto.EventChargeSuccess {
		c.JSON(http.StatusOK, dto.WebhookAck{Received: true, Message: "event ignored"})
		return
	}

	reference := strings.TrimSpace(envelope.Data.Reference)
	if reference == "" {
		response.BadRequest(c, "reference is required")
		return
	}
	h.settle(c, reference, source)
}

// settle answers 503 for retryable failures so the gateway redelivers,
// and 200 for everything else
func (h *WebhookHandler) settle(c *gin.Context, reference string, source domain.SettlementSource) {
	ctx := c.Request.Context()
	result, err := h.settlements.VerifyAndSettle(ctx, &service.VerifyRequest{
		Reference: reference,
		Source:    source,
	})

	if err != nil {
		if domain.IsRetryable(err) {
			response.ServiceUnavailable(c, "temporary failure, retry later")
			return
		}
		logger.Get().WarnContext(ctx, "webhook settlement rejected",
			zap.String("reference", reference),
			zap.String("source", string(source)),
			zap.Error(err),
		)
		c.JSON(http.StatusOK, dto.WebhookAck{Received: true, State: string(domain.StateFailed), Message: domain.ErrorCode(err)})
		return
	}

	c.JSON(http.StatusOK, dto.WebhookAck{Received: true, State: string(result.State)})
}

func (h *WebhookHandler) reject(c *gin.Context, source domain.SettlementSource, reason string) {
	metrics.RecordWebhookRejected(c.Request.Context(), string(source), reason)
	logger.Get().WarnContext(c.Request.Context(), "webhook rejected",
		zap.String("source", string(source)),
		zap.String("reason", reason),
		zap.String("client_ip", c.ClientIP()),
	)
	response.Unauthorized(c, domain.ErrSignatureMismatch.Error())
}

func readBody(c *gin.Context) ([]byte, bool) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "failed to read request body")
		return nil, false
	}
	return payload, true
}

// VerifySignature reports whether signature is hex(HMAC-SHA512(payload, secret)).
// An empty secret never verifies.
func VerifySignature(payload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	return hmac.Equal(got, Sign(payload, secret))
}

// Sign computes the HMAC-SHA512 of payload
func Sign(payload []byte, secret string) []byte {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}
