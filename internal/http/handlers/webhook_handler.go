// Webhook HTTP handlers.
//
// The voice provider posts call_started and call_ended events. Each request
// is authenticated by an HMAC signature over the raw body, so the body is
// read once, verified, and only then decoded.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/callcenter-backend/internal/http/middleware"
	"github.com/tbourn/callcenter-backend/internal/services"
	"github.com/tbourn/callcenter-backend/internal/webhook"
)

// CallStartedWebhook godoc
// @ID          callStartedWebhook
// @Summary     Provider webhook: call started
// @Description Creates an active call and a dashboard notification. The body must be signed with the call-started secret.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
// @Param       ElevenLabs-Signature  header  string  true  "HMAC signature (t=<unix>,v0=<hex>)"
// @Param       body  body  object  true  "Provider payload"
// @Success     200  {object}  services.StartedResult
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid payload"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid signature"
// @Failure     413  {object}  handlers.ErrorResponse  "Body too large"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /webhooks/elevenlabs/call-started [post]
func (h *Handlers) CallStartedWebhook(c *gin.Context) {
	p, valid := h.readWebhook(c, webhook.KindCallStarted)
	if !valid {
		return
	}
	res, err := h.webhooks.CallStarted(c.Request.Context(), p)
	if err != nil {
		webhookFailure(c, err)
		return
	}
	h.invalidate(c)
	ok(c, http.StatusOK, res)
}

// CallEndedWebhook godoc
// @ID          callEndedWebhook
// @Summary     Provider webhook: call ended
// @Description Ends the active call for the conversation. A repeated or unknown end is acknowledged with ended=false.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
// @Param       ElevenLabs-Signature  header  string  true  "HMAC signature (t=<unix>,v0=<hex>)"
// @Param       body  body  object  true  "Provider payload"
// @Success     200  {object}  services.EndedResult
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid payload or missing conversation_id"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid signature"
// @Failure     413  {object}  handlers.ErrorResponse  "Body too large"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /webhooks/elevenlabs/call-ended [post]
func (h *Handlers) CallEndedWebhook(c *gin.Context) {
	p, valid := h.readWebhook(c, webhook.KindCallEnded)
	if !valid {
		return
	}
	res, err := h.webhooks.CallEnded(c.Request.Context(), p)
	if err != nil {
		webhookFailure(c, err)
		return
	}
	if res.Ended {
		h.invalidate(c)
	}
	ok(c, http.StatusOK, res)
}

// readWebhook reads, verifies and decodes the request body. On failure the
// response has been written and ok is false.
func (h *Handlers) readWebhook(c *gin.Context, kind webhook.Kind) (webhook.Payload, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
			return webhook.Payload{}, false
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unable to read body")
		return webhook.Payload{}, false
	}

	v := webhook.Verifier{
		Secret:        h.secrets.For(kind),
		Tolerance:     h.tolerance,
		AllowUnsigned: h.allowUnsigned,
	}
	if err := v.Verify(body, c.GetHeader(webhook.HeaderSignature)); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Str("webhook", string(kind)).Msg("webhook signature rejected")
		fail(c, http.StatusUnauthorized, ErrCodeInvalidSignature, "invalid signature")
		return webhook.Payload{}, false
	}

	p, err := webhook.Parse(body)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidPayload, "invalid JSON payload")
		return webhook.Payload{}, false
	}
	return p, true
}

func webhookFailure(c *gin.Context, err error) {
	if errors.Is(err, services.ErrMissingConversationID) {
		fail(c, http.StatusBadRequest, ErrCodeMissingConv, err.Error())
		return
	}
	fail(c, http.StatusInternalServerError, ErrCodeWebhookFailed, "failed to process webhook")
}
