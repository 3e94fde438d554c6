package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/allowance-token-system/internal/model"
)

// IssuanceServiceInterface defines the interface for token issuance.
type IssuanceServiceInterface interface {
	Issue(ctx context.Context, params model.IssueParams) (*model.Token, error)
}

// TokenQueryServiceInterface defines the interface for token reads.
type TokenQueryServiceInterface interface {
	Get(ctx context.Context, id string) (*model.Token, error)
	List(ctx context.Context) ([]model.Token, error)
	RedemptionLog(ctx context.Context, tokenID string) ([]model.RedemptionLogEntry, error)
	Summary(ctx context.Context) ([]model.TypeSummary, error)
}

// ImageRenderer renders a payload as an image.
type ImageRenderer interface {
	Render(payload string) ([]byte, error)
}

// DelivererInterface sends a token to a recipient.
type DelivererInterface interface {
	Deliver(ctx context.Context, token *model.Token, recipient string) model.DeliveryResult
}

// TokenHandler handles HTTP requests for token operations.
type TokenHandler struct {
	issuer    IssuanceServiceInterface
	query     TokenQueryServiceInterface
	renderer  ImageRenderer
	deliverer DelivererInterface
	validator *validator.Validate
}

// NewTokenHandler creates a new TokenHandler.
func NewTokenHandler(
	issuer IssuanceServiceInterface,
	query TokenQueryServiceInterface,
	renderer ImageRenderer,
	deliverer DelivererInterface,
	v *validator.Validate,
) *TokenHandler {
	return &TokenHandler{
		issuer:    issuer,
		query:     query,
		renderer:  renderer,
		deliverer: deliverer,
		validator: v,
	}
}

// IssueToken handles POST /api/tokens requests. When an e-mail is given the
// token is delivered after it is stored; a failed delivery does not undo issuance.
func (h *TokenHandler) IssueToken(c *fiber.Ctx) error {
	var req model.IssueTokenRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msgInvalidBody})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	token, err := h.issuer.Issue(c.Context(), model.IssueParams{
		User:      req.User,
		Type:      req.Type,
		Start:     req.Start,
		End:       req.End,
		Allowance: *req.Allowance,
	})
	if err != nil {
		return respondError(c, err, "", "issue token")
	}

	log.Info().
		Str("request_id", requestID(c)).
		Str("token_id", token.ID).
		Str("type", string(token.Type)).
		Int("allowance", token.Allowance).
		Msg("token issued")

	resp := model.IssueTokenResponse{Token: token}
	if req.Email != "" {
		result := h.deliverer.Deliver(c.Context(), token, req.Email)
		resp.Delivery = &result
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// ListTokens handles GET /api/tokens requests.
func (h *TokenHandler) ListTokens(c *fiber.Ctx) error {
	tokens, err := h.query.List(c.Context())
	if err != nil {
		return respondError(c, err, "", "list tokens")
	}
	return c.JSON(tokens)
}

// Summary handles GET /api/tokens/summary requests.
func (h *TokenHandler) Summary(c *fiber.Ctx) error {
	summary, err := h.query.Summary(c.Context())
	if err != nil {
		return respondError(c, err, "", "summarize tokens")
	}
	return c.JSON(summary)
}

// GetToken handles GET /api/tokens/:id requests.
func (h *TokenHandler) GetToken(c *fiber.Ctx) error {
	id := c.Params("id")
	token, err := h.query.Get(c.Context(), id)
	if err != nil {
		return respondError(c, err, id, "get token")
	}
	return c.JSON(token)
}

// TokenQR handles GET /api/tokens/:id/qr requests with a PNG of the payload.
func (h *TokenHandler) TokenQR(c *fiber.Ctx) error {
	id := c.Params("id")
	token, err := h.query.Get(c.Context(), id)
	if err != nil {
		return respondError(c, err, id, "get token")
	}

	png, err := h.renderer.Render(token.Payload)
	if err != nil {
		return respondError(c, err, token.ID, "render token image")
	}

	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderContentDisposition, `inline; filename="`+token.ID+`.png"`)
	return c.Send(png)
}

// DeliverToken handles POST /api/tokens/:id/deliver requests.
func (h *TokenHandler) DeliverToken(c *fiber.Ctx) error {
	id := c.Params("id")

	var req model.DeliverTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msgInvalidBody})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	token, err := h.query.Get(c.Context(), id)
	if err != nil {
		return respondError(c, err, id, "get token")
	}

	result := h.deliverer.Deliver(c.Context(), token, req.Email)
	log.Info().
		Str("request_id", requestID(c)).
		Str("token_id", token.ID).
		Bool("success", result.Success).
		Msg("token delivery attempted")
	return c.JSON(result)
}

// TokenRedemptions handles GET /api/tokens/:id/redemptions requests.
func (h *TokenHandler) TokenRedemptions(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.query.Get(c.Context(), id); err != nil {
		return respondError(c, err, id, "get token")
	}

	entries, err := h.query.RedemptionLog(c.Context(), id)
	if err != nil {
		return respondError(c, err, id, "list redemptions")
	}
	return c.JSON(entries)
}
