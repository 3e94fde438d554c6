package handler

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/allowance-token-system/internal/model"
	"github.com/fairyhunter13/allowance-token-system/internal/service"
)

// RedemptionServiceInterface defines the interface for redemption business logic.
type RedemptionServiceInterface interface {
	Redeem(ctx context.Context, rawText, asOfDate string) (*model.RedemptionResult, error)
}

// RedemptionLogReader reads the uses log.
type RedemptionLogReader interface {
	RedemptionLog(ctx context.Context, tokenID string) ([]model.RedemptionLogEntry, error)
}

// RedemptionHandler handles HTTP requests for redemptions.
type RedemptionHandler struct {
	service   RedemptionServiceInterface
	log       RedemptionLogReader
	validator *validator.Validate
}

// NewRedemptionHandler creates a new RedemptionHandler.
func NewRedemptionHandler(svc RedemptionServiceInterface, logReader RedemptionLogReader, v *validator.Validate) *RedemptionHandler {
	return &RedemptionHandler{service: svc, log: logReader, validator: v}
}

// Redeem handles POST /api/redemptions requests.
// Returns 200 with the redemption result on success.
// A partial failure answers 500 and still carries the result, since the use was counted.
func (h *RedemptionHandler) Redeem(c *fiber.Ctx) error {
	var req model.RedeemTokenRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msgInvalidBody})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatValidationError(err)})
	}

	result, err := h.service.Redeem(c.Context(), req.Payload, req.AsOf)
	if err != nil {
		if errors.Is(err, service.ErrPartialFailure) && result != nil {
			log.Error().
				Err(err).
				Str("request_id", requestID(c)).
				Str("token_id", result.TokenID).
				Str("outcome", "partial_failure").
				Msg("redemption counted without log entry")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":  msgPartialFailure,
				"result": result,
			})
		}
		return respondError(c, err, "", "redeem token")
	}

	log.Info().
		Str("request_id", requestID(c)).
		Str("token_id", result.TokenID).
		Str("outcome", "redeemed").
		Int("remaining", result.Remaining).
		Msg("token redeemed")

	return c.JSON(result)
}

// ListRedemptions handles GET /api/redemptions requests with the full uses log.
func (h *RedemptionHandler) ListRedemptions(c *fiber.Ctx) error {
	entries, err := h.log.RedemptionLog(c.Context(), "")
	if err != nil {
		return respondError(c, err, "", "list redemptions")
	}
	return c.JSON(entries)
}
