package handler

import (
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/allowance-token-system/internal/service"
)

// Client-facing messages, one per error kind.
const (
	msgInvalidBody        = "invalid request body"
	msgInvalidPayload     = "invalid or unreadable token code"
	msgTokenNotFound      = "token not found"
	msgPayloadMismatch    = "token code does not match issued record"
	msgTokenNotActive     = "token is not active"
	msgOutOfWindow        = "token is outside its validity window"
	msgAllowanceExhausted = "token allowance exhausted"
	msgConcurrentUpdate   = "token was updated concurrently, try again"
	msgPartialFailure     = "redemption recorded but the log entry could not be written"
	msgTokenExists        = "could not allocate a token id, try again"
	msgStoreUnavailable   = "token store unavailable"
	msgInternal           = "internal server error"
)

// errorStatus maps a service error to its HTTP status and message.
// ok is false for errors with no known kind.
func errorStatus(err error) (status int, msg string, ok bool) {
	switch {
	// Partial failures wrap store errors, so they are matched first.
	case errors.Is(err, service.ErrPartialFailure):
		return fiber.StatusInternalServerError, msgPartialFailure, true
	case errors.Is(err, service.ErrValidation):
		return fiber.StatusBadRequest, "invalid request: " + validationDetail(err), true
	case errors.Is(err, service.ErrInvalidPayload):
		return fiber.StatusBadRequest, msgInvalidPayload, true
	case errors.Is(err, service.ErrTokenNotFound), errors.Is(err, service.ErrNotFound):
		return fiber.StatusNotFound, msgTokenNotFound, true
	case errors.Is(err, service.ErrPayloadMismatch):
		return fiber.StatusConflict, msgPayloadMismatch, true
	case errors.Is(err, service.ErrTokenNotActive):
		return fiber.StatusConflict, msgTokenNotActive, true
	case errors.Is(err, service.ErrOutOfWindow):
		return fiber.StatusUnprocessableEntity, msgOutOfWindow, true
	case errors.Is(err, service.ErrAllowanceExhausted):
		return fiber.StatusConflict, msgAllowanceExhausted, true
	case errors.Is(err, service.ErrConcurrentUpdate):
		return fiber.StatusConflict, msgConcurrentUpdate, true
	case errors.Is(err, service.ErrTokenExists):
		return fiber.StatusConflict, msgTokenExists, true
	case errors.Is(err, service.ErrStore):
		return fiber.StatusServiceUnavailable, msgStoreUnavailable, true
	}
	return fiber.StatusInternalServerError, msgInternal, false
}

// validationDetail returns the innermost message of a validation error.
func validationDetail(err error) string {
	return errors.UnwrapAll(err).Error()
}

// respondError writes the response for err and logs it once. Store and
// unclassified errors are logged at error level, rejections at info.
func respondError(c *fiber.Ctx, err error, tokenID, action string) error {
	status, msg, known := errorStatus(err)
	if !known || status == fiber.StatusServiceUnavailable {
		log.Error().
			Err(err).
			Str("request_id", requestID(c)).
			Str("token_id", tokenID).
			Msg("failed to " + action)
	} else {
		log.Info().
			Str("request_id", requestID(c)).
			Str("token_id", tokenID).
			Str("outcome", "rejected").
			Str("reason", msg).
			Msg(action + " rejected")
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals("requestid").(string)
	return id
}

// formatValidationError converts validator errors to client messages.
func formatValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			field := fe.Field()
			tag := fe.Tag()

			switch field {
			case "User":
				switch tag {
				case "required":
					return "invalid request: user is required"
				case "notblank":
					return "invalid request: user cannot be whitespace only"
				case "max":
					return "invalid request: user exceeds maximum length of 255"
				case "payloadsafe":
					return "invalid request: user must not contain '|' or line breaks"
				}
				return "invalid request: user is invalid"
			case "Type":
				if tag == "required" {
					return "invalid request: type is required"
				}
				return "invalid request: type must be one of Breakfast, Lunch, Dinner, Snacks, Coupon"
			case "Start", "End", "AsOf":
				name := map[string]string{"Start": "start", "End": "end", "AsOf": "as_of"}[field]
				if tag == "required" {
					return "invalid request: " + name + " is required"
				}
				return "invalid request: " + name + " must be a YYYY-MM-DD date"
			case "Allowance":
				if tag == "required" {
					return "invalid request: allowance is required"
				}
				if tag == "gte" {
					return "invalid request: allowance must be at least 1"
				}
				return "invalid request: allowance is invalid"
			case "Email":
				if tag == "required" {
					return "invalid request: email is required"
				}
				return "invalid request: email is invalid"
			case "Payload":
				if tag == "required" || tag == "notblank" {
					return "invalid request: payload is required"
				}
				if tag == "max" {
					return "invalid request: payload exceeds maximum length of 2048"
				}
				return "invalid request: payload is invalid"
			default:
				if tag == "required" {
					return "invalid request: " + field + " is required"
				}
				return "invalid request: " + field + " is invalid"
			}
		}
	}
	return "invalid request"
}
