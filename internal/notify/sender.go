package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/allowance-token-system/internal/model"
)

// DefaultResendBaseURL is the public Resend API endpoint.
const DefaultResendBaseURL = "https://api.resend.com"

// DefaultSendTimeout bounds one delivery attempt.
const DefaultSendTimeout = 10 * time.Second

// Sender delivers an image with a caption to a recipient.
// Failures are reported in the result, never returned as errors.
type Sender interface {
	Send(ctx context.Context, recipient string, image []byte, caption string) model.DeliveryResult
}

// ResendConfig configures a ResendSender.
type ResendConfig struct {
	APIKey  string
	BaseURL string
	From    string
	Timeout time.Duration
}

// ResendSender sends e-mail with the image attached through the Resend API.
type ResendSender struct {
	apiKey  string
	baseURL string
	from    string
	timeout time.Duration
}

// NewResendSender creates a ResendSender. An empty APIKey leaves it disabled.
func NewResendSender(cfg ResendConfig) *ResendSender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultResendBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSendTimeout
	}
	return &ResendSender{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		from:    cfg.From,
		timeout: cfg.Timeout,
	}
}

// Enabled reports whether an API key is configured.
func (s *ResendSender) Enabled() bool {
	return s.apiKey != ""
}

type resendAttachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type resendEmail struct {
	From        string             `json:"from"`
	To          []string           `json:"to"`
	Subject     string             `json:"subject"`
	HTML        string             `json:"html"`
	Text        string             `json:"text"`
	Attachments []resendAttachment `json:"attachments"`
}

// Send posts one e-mail to {baseURL}/emails.
func (s *ResendSender) Send(ctx context.Context, recipient string, image []byte, caption string) model.DeliveryResult {
	if !s.Enabled() {
		return model.DeliveryResult{Success: false, Message: "e-mail delivery is not configured"}
	}
	if recipient == "" {
		return model.DeliveryResult{Success: false, Message: "recipient is required"}
	}
	if err := ctx.Err(); err != nil {
		return model.DeliveryResult{Success: false, Message: "delivery cancelled: " + err.Error()}
	}

	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	body := resendEmail{
		From:    s.from,
		To:      []string{recipient},
		Subject: caption,
		HTML:    "<p>" + html.EscapeString(caption) + "</p><p>Your token code is attached.</p>",
		Text:    caption,
		Attachments: []resendAttachment{{
			Filename: "token.png",
			Content:  base64.StdEncoding.EncodeToString(image),
		}},
	}

	agent := fiber.Post(s.baseURL + "/emails")
	agent.Set(fiber.HeaderAuthorization, "Bearer "+s.apiKey)
	agent.JSON(body)
	agent.Timeout(timeout)

	code, resp, errs := agent.Bytes()
	if len(errs) > 0 {
		log.Warn().Err(errs[0]).Str("recipient", recipient).Msg("resend request failed")
		return model.DeliveryResult{Success: false, Message: "delivery failed: " + errs[0].Error()}
	}
	if code < fiber.StatusOK || code >= fiber.StatusMultipleChoices {
		log.Warn().
			Int("status", code).
			Str("recipient", recipient).
			Str("response", string(resp)).
			Msg("resend rejected e-mail")
		return model.DeliveryResult{Success: false, Message: fmt.Sprintf("delivery rejected with status %d", code)}
	}

	log.Info().Str("recipient", recipient).Msg("token e-mail sent")
	return model.DeliveryResult{Success: true, Message: "sent to " + recipient}
}
