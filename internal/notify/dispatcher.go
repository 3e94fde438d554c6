package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/allowance-token-system/internal/model"
)

// Dispatcher renders a token's payload and hands the image to a Sender.
type Dispatcher struct {
	renderer Renderer
	sender   Sender
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(renderer Renderer, sender Sender) *Dispatcher {
	return &Dispatcher{renderer: renderer, sender: sender}
}

// Deliver sends token to recipient. Rendering failures become a failed result.
func (d *Dispatcher) Deliver(ctx context.Context, token *model.Token, recipient string) model.DeliveryResult {
	if token == nil {
		return model.DeliveryResult{Success: false, Message: "no token to deliver"}
	}
	image, err := d.renderer.Render(token.Payload)
	if err != nil {
		log.Error().Err(err).Str("token_id", token.ID).Msg("failed to render token image")
		return model.DeliveryResult{Success: false, Message: "could not render token image"}
	}
	return d.sender.Send(ctx, recipient, image, Caption(token))
}

// Caption describes a token in one line.
func Caption(t *model.Token) string {
	uses := "uses"
	if t.Allowance == 1 {
		uses = "use"
	}
	return fmt.Sprintf("%s token %s for %s, valid %s to %s, %d %s",
		t.Type, t.ID, t.User, t.Start, t.End, t.Allowance, uses)
}
