package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/allowance-token-system/internal/model"
)

type mockIssuer struct {
	issueFn func(ctx context.Context, params model.IssueParams) (*model.Token, error)
}

func (m *mockIssuer) Issue(ctx context.Context, params model.IssueParams) (*model.Token, error) {
	if m.issueFn != nil {
		return m.issueFn(ctx, params)
	}
	return nil, nil
}

type mockQuery struct {
	getFn           func(ctx context.Context, id string) (*model.Token, error)
	listFn          func(ctx context.Context) ([]model.Token, error)
	redemptionLogFn func(ctx context.Context, tokenID string) ([]model.RedemptionLogEntry, error)
	summaryFn       func(ctx context.Context) ([]model.TypeSummary, error)
}

func (m *mockQuery) Get(ctx context.Context, id string) (*model.Token, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, nil
}

func (m *mockQuery) List(ctx context.Context) ([]model.Token, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []model.Token{}, nil
}

func (m *mockQuery) RedemptionLog(ctx context.Context, tokenID string) ([]model.RedemptionLogEntry, error) {
	if m.redemptionLogFn != nil {
		return m.redemptionLogFn(ctx, tokenID)
	}
	return []model.RedemptionLogEntry{}, nil
}

func (m *mockQuery) Summary(ctx context.Context) ([]model.TypeSummary, error) {
	if m.summaryFn != nil {
		return m.summaryFn(ctx)
	}
	return []model.TypeSummary{}, nil
}

type mockRenderer struct {
	renderFn func(payload string) ([]byte, error)
}

func (m *mockRenderer) Render(payload string) ([]byte, error) {
	if m.renderFn != nil {
		return m.renderFn(payload)
	}
	return []byte("\x89PNG\r\n\x1a\nfake"), nil
}

type mockDeliverer struct {
	deliverFn func(ctx context.Context, token *model.Token, recipient string) model.DeliveryResult
}

func (m *mockDeliverer) Deliver(ctx context.Context, token *model.Token, recipient string) model.DeliveryResult {
	if m.deliverFn != nil {
		return m.deliverFn(ctx, token, recipient)
	}
	return model.DeliveryResult{Success: true, Message: "sent to " + recipient}
}

type mockRedeemer struct {
	redeemFn func(ctx context.Context, rawText, asOfDate string) (*model.RedemptionResult, error)
}

func (m *mockRedeemer) Redeem(ctx context.Context, rawText, asOfDate string) (*model.RedemptionResult, error) {
	if m.redeemFn != nil {
		return m.redeemFn(ctx, rawText, asOfDate)
	}
	return nil, nil
}

func sampleToken() *model.Token {
	return &model.Token{
		ID:        "7F3A9C2B1D",
		User:      "Asha",
		Type:      model.TokenTypeLunch,
		Start:     "2025-01-10",
		End:       "2025-01-12",
		Allowance: 3,
		Used:      0,
		Status:    model.StatusActive,
		Payload:   "MTK|id=7F3A9C2B1D|user=Asha|type=Lunch|allow=3|start=2025-01-10|end=2025-01-12",
	}
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	msg, _ := result["error"].(string)
	return msg
}
