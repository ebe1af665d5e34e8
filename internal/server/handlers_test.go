package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokemonrocks9/thinking-of-you-backend/internal/domain"
	"github.com/pokemonrocks9/thinking-of-you-backend/internal/platform/config"
	"github.com/pokemonrocks9/thinking-of-you-backend/internal/relay"
)

// --- Mock implementation ---

type mockRelayService struct {
	registerFn        func(ctx context.Context, linkCode, name, externalChannel string) (relay.RegisterResult, error)
	pingFn            func(ctx context.Context, linkCode, senderName string, payload json.RawMessage) (relay.PingResult, error)
	checkFn           func(ctx context.Context, linkCode, recipientName string) (relay.CheckResult, error)
	writeAuxFn        func(ctx context.Context, linkCode string, blob json.RawMessage) error
	readAuxFn         func(ctx context.Context, linkCode string) (json.RawMessage, error)
	registeredNamesFn func(ctx context.Context, linkCode string) ([]string, bool, error)
	sessionCountFn    func(ctx context.Context) (int, error)
}

func (m *mockRelayService) Register(ctx context.Context, linkCode, name, externalChannel string) (relay.RegisterResult, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, linkCode, name, externalChannel)
	}
	return relay.RegisterResult{}, fmt.Errorf("not implemented")
}

func (m *mockRelayService) Ping(ctx context.Context, linkCode, senderName string, payload json.RawMessage) (relay.PingResult, error) {
	if m.pingFn != nil {
		return m.pingFn(ctx, linkCode, senderName, payload)
	}
	return relay.PingResult{}, fmt.Errorf("not implemented")
}

func (m *mockRelayService) Check(ctx context.Context, linkCode, recipientName string) (relay.CheckResult, error) {
	if m.checkFn != nil {
		return m.checkFn(ctx, linkCode, recipientName)
	}
	return relay.CheckResult{}, nil
}

func (m *mockRelayService) WriteAux(ctx context.Context, linkCode string, blob json.RawMessage) error {
	if m.writeAuxFn != nil {
		return m.writeAuxFn(ctx, linkCode, blob)
	}
	return nil
}

func (m *mockRelayService) ReadAux(ctx context.Context, linkCode string) (json.RawMessage, error) {
	if m.readAuxFn != nil {
		return m.readAuxFn(ctx, linkCode)
	}
	return nil, nil
}

func (m *mockRelayService) RegisteredNames(ctx context.Context, linkCode string) ([]string, bool, error) {
	if m.registeredNamesFn != nil {
		return m.registeredNamesFn(ctx, linkCode)
	}
	return []string{}, false, nil
}

func (m *mockRelayService) SessionCount(ctx context.Context) (int, error) {
	if m.sessionCountFn != nil {
		return m.sessionCountFn(ctx)
	}
	return 0, nil
}

// --- Test helpers ---

func newTestServer(t *testing.T, svc relayService) *Server {
	t.Helper()
	cfg := &config.Config{
		AppEnv:          "test",
		Port:            "8080",
		MaxPayloadBytes: 4096,
		RateLimitRPS:    1000,
		RateLimitBurst:  1000,
	}
	return NewServer(cfg, svc, clockwork.NewFakeClock())
}

func doJSON(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

// --- /register ---

func TestHandleRegister_Success(t *testing.T) {
	svc := &mockRelayService{
		registerFn: func(_ context.Context, linkCode, name, channel string) (relay.RegisterResult, error) {
			assert.Equal(t, "ABC123", linkCode)
			assert.Equal(t, "Alice", name)
			assert.Equal(t, "tl-token", channel)
			return relay.RegisterResult{Outcome: domain.OutcomeFirstSlot, Connected: false}, nil
		},
	}
	srv := newTestServer(t, svc)

	rec, body := doJSON(t, srv, http.MethodPost, "/register",
		`{"linkCode":"ABC123","name":"Alice","timelineToken":"tl-token"}`)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["connected"])
}

func TestHandleRegister_ConnectedAfterSecondSlot(t *testing.T) {
	svc := &mockRelayService{
		registerFn: func(context.Context, string, string, string) (relay.RegisterResult, error) {
			return relay.RegisterResult{Outcome: domain.OutcomeSecondSlot, Connected: true}, nil
		},
	}
	srv := newTestServer(t, svc)

	rec, body := doJSON(t, srv, http.MethodPost, "/register", `{"linkCode":"ABC123","name":"Bob"}`)

	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, true, body["connected"])
}

func TestHandleRegister_MissingFields(t *testing.T) {
	srv := newTestServer(t, &mockRelayService{})

	rec, body := doJSON(t, srv, http.MethodPost, "/register", `{"name":"Alice"}`)
	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, "validation", body["type"])

	rec, _ = doJSON(t, srv, http.MethodPost, "/register", `{"linkCode":"ABC123"}`)
	assert.Equal(t, 400, rec.Code)
}

func TestHandleRegister_ChannelAliasPrecedence(t *testing.T) {
	var gotChannel string
	svc := &mockRelayService{
		registerFn: func(_ context.Context, _, _, channel string) (relay.RegisterResult, error) {
			gotChannel = channel
			return relay.RegisterResult{}, nil
		},
	}
	srv := newTestServer(t, svc)

	_, _ = doJSON(t, srv, http.MethodPost, "/register",
		`{"linkCode":"ABC123","name":"Alice","externalChannel":"chan","webhookUrl":"https://x","timelineToken":"tok"}`)
	assert.Equal(t, "chan", gotChannel)

	_, _ = doJSON(t, srv, http.MethodPost, "/register",
		`{"linkCode":"ABC123","name":"Alice","webhookUrl":"https://x","timelineToken":"tok"}`)
	assert.Equal(t, "https://x", gotChannel)
}

func TestHandleRegister_APIPrefixAlias(t *testing.T) {
	svc := &mockRelayService{
		registerFn: func(context.Context, string, string, string) (relay.RegisterResult, error) {
			return relay.RegisterResult{Connected: true}, nil
		},
	}
	srv := newTestServer(t, svc)

	rec, _ := doJSON(t, srv, http.MethodPost, "/api/register", `{"linkCode":"ABC123","name":"Alice"}`)
	assert.Equal(t, 200, rec.Code)
}

// --- /ping ---

func TestHandlePing_Success(t *testing.T) {
	svc := &mockRelayService{
		pingFn: func(_ context.Context, linkCode, sender string, _ json.RawMessage) (relay.PingResult, error) {
			assert.Equal(t, "ABC123", linkCode)
			assert.Equal(t, "Alice", sender)
			return relay.PingResult{Queued: true}, nil
		},
	}
	srv := newTestServer(t, svc)

	rec, body := doJSON(t, srv, http.MethodPost, "/ping", `{"linkCode":"ABC123","senderName":"Alice"}`)
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, true, body["success"])
}

func TestHandlePing_UnknownLinkCodeIs404(t *testing.T) {
	svc := &mockRelayService{
		pingFn: func(context.Context, string, string, json.RawMessage) (relay.PingResult, error) {
			return relay.PingResult{}, domain.ErrSessionNotFound
		},
	}
	srv := newTestServer(t, svc)

	rec, body := doJSON(t, srv, http.MethodPost, "/ping", `{"linkCode":"NOPE","senderName":"Alice"}`)
	assert.Equal(t, 404, rec.Code)
	assert.Equal(t, "not_found", body["type"])
	assert.NotEmpty(t, body["error"])
}

func TestHandlePing_BeforePairingIs400(t *testing.T) {
	svc := &mockRelayService{
		pingFn: func(context.Context, string, string, json.RawMessage) (relay.PingResult, error) {
			return relay.PingResult{}, domain.ErrNotPaired
		},
	}
	srv := newTestServer(t, svc)

	rec, body := doJSON(t, srv, http.MethodPost, "/ping", `{"linkCode":"ABC123","senderName":"Alice"}`)
	assert.Equal(t, 400, rec.Code)
	assert.Equal(t, "state", body["type"])
}

func TestHandlePing_PayloadTooLarge(t *testing.T) {
	srv := newTestServer(t, &mockRelayService{})

	payload := strings.Repeat("x", 5000)
	rec, _ := doJSON(t, srv, http.MethodPost, "/ping",
		`{"linkCode":"ABC123","senderName":"Alice","payload":"`+payload+`"}`)
	assert.Equal(t, 400, rec.Code)
}

// --- /check ---

func TestHandleCheck_Delivered(t *testing.T) {
	svc := &mockRelayService{
		checkFn: func(_ context.Context, linkCode, recipient string) (relay.CheckResult, error) {
			assert.Equal(t, "ABC123", linkCode)
			assert.Equal(t, "Bob", recipient)
			return relay.CheckResult{HasNotification: true, Payload: json.RawMessage(`{"seq":2}`)}, nil
		},
	}
	srv := newTestServer(t, svc)

	rec, body := doJSON(t, srv, http.MethodGet, "/check?linkCode=ABC123&recipientName=Bob", "")
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, true, body["hasNotification"])
	assert.Equal(t, true, body["hasPing"], "legacy client field")
	assert.NotNil(t, body["payload"])
}

func TestHandleCheck_Empty(t *testing.T) {
	srv := newTestServer(t, &mockRelayService{})

	rec, body := doJSON(t, srv, http.MethodGet, "/check?linkCode=ABC123&recipientName=Bob", "")
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, false, body["hasNotification"])
	_, hasPayload := body["payload"]
	assert.False(t, hasPayload)
}

func TestHandleCheck_MissingParams(t *testing.T) {
	srv := newTestServer(t, &mockRelayService{})

	rec, _ := doJSON(t, srv, http.MethodGet, "/check?recipientName=Bob", "")
	assert.Equal(t, 400, rec.Code)

	rec, _ = doJSON(t, srv, http.MethodGet, "/check?linkCode=ABC123", "")
	assert.Equal(t, 400, rec.Code)
}

func TestHandleCheck_EncodedRecipientName(t *testing.T) {
	var gotRecipient string
	svc := &mockRelayService{
		checkFn: func(_ context.Context, _, recipient string) (relay.CheckResult, error) {
			gotRecipient = recipient
			return relay.CheckResult{}, nil
		},
	}
	srv := newTestServer(t, svc)

	rec, _ := doJSON(t, srv, http.MethodGet, "/check?linkCode=ABC123&recipientName="+url.QueryEscape("Bob Smith"), "")
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "Bob Smith", gotRecipient)
}

// --- /distance ---

func TestHandleWriteDistance(t *testing.T) {
	var gotBlob json.RawMessage
	svc := &mockRelayService{
		writeAuxFn: func(_ context.Context, _ string, blob json.RawMessage) error {
			gotBlob = blob
			return nil
		},
	}
	srv := newTestServer(t, svc)

	rec, body := doJSON(t, srv, http.MethodPost, "/distance", `{"linkCode":"ABC123","value":"12 km"}`)
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.JSONEq(t, `"12 km"`, string(gotBlob))
}

func TestHandleWriteDistance_UnknownLinkCodeIs404(t *testing.T) {
	svc := &mockRelayService{
		writeAuxFn: func(context.Context, string, json.RawMessage) error {
			return domain.ErrSessionNotFound
		},
	}
	srv := newTestServer(t, svc)

	rec, _ := doJSON(t, srv, http.MethodPost, "/distance", `{"linkCode":"NOPE","value":"12 km"}`)
	assert.Equal(t, 404, rec.Code)
}

func TestHandleWriteDistance_MissingValue(t *testing.T) {
	srv := newTestServer(t, &mockRelayService{})

	rec, _ := doJSON(t, srv, http.MethodPost, "/distance", `{"linkCode":"ABC123"}`)
	assert.Equal(t, 400, rec.Code)
}

func TestHandleReadDistance(t *testing.T) {
	svc := &mockRelayService{
		readAuxFn: func(context.Context, string) (json.RawMessage, error) {
			return json.RawMessage(`"12 km"`), nil
		},
	}
	srv := newTestServer(t, svc)

	rec, body := doJSON(t, srv, http.MethodGet, "/distance?linkCode=ABC123", "")
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "12 km", body["value"])
}

func TestHandleReadDistance_AbsentIsNull(t *testing.T) {
	srv := newTestServer(t, &mockRelayService{})

	rec, body := doJSON(t, srv, http.MethodGet, "/distance?linkCode=ABC123", "")
	assert.Equal(t, 200, rec.Code)
	val, present := body["value"]
	assert.True(t, present)
	assert.Nil(t, val)
}

// --- /whoIsRegistered ---

func TestHandleWhoIsRegistered(t *testing.T) {
	svc := &mockRelayService{
		registeredNamesFn: func(context.Context, string) ([]string, bool, error) {
			return []string{"Alice", "Bob"}, true, nil
		},
	}
	srv := newTestServer(t, svc)

	rec, body := doJSON(t, srv, http.MethodGet, "/whoIsRegistered?linkCode=ABC123", "")
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, true, body["exists"])
	assert.Equal(t, []any{"Alice", "Bob"}, body["registeredNames"])
}

func TestHandleWhoIsRegistered_UnknownCode(t *testing.T) {
	srv := newTestServer(t, &mockRelayService{})

	rec, body := doJSON(t, srv, http.MethodGet, "/whoIsRegistered?linkCode=NOPE", "")
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, false, body["exists"])
	assert.Equal(t, []any{}, body["registeredNames"])
}
