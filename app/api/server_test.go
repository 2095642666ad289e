package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWebhooks struct {
	err      error
	body     string
	instance string
	calls    int
}

func (f *fakeWebhooks) Handle(_ context.Context, body []byte, instance string) ([]string, error) {
	f.calls++
	f.body = string(body)
	f.instance = instance
	if f.err != nil {
		return nil, f.err
	}
	return []string{"buffered"}, nil
}

type fixedCounter int

func (c fixedCounter) Len() int { return int(c) }

func decode(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestServer_Webhook(t *testing.T) {
	hooks := &fakeWebhooks{}
	srv := NewServer(":0", "", hooks, fixedCounter(0))

	req := httptest.NewRequest("POST", "/webhook/shop", strings.NewReader(`{"event":"messages.upsert"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, []any{"buffered"}, decode(t, resp.Body)["results"])

	assert.Equal(t, "shop", hooks.instance)
	assert.Equal(t, `{"event":"messages.upsert"}`, hooks.body)
}

func TestServer_Webhook_EventSuffixAndBareRoute(t *testing.T) {
	hooks := &fakeWebhooks{}
	srv := NewServer(":0", "", hooks, fixedCounter(0))

	resp, err := srv.App().Test(httptest.NewRequest("POST", "/webhook/shop/messages-upsert", strings.NewReader(`{}`)))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "shop", hooks.instance)

	resp, err = srv.App().Test(httptest.NewRequest("POST", "/webhook", strings.NewReader(`{}`)))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "", hooks.instance)
	assert.Equal(t, 2, hooks.calls)
}

func TestServer_Webhook_Token(t *testing.T) {
	hooks := &fakeWebhooks{}
	srv := NewServer(":0", "s3cret", hooks, fixedCounter(0))

	resp, err := srv.App().Test(httptest.NewRequest("POST", "/webhook", strings.NewReader(`{}`)))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(`{}`))
	req.Header.Set(tokenHeader, "wrong")
	resp, err = srv.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
	assert.Zero(t, hooks.calls)

	req = httptest.NewRequest("POST", "/webhook", strings.NewReader(`{}`))
	req.Header.Set(tokenHeader, "s3cret")
	resp, err = srv.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = srv.App().Test(httptest.NewRequest("POST", "/webhook/shop?token=s3cret", strings.NewReader(`{}`)))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 2, hooks.calls)
}

func TestServer_Webhook_InvalidPayload(t *testing.T) {
	srv := NewServer(":0", "", &fakeWebhooks{err: errors.New("decode webhook")}, fixedCounter(0))

	resp, err := srv.App().Test(httptest.NewRequest("POST", "/webhook", strings.NewReader(`{`)))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "invalid payload", decode(t, resp.Body)["error"])
}

func TestServer_Health(t *testing.T) {
	srv := NewServer(":0", "s3cret", &fakeWebhooks{}, fixedCounter(3))

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body := decode(t, resp.Body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(3), body["buffers"])
}

func TestIsLoopback(t *testing.T) {
	assert.True(t, isLoopback("127.0.0.1:8080"))
	assert.True(t, isLoopback("localhost:8080"))
	assert.False(t, isLoopback(":8080"))
	assert.False(t, isLoopback("0.0.0.0:8080"))
}
