package evolution

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"barberbot/app/domain"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_FetchHistory(t *testing.T) {
	var gotPath, gotKey string
	var gotBody findMessagesRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("apikey")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_, _ = io.WriteString(w, `{"messages":{"total":2,"pages":1,"currentPage":1,"records":[
			{"key":{"remoteJid":"5511@s.whatsapp.net","fromMe":true,"id":"B"},"message":{"extendedTextMessage":{"text":"Olá!"}},"messageTimestamp":1767261600},
			{"key":{"remoteJid":"5511@s.whatsapp.net","fromMe":false,"id":"A"},"message":{"conversation":"Oi"},"messageTimestamp":"1767261500"}
		]}}`)
	}))
	defer srv.Close()

	client := New(srv.URL+"/", "global", srv.Client())
	records, err := client.FetchHistory(context.Background(), "shop", "5511@s.whatsapp.net", "instance-key", 10)
	require.NoError(t, err)

	assert.Equal(t, "/chat/findMessages/shop", gotPath)
	assert.Equal(t, "instance-key", gotKey)
	assert.Equal(t, "5511@s.whatsapp.net", gotBody.Where.Key.RemoteJID)
	assert.Equal(t, 10, gotBody.Offset)

	require.Len(t, records, 2)
	assert.Equal(t, domain.HistoryRecord{ID: "B", FromMe: true, Text: "Olá!", Timestamp: time.Unix(1767261600, 0).UTC()}, records[0])
	assert.Equal(t, "Oi", records[1].Text)
	assert.Equal(t, time.Unix(1767261500, 0).UTC(), records[1].Timestamp)
}

func TestClient_FetchHistory_BareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"key":{"id":"A"},"message":{"conversation":"Oi"},"messageTimestamp":1}]`)
	}))
	defer srv.Close()

	records, err := New(srv.URL, "global", nil).FetchHistory(context.Background(), "shop", "k", "", 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Oi", records[0].Text)
}

func TestClient_SendText_FallsBackToGlobalKey(t *testing.T) {
	var gotKey string
	var gotBody sendTextRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/message/sendText/shop", r.URL.Path)
		gotKey = r.Header.Get("apikey")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := New(srv.URL, "global", nil).SendText(context.Background(), "shop", "5511999999999", "", "Até amanhã!")
	require.NoError(t, err)

	assert.Equal(t, "global", gotKey)
	assert.Equal(t, sendTextRequest{Number: "5511999999999", Text: "Até amanhã!"}, gotBody)
}

func TestClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"Unauthorized"}`)
	}))
	defer srv.Close()

	err := New(srv.URL, "bad", nil).SendText(context.Background(), "shop", "1", "", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClient_ErrorsCarryGatewayContext(t *testing.T) {
	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `not json`)
	}))
	defer garbage.Close()

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	down.Close()

	tests := []struct {
		name    string
		baseURL string
		code    string
	}{
		{name: "invalid response", baseURL: garbage.URL, code: "gateway_invalid_response"},
		{name: "unreachable", baseURL: down.URL, code: "gateway_unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.baseURL, "key", nil).FetchHistory(context.Background(), "shop", "5511@s.whatsapp.net", "", 10)
			require.Error(t, err)

			oopsErr, ok := oops.AsOops(err)
			require.True(t, ok)
			assert.Equal(t, "evolution", oopsErr.Domain())
			assert.Equal(t, tt.code, oopsErr.Code())
			assert.Equal(t, "/chat/findMessages/shop", oopsErr.Context()["path"])
		})
	}
}

func TestClient_MediaBase64(t *testing.T) {
	audio := []byte("OggS fake opus payload")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req mediaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "MSG1", req.Message.Key.ID)

		_ = json.NewEncoder(w).Encode(mediaResponse{
			MediaType: "audioMessage",
			Mimetype:  "audio/ogg; codecs=opus",
			Base64:    base64.StdEncoding.EncodeToString(audio),
		})
	}))
	defer srv.Close()

	data, mime, err := New(srv.URL, "k", nil).MediaBase64(context.Background(), "shop", "", "MSG1")
	require.NoError(t, err)
	assert.Equal(t, audio, data)
	assert.Equal(t, "audio/ogg; codecs=opus", mime)
}

func TestMessage_Text(t *testing.T) {
	cases := map[string]string{
		`{"conversation":"oi"}`:                                 "oi",
		`{"extendedTextMessage":{"text":"link"}}`:               "link",
		`{"imageMessage":{"caption":"foto do corte"}}`:          "foto do corte",
		`{"audioMessage":{"mimetype":"audio/ogg"}}`:             "",
		`{"listResponseMessage":{"title":"Corte + barba"}}`:     "Corte + barba",
		`{"audioMessage":{},"speechToText":"texto transcrito"}`: "texto transcrito",
	}

	for raw, want := range cases {
		var msg Message
		require.NoError(t, json.Unmarshal([]byte(raw), &msg))
		assert.Equal(t, want, msg.Text(), raw)
	}
}

func TestWebhookEvent_NormalizedEvent(t *testing.T) {
	assert.Equal(t, EventMessagesUpsert, WebhookEvent{Event: "MESSAGES_UPSERT"}.NormalizedEvent())
	assert.Equal(t, EventMessagesUpsert, WebhookEvent{Event: "messages.upsert"}.NormalizedEvent())
}
