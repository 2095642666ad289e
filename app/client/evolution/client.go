package evolution

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"barberbot/app/config"
	"barberbot/app/domain"

	"github.com/samber/do"
	"github.com/samber/oops"
)

const maxErrorBody = 512

// Client talks to an Evolution API server on behalf of any of its instances.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(di *do.Injector) (*Client, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return New(cfg.Evolution.BaseURL, cfg.Evolution.APIKey, &http.Client{
		Timeout: cfg.Evolution.Timeout,
	}), nil
}

func New(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// FetchHistory returns up to limit stored messages of the conversation, in the
// order the server returns them.
func (c *Client) FetchHistory(ctx context.Context, instanceID string, key domain.ConversationKey, credentials string, limit int) ([]domain.HistoryRecord, error) {
	var req findMessagesRequest
	req.Where.Key.RemoteJID = key.String()
	req.Page = 1
	req.Offset = limit

	var raw json.RawMessage
	if err := c.post(ctx, "/chat/findMessages/"+url.PathEscape(instanceID), credentials, req, &raw); err != nil {
		return nil, oops.In("evolution").With("instance", instanceID).Wrapf(err, "find messages")
	}

	records, err := decodeRecords(raw)
	if err != nil {
		return nil, oops.In("evolution").With("instance", instanceID).Wrapf(err, "decode messages")
	}

	result := make([]domain.HistoryRecord, 0, len(records))
	for _, r := range records {
		result = append(result, domain.HistoryRecord{
			ID:        r.Key.ID,
			FromMe:    r.Key.FromMe,
			Text:      r.Message.Text(),
			Timestamp: r.MessageTimestamp.Time,
		})
	}

	return result, nil
}

// decodeRecords accepts both the paginated v2 shape and a bare array.
func decodeRecords(raw json.RawMessage) ([]MessageRecord, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []MessageRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var resp findMessagesResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, err
	}
	return resp.Messages.Records, nil
}

// SendText sends a plain text message to number.
func (c *Client) SendText(ctx context.Context, instanceID, number, credentials, text string) error {
	req := sendTextRequest{
		Number: number,
		Text:   text,
	}

	if err := c.post(ctx, "/message/sendText/"+url.PathEscape(instanceID), credentials, req, nil); err != nil {
		return oops.In("evolution").With("instance", instanceID).Wrapf(err, "send text")
	}

	return nil
}

// MediaBase64 downloads the media of a stored message and returns the decoded
// bytes and mimetype.
func (c *Client) MediaBase64(ctx context.Context, instanceID, credentials, messageID string) ([]byte, string, error) {
	var req mediaRequest
	req.Message.Key.ID = messageID

	var resp mediaResponse
	if err := c.post(ctx, "/chat/getBase64FromMediaMessage/"+url.PathEscape(instanceID), credentials, req, &resp); err != nil {
		return nil, "", oops.In("evolution").With("instance", instanceID).Wrapf(err, "get media")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Base64)
	if err != nil {
		return nil, "", oops.In("evolution").With("instance", instanceID).Wrapf(err, "decode media")
	}

	return data, resp.Mimetype, nil
}

func (c *Client) post(ctx context.Context, path, credentials string, body, out any) error {
	errs := oops.In("evolution").With("path", path)

	payload, err := json.Marshal(body)
	if err != nil {
		return errs.Wrapf(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errs.Wrapf(err, "create request")
	}

	apiKey := credentials
	if apiKey == "" {
		apiKey = c.apiKey
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Code("gateway_unreachable").Wrapf(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return errs.
			Code("gateway_http_error").
			With("status", resp.StatusCode).
			Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Code("gateway_invalid_response").Wrapf(err, "decode response")
	}

	return nil
}
