package evolution

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

const EventMessagesUpsert = "messages.upsert"

// WebhookEvent is the envelope Evolution posts to the webhook url.
type WebhookEvent struct {
	Event       string          `json:"event"`
	Instance    string          `json:"instance"`
	Data        json.RawMessage `json:"data"`
	Destination string          `json:"destination"`
	DateTime    string          `json:"date_time"`
	Sender      string          `json:"sender"`
	ServerURL   string          `json:"server_url"`
	APIKey      string          `json:"apikey"`
}

// NormalizedEvent maps MESSAGES_UPSERT style names to messages.upsert.
func (e WebhookEvent) NormalizedEvent() string {
	return strings.ReplaceAll(strings.ToLower(e.Event), "_", ".")
}

type MessageKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

// MessageRecord is a stored or upserted message.
type MessageRecord struct {
	Key              MessageKey `json:"key"`
	PushName         string     `json:"pushName"`
	Message          Message    `json:"message"`
	MessageType      string     `json:"messageType"`
	MessageTimestamp Timestamp  `json:"messageTimestamp"`
}

type Message struct {
	Conversation        string           `json:"conversation,omitempty"`
	ExtendedTextMessage *textMessage     `json:"extendedTextMessage,omitempty"`
	ImageMessage        *mediaMessage    `json:"imageMessage,omitempty"`
	VideoMessage        *mediaMessage    `json:"videoMessage,omitempty"`
	DocumentMessage     *mediaMessage    `json:"documentMessage,omitempty"`
	AudioMessage        *mediaMessage    `json:"audioMessage,omitempty"`
	ButtonsResponse     *buttonsResponse `json:"buttonsResponseMessage,omitempty"`
	ListResponse        *listResponse    `json:"listResponseMessage,omitempty"`
	SpeechToText        string           `json:"speechToText,omitempty"`
	// Base64 holds inline media when the instance has webhook base64 enabled.
	Base64 string `json:"base64,omitempty"`
}

type textMessage struct {
	Text string `json:"text"`
}

type mediaMessage struct {
	Caption  string `json:"caption,omitempty"`
	Mimetype string `json:"mimetype,omitempty"`
	Seconds  int    `json:"seconds,omitempty"`
	PTT      bool   `json:"ptt,omitempty"`
}

type buttonsResponse struct {
	SelectedDisplayText string `json:"selectedDisplayText"`
}

type listResponse struct {
	Title string `json:"title"`
}

// Text returns the human-readable text of the message, or an empty string for
// messages that carry none (stickers, reactions, bare media).
func (m Message) Text() string {
	switch {
	case m.Conversation != "":
		return m.Conversation
	case m.ExtendedTextMessage != nil && m.ExtendedTextMessage.Text != "":
		return m.ExtendedTextMessage.Text
	case m.SpeechToText != "":
		return m.SpeechToText
	case m.ImageMessage != nil && m.ImageMessage.Caption != "":
		return m.ImageMessage.Caption
	case m.VideoMessage != nil && m.VideoMessage.Caption != "":
		return m.VideoMessage.Caption
	case m.DocumentMessage != nil && m.DocumentMessage.Caption != "":
		return m.DocumentMessage.Caption
	case m.ButtonsResponse != nil:
		return m.ButtonsResponse.SelectedDisplayText
	case m.ListResponse != nil:
		return m.ListResponse.Title
	}
	return ""
}

// IsAudio reports whether the message is a voice note or audio file.
func (m Message) IsAudio() bool {
	return m.AudioMessage != nil
}

// AudioMimetype returns the declared audio mimetype.
func (m Message) AudioMimetype() string {
	if m.AudioMessage == nil {
		return ""
	}
	return m.AudioMessage.Mimetype
}

// Timestamp accepts unix seconds encoded either as a JSON number or string.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		t.Time = time.Time{}
		return nil
	}

	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		parsed, perr := time.Parse(time.RFC3339, raw)
		if perr != nil {
			return err
		}
		t.Time = parsed
		return nil
	}

	t.Time = time.Unix(seconds, 0).UTC()
	return nil
}

type findMessagesRequest struct {
	Where  findMessagesWhere `json:"where"`
	Page   int               `json:"page"`
	Offset int               `json:"offset"`
}

type findMessagesWhere struct {
	Key findMessagesKey `json:"key"`
}

type findMessagesKey struct {
	RemoteJID string `json:"remoteJid"`
}

type findMessagesResponse struct {
	Messages struct {
		Total   int             `json:"total"`
		Records []MessageRecord `json:"records"`
	} `json:"messages"`
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type mediaRequest struct {
	Message struct {
		Key struct {
			ID string `json:"id"`
		} `json:"key"`
	} `json:"message"`
	ConvertToMp4 bool `json:"convertToMp4"`
}

type mediaResponse struct {
	MediaType string `json:"mediaType"`
	FileName  string `json:"fileName"`
	Mimetype  string `json:"mimetype"`
	Base64    string `json:"base64"`
}
