package irisfast

import "strings"

// Message is one chat event pushed by Iris over the WebSocket.
type Message struct {
	Msg    string       `json:"msg"`
	Room   string       `json:"room"`
	Sender *string      `json:"sender,omitempty"`
	JSON   *MessageJSON `json:"json,omitempty"`
}

// MessageJSON is the raw chat log row Iris attaches to a message. Only the fields the bot
// reads are decoded.
type MessageJSON struct {
	UserID  string `json:"user_id"`
	ChatID  string `json:"chat_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// Config is the Iris /config response.
type Config struct {
	Port              int    `json:"bot_http_port"`
	PollingSpeed      int    `json:"db_polling_rate"`
	MessageRate       int    `json:"message_send_rate"`
	WebserverEndpoint string `json:"web_server_endpoint"`
}

// ReplyRequest is the body of POST /reply and of WebSocket reply frames.
type ReplyRequest struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Data string `json:"data"`
}

type DecryptRequest struct {
	Data string `json:"data"`
}

type DecryptResponse struct {
	Decrypted string `json:"decrypted"`
}

type WebSocketState string

const (
	WSStateDisconnected WebSocketState = "disconnected"
	WSStateConnecting   WebSocketState = "connecting"
	WSStateConnected    WebSocketState = "connected"
	WSStateReconnecting WebSocketState = "reconnecting"
	WSStateFailed       WebSocketState = "failed"
)

func (s WebSocketState) String() string { return string(s) }

// SenderName is the display name Iris reports for the message author.
func (m *Message) SenderName() string {
	if m.Sender != nil {
		if s := strings.TrimSpace(*m.Sender); s != "" {
			return s
		}
	}
	return ""
}

// UserID is the chat log's user id. It is empty when Iris did not attach one; the sender
// name is never substituted since users pick it themselves.
func (m *Message) UserID() string {
	if m.JSON != nil {
		return strings.TrimSpace(m.JSON.UserID)
	}
	return ""
}
