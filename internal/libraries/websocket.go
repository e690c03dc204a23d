package libraries

import (
	"encoding/json"
	"log"
	"sync"

	"chatsync-backend/internal/models"
	"chatsync-backend/internal/session"
	"chatsync-backend/internal/stream"
	"chatsync-backend/internal/uploads"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// WebSocketMessage represents the standard structure for all websocket messages
type WebSocketMessageType string

const (
	WebSocketMessageTypePing  WebSocketMessageType = "ping"
	WebSocketMessageTypePong  WebSocketMessageType = "pong"
	WebSocketMessageTypeError WebSocketMessageType = "error"

	WebSocketMessageTypeSetActiveChat WebSocketMessageType = "set_active_chat"
	WebSocketMessageTypeChatHistory   WebSocketMessageType = "chat_history"

	WebSocketMessageTypeChatMessage   WebSocketMessageType = "chat_message"
	WebSocketMessageTypeChatStarting  WebSocketMessageType = "chat_starting"
	WebSocketMessageTypeChatDelta     WebSocketMessageType = "chat_delta"
	WebSocketMessageTypeChatCompleted WebSocketMessageType = "chat_completed"
	WebSocketMessageTypeChatStop      WebSocketMessageType = "chat_stop"

	WebSocketMessageTypeUploadBegin    WebSocketMessageType = "upload_begin"
	WebSocketMessageTypeUploadTarget   WebSocketMessageType = "upload_target"
	WebSocketMessageTypeUploadProgress WebSocketMessageType = "upload_progress"
	WebSocketMessageTypeUploadComplete WebSocketMessageType = "upload_complete"
	WebSocketMessageTypeUploadError    WebSocketMessageType = "upload_error"
	WebSocketMessageTypeUploadRetry    WebSocketMessageType = "upload_retry"
	WebSocketMessageTypeUploadRemove   WebSocketMessageType = "upload_remove"
	WebSocketMessageTypeUploadState    WebSocketMessageType = "upload_state"
)

// Client is one connected browser tab. It owns the tab's session state, its
// streaming controller and its upload pipeline.
type Client struct {
	ID         string
	UserID     uuid.UUID
	Conn       *websocket.Conn
	Send       chan []byte
	Session    *session.Session
	Controller *stream.Controller
	Pipeline   *uploads.Pipeline
	once       sync.Once
}

type Hub struct {
	Clients    map[string]*Client
	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan []byte
}

type WebSocketMessage struct {
	Type WebSocketMessageType `json:"type"`
	Data interface{}          `json:"data,omitempty"`
}

type ChatMessagePayload struct {
	ChatID  string `json:"chat_id,omitempty"`
	Message string `json:"message"`
	Mode    string `json:"mode,omitempty"`
	// attachments already uploaded out of band; merged with the ones the
	// client's upload pipeline finished
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

type SetActiveChatPayload struct {
	ChatID string `json:"chat_id"`
}

type StopPayload struct {
	ChatID string `json:"chat_id"`
}

type UploadPayload struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Progress    int    `json:"progress,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func NewHub() *Hub {
	return &Hub{
		Clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan []byte),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.Clients[client.ID] = client
		case client := <-h.Unregister:
			if _, exists := h.Clients[client.ID]; exists {
				delete(h.Clients, client.ID)
				client.once.Do(func() {
					close(client.Send)
				})
			}
		case message := <-h.Broadcast:
			for _, client := range h.Clients {
				client.Send <- message
			}
		}
	}
}

func (h *Hub) BroadcastMessage(message []byte) {
	h.Broadcast <- message
}

func (h *Hub) SendMessage(client *Client, message []byte) {
	defer func() {
		// client may have unregistered; a send on its closed channel is not
		// worth crashing the hub for
		_ = recover()
	}()
	client.Send <- message
}

// SendErrorMessage sends a standardized error message to a client
func SendErrorMessage(hub *Hub, client *Client, errorMsg string) {
	SendTyped(hub, client, WebSocketMessageTypeError, fiber.Map{"message": errorMsg})
}

// sendPongMessage sends a standardized pong message to a client
func sendPongMessage(hub *Hub, client *Client) {
	SendTyped(hub, client, WebSocketMessageTypePong, nil)
}

// SendTyped marshals and sends one typed message to a client
func SendTyped(hub *Hub, client *Client, msgType WebSocketMessageType, data interface{}) {
	resp := WebSocketMessage{
		Type: msgType,
		Data: data,
	}
	bytes, err := json.Marshal(resp)
	if err != nil {
		log.Println("failed to marshal", msgType, "response:", err)
		return
	}
	hub.SendMessage(client, bytes)
}

// parseWebSocketMessage parses incoming websocket message and returns the message structure
func parseWebSocketMessage(msg []byte) (*WebSocketMessage, error) {
	var rawMessage struct {
		Type WebSocketMessageType `json:"type"`
		Data json.RawMessage      `json:"data,omitempty"`
	}
	if err := json.Unmarshal(msg, &rawMessage); err != nil {
		return nil, err
	}

	message := &WebSocketMessage{
		Type: rawMessage.Type,
	}

	// Convert data to appropriate type based on message type
	if len(rawMessage.Data) > 0 {
		switch rawMessage.Type {
		case WebSocketMessageTypeChatMessage:
			var payload ChatMessagePayload
			if err := json.Unmarshal(rawMessage.Data, &payload); err != nil {
				return nil, err
			}
			message.Data = &payload
		case WebSocketMessageTypeSetActiveChat:
			var payload SetActiveChatPayload
			if err := json.Unmarshal(rawMessage.Data, &payload); err != nil {
				return nil, err
			}
			message.Data = &payload
		case WebSocketMessageTypeChatStop:
			var payload StopPayload
			if err := json.Unmarshal(rawMessage.Data, &payload); err != nil {
				return nil, err
			}
			message.Data = &payload
		case WebSocketMessageTypeUploadBegin,
			WebSocketMessageTypeUploadProgress,
			WebSocketMessageTypeUploadComplete,
			WebSocketMessageTypeUploadError,
			WebSocketMessageTypeUploadRetry,
			WebSocketMessageTypeUploadRemove:
			var payload UploadPayload
			if err := json.Unmarshal(rawMessage.Data, &payload); err != nil {
				return nil, err
			}
			message.Data = &payload
		default:
			// For other types, unmarshal as generic interface{}
			var data interface{}
			if err := json.Unmarshal(rawMessage.Data, &data); err != nil {
				return nil, err
			}
			message.Data = data
		}
	}

	return message, nil
}

// SessionProcessor handles the session-level protocol on top of the socket.
type SessionProcessor interface {
	ProcessChatMessage(hub *Hub, client *Client, payload *ChatMessagePayload)
	ProcessSetActiveChat(hub *Hub, client *Client, payload *SetActiveChatPayload)
	ProcessStop(hub *Hub, client *Client, payload *StopPayload)
	ProcessUploadEvent(hub *Hub, client *Client, msgType WebSocketMessageType, payload *UploadPayload)
}

func WebSocketHandler(hub *Hub, processor SessionProcessor, targets uploads.TargetProvider) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, err := uuid.Parse(conn.Query("user_id"))
		if err != nil {
			// auth/session issuance is handled upstream; we only need a
			// valid owner id to scope this tab
			conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","data":{"message":"user_id is required"}}`))
			conn.Close()
			return
		}

		client := &Client{
			ID:         uuid.NewString(),
			UserID:     userID,
			Conn:       conn,
			Send:       make(chan []byte, 256),
			Session:    session.New(),
			Controller: stream.NewController(),
			Pipeline:   uploads.NewPipeline(targets),
		}

		hub.Register <- client

		// Write loop
		go func() {
			defer func() {
				hub.Unregister <- client
				conn.Close()
			}()
			for msg := range client.Send {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					log.Println("write error:", err)
					return
				}
			}
		}()

		// Read loop
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				log.Println("read error:", err)
				break
			}

			message, err := parseWebSocketMessage(msg)
			if err != nil {
				log.Println("failed to parse JSON:", err)
				SendErrorMessage(hub, client, "Invalid JSON format")
				continue
			}

			switch message.Type {
			case WebSocketMessageTypePing:
				sendPongMessage(hub, client)

			case WebSocketMessageTypeChatMessage:
				payload, ok := message.Data.(*ChatMessagePayload)
				if !ok || payload.Message == "" {
					SendErrorMessage(hub, client, "Chat message payload is required")
					continue
				}
				// the stream can take a while; never block the read loop
				go processor.ProcessChatMessage(hub, client, payload)

			case WebSocketMessageTypeSetActiveChat:
				payload, ok := message.Data.(*SetActiveChatPayload)
				if !ok {
					SendErrorMessage(hub, client, "Active chat payload is required")
					continue
				}
				go processor.ProcessSetActiveChat(hub, client, payload)

			case WebSocketMessageTypeChatStop:
				payload, ok := message.Data.(*StopPayload)
				if !ok {
					SendErrorMessage(hub, client, "Stop payload is required")
					continue
				}
				processor.ProcessStop(hub, client, payload)

			case WebSocketMessageTypeUploadBegin,
				WebSocketMessageTypeUploadProgress,
				WebSocketMessageTypeUploadComplete,
				WebSocketMessageTypeUploadError,
				WebSocketMessageTypeUploadRetry,
				WebSocketMessageTypeUploadRemove:
				payload, ok := message.Data.(*UploadPayload)
				if !ok {
					SendErrorMessage(hub, client, "Upload payload is required")
					continue
				}
				go processor.ProcessUploadEvent(hub, client, message.Type, payload)

			default:
				SendErrorMessage(hub, client, "Type is invalid or not provided")
				continue
			}
		}

		hub.Unregister <- client
		conn.Close()
	})
}
