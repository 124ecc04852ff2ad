package chatws

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/saeid-a/CoachCareBack/internal/observ"
	"github.com/saeid-a/CoachCareBack/internal/services"
	"go.uber.org/zap"
)

const (
	EventMessageCreated         = "message.created"
	EventMessageUpdated         = "message.updated"
	EventMessageDeleted         = "message.deleted"
	EventConversationReassigned = "conversation.reassigned"
	EventError                  = "error"

	incomingSendMessage = "send_message"
	writeWait           = 10 * time.Second
)

// Hub owns the per-user client registry; only Run touches it. done is closed
// when Run returns so callers never block on a stopped hub.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
	relay      Relay
	logger     *zap.Logger
}

// Client is one socket. send is never closed; eviction closes closed instead,
// so the reader may keep writing error frames without panicking.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	userID    string
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

type sender interface {
	SendMessage(ctx context.Context, actorID int64, input services.SendMessageInput) (*services.ChatDelivery, error)
}

type Message struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	SenderID       string `json:"sender_id,omitempty"`
	RecipientID    string `json:"recipient_id,omitempty"`
	Content        string `json:"content,omitempty"`
	MessageType    string `json:"message_type,omitempty"`
	MediaURL       string `json:"media_url,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// NewHub builds a hub. relay may be nil for single-instance deployments.
func NewHub(relay Relay, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 64),
		done:       make(chan struct{}),
		relay:      relay,
		logger:     logger,
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 32),
		closed: make(chan struct{}),
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (h *Hub) Run(ctx context.Context) {
	if h.relay != nil {
		go func() {
			if err := h.relay.Subscribe(ctx, h.inject); err != nil && !errors.Is(err, context.Canceled) {
				h.logger.Error("chat relay subscription stopped", zap.Error(err))
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			for userID, set := range h.clients {
				for client := range set {
					client.close()
					observ.HubConnections.Dec()
				}
				delete(h.clients, userID)
			}
			close(h.done)
			return
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
			observ.HubConnections.Inc()
		case client := <-h.unregister:
			h.remove(client)
		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// Register adds a client; on a stopped hub the client is closed at once.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.close()
	}
}

func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	case <-h.done:
	}
}

// Publish fans a message out to the sender's and recipient's sockets. With a
// relay every instance, this one included, delivers it from the subscription.
func (h *Hub) Publish(message *Message) {
	if h.relay != nil {
		payload, err := encodeMessage(message)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			err = h.relay.Publish(ctx, payload)
			cancel()
			if err == nil {
				return
			}
		}
		h.logger.Warn("chat relay publish failed, delivering locally", zap.Error(err))
	}
	h.enqueue(message)
}

// NotifyDelivery publishes a chat event built from a service result.
func (h *Hub) NotifyDelivery(eventType string, delivery *services.ChatDelivery) {
	if delivery == nil || delivery.Message == nil {
		return
	}
	message := delivery.Message
	out := &Message{
		Type:           eventType,
		ConversationID: strconv.FormatInt(message.ConversationID, 10),
		MessageID:      strconv.FormatInt(message.ID, 10),
		SenderID:       strconv.FormatInt(message.SenderID, 10),
		RecipientID:    strconv.FormatInt(delivery.RecipientID, 10),
		Content:        message.Content,
		MessageType:    message.MessageType,
		Timestamp:      services.FormatChatTimestamp(message.CreatedAt),
	}
	if message.MediaURL != nil {
		out.MediaURL = *message.MediaURL
	}
	h.Publish(out)
}

// NotifyReassignment tells the client and both doctors that the client's
// active conversation moved.
func (h *Hub) NotifyReassignment(assignment *services.ChatAssignment) {
	if assignment == nil || !assignment.Changed {
		return
	}
	timestamp := services.FormatChatTimestamp(time.Now().UTC())
	conversationID := ""
	if assignment.Conversation != nil {
		conversationID = strconv.FormatInt(assignment.Conversation.ID, 10)
	}

	h.Publish(&Message{
		Type:           EventConversationReassigned,
		ConversationID: conversationID,
		SenderID:       strconv.FormatInt(assignment.DoctorID, 10),
		RecipientID:    strconv.FormatInt(assignment.ClientID, 10),
		Timestamp:      timestamp,
	})
	if assignment.PreviousDoctorID != nil {
		h.Publish(&Message{
			Type:           EventConversationReassigned,
			ConversationID: conversationID,
			RecipientID:    strconv.FormatInt(*assignment.PreviousDoctorID, 10),
			Timestamp:      timestamp,
		})
	}
}

func (h *Hub) inject(payload []byte) {
	var message Message
	if err := json.Unmarshal(payload, &message); err != nil {
		h.logger.Warn("chat relay payload dropped", zap.Error(err))
		return
	}
	h.enqueue(&message)
}

func (h *Hub) remove(client *Client) {
	set, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, exists := set[client]; exists {
		delete(set, client)
		client.close()
		observ.HubConnections.Dec()
	}
	if len(set) == 0 {
		delete(h.clients, client.userID)
	}
}

func (h *Hub) deliver(message *Message) {
	encoded, err := encodeMessage(message)
	if err != nil {
		h.logger.Error("chat hub encode message", zap.Error(err))
		return
	}

	if message.SenderID != "" {
		h.sendToUser(message.SenderID, encoded)
	}
	if message.RecipientID != "" && message.RecipientID != message.SenderID {
		h.sendToUser(message.RecipientID, encoded)
	}
}

func (h *Hub) sendToUser(userID string, payload []byte) {
	set, ok := h.clients[userID]
	if !ok {
		return
	}

	for client := range set {
		select {
		case client.send <- payload:
		default:
			// Slow consumer.
			delete(set, client)
			client.close()
			observ.HubConnections.Dec()
		}
	}
	if len(set) == 0 {
		delete(h.clients, userID)
	}
}

func encodeMessage(message *Message) ([]byte, error) {
	return json.Marshal(message)
}

func (c *Client) ReadPump(service sender) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	actorID, err := strconv.ParseInt(c.userID, 10, 64)
	if err != nil {
		writeError(c, "invalid user")
		return
	}

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming struct {
			Type           string  `json:"type"`
			ConversationID string  `json:"conversation_id"`
			Content        string  `json:"content"`
			MessageType    string  `json:"message_type"`
			MediaURL       *string `json:"media_url"`
			MediaDuration  *int    `json:"media_duration"`
		}
		if err := json.Unmarshal(payload, &incoming); err != nil {
			writeError(c, "invalid message payload")
			continue
		}
		if incoming.Type != incomingSendMessage {
			writeError(c, "unsupported message type")
			continue
		}

		conversationID, err := strconv.ParseInt(incoming.ConversationID, 10, 64)
		if err != nil || conversationID <= 0 {
			writeError(c, "invalid conversation id")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		delivery, err := service.SendMessage(ctx, actorID, services.SendMessageInput{
			ConversationID: conversationID,
			Content:        incoming.Content,
			MessageType:    incoming.MessageType,
			MediaURL:       incoming.MediaURL,
			MediaDuration:  incoming.MediaDuration,
		})
		cancel()
		if err != nil {
			writeError(c, clientErrorText(err))
			continue
		}

		c.hub.NotifyDelivery(EventMessageCreated, delivery)
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// clientErrorText exposes domain errors verbatim and hides everything else.
func clientErrorText(err error) string {
	for _, known := range []error{
		services.ErrUnauthorized,
		services.ErrAccessDenied,
		services.ErrNotFound,
		services.ErrInvalidInput,
		services.ErrSubscriptionInactive,
	} {
		if errors.Is(err, known) {
			return err.Error()
		}
	}
	return "failed to send message"
}

func writeError(client *Client, message string) {
	payload, err := json.Marshal(Message{
		Type:      EventError,
		Content:   message,
		Timestamp: services.FormatChatTimestamp(time.Now().UTC()),
	})
	if err != nil {
		return
	}
	select {
	case <-client.closed:
	case client.send <- payload:
	default:
		// Full buffer: drop the socket; ReadPump unregisters on exit.
		client.close()
	}
}
