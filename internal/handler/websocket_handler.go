// internal/handler/websocket_handler.go
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"glider-device-service/internal/model"
	"glider-device-service/internal/service"
	"glider-device-service/internal/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// WebSocketHandler streams device events to websocket clients
type WebSocketHandler struct {
	upgrader      websocket.Upgrader
	connections   *ConnectionManager
	eventBus      *EventBus
	deviceService *service.DeviceService
	logger        *utils.ServiceLogger
}

func NewWebSocketHandler(eventBus *EventBus, deviceService *service.DeviceService, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		connections:   NewConnectionManager(),
		eventBus:      eventBus,
		deviceService: deviceService,
		logger:        utils.NewServiceLogger(logger, "websocket-handler"),
	}
}

func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/events", h.HandleEventConnection)
	router.GET("/operations", h.HandleOperationConnection)
	router.GET("/devices/:index", h.HandleDeviceConnection)
	router.GET("/stats", h.Stats)
}

// HandleEventConnection streams every event. The types query parameter
// takes a comma separated list of event types to start with.
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	h.connect(c, "events", nil)
}

func (h *WebSocketHandler) HandleOperationConnection(c *gin.Context) {
	h.connect(c, "operations", nil)
}

// HandleDeviceConnection streams the events of one slot and accepts
// commands for it
func (h *WebSocketHandler) HandleDeviceConnection(c *gin.Context) {
	index, ok := deviceIndex(c)
	if !ok {
		return
	}
	if _, err := h.deviceService.Status(index); err != nil {
		respondError(c, "Device not found", err)
		return
	}
	h.connect(c, "device", &index)
}

func (h *WebSocketHandler) Stats(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Connection statistics", h.connections.GetStats())
}

func (h *WebSocketHandler) connect(c *gin.Context, clientType string, index *int) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		Type:        clientType,
		DeviceIndex: index,
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
		done:        make(chan struct{}),
	}
	for _, t := range strings.Split(c.Query("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			client.Subscribe(model.EventType(strings.ToUpper(t)))
		}
	}
	client.subscription = h.eventBus.Subscribe(256, client.Accepts)

	h.connections.Register(client)
	h.logger.Info("WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("type", clientType),
		zap.String("remote_addr", client.RemoteAddr),
	)

	if index != nil {
		h.sendDeviceStatus(client, *index)
	}

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

func (h *WebSocketHandler) disconnect(client *Client) {
	if !h.connections.Unregister(client) {
		return
	}
	h.eventBus.Unsubscribe(client.subscription)
	client.close()
	client.Connection.Close()
	h.logger.Info("WebSocket client disconnected", zap.String("client_id", client.ID))
}

func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer h.disconnect(client)

	client.Connection.SetReadDeadline(time.Now().Add(pongWait))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error", zap.Error(err), zap.String("client_id", client.ID))
			}
			return
		}

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.sendError(client, "", "invalid message")
			continue
		}
		h.handleClientMessage(client, &message)
	}
}

func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.disconnect(client)
	}()

	write := func(messageType int, data []byte) bool {
		client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.Connection.WriteMessage(messageType, data); err != nil {
			h.logger.Debug("WebSocket write error", zap.Error(err), zap.String("client_id", client.ID))
			return false
		}
		return true
	}

	for {
		select {
		case <-client.done:
			write(websocket.CloseMessage, []byte{})
			return

		case event, ok := <-client.subscription.C:
			if !ok {
				return
			}
			messageBytes, err := json.Marshal(&WebSocketMessage{
				Type:      "device_event",
				Data:      event,
				Timestamp: event.Timestamp,
			})
			if err != nil {
				h.logger.Error("Failed to marshal event", zap.Error(err))
				continue
			}
			if !write(websocket.TextMessage, messageBytes) {
				return
			}

		case message := <-client.Send:
			if !write(websocket.TextMessage, message) {
				return
			}

		case <-ticker.C:
			if !write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	switch message.Type {
	case "subscribe", "unsubscribe":
		data, _ := message.Data.(map[string]interface{})
		topic, _ := data["topic"].(string)
		if topic == "" {
			h.sendError(client, message.RequestID, "topic is required")
			return
		}
		eventType := model.EventType(strings.ToUpper(topic))
		if message.Type == "subscribe" {
			client.Subscribe(eventType)
		} else {
			client.Unsubscribe(eventType)
		}
		h.sendMessage(client, &WebSocketMessage{
			Type:      message.Type + "d",
			Data:      map[string]interface{}{"topics": client.Topics()},
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})

	case "device_command":
		h.handleDeviceCommand(client, message)

	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})

	default:
		h.sendError(client, message.RequestID, fmt.Sprintf("unknown message type: %s", message.Type))
	}
}

func (h *WebSocketHandler) handleDeviceCommand(client *Client, message *WebSocketMessage) {
	if client.DeviceIndex == nil {
		h.sendError(client, message.RequestID, "device_command only available on device connections")
		return
	}

	data, _ := message.Data.(map[string]interface{})
	command, _ := data["command"].(string)
	if command == "" {
		h.sendError(client, message.RequestID, "command is required")
		return
	}

	go h.executeDeviceCommand(client, *client.DeviceIndex, command, message.RequestID)
}

func (h *WebSocketHandler) executeDeviceCommand(client *Client, index int, command, requestID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch command {
	case "reopen":
		err = h.deviceService.Reopen(ctx, index)
	case "close":
		err = h.deviceService.Close(index)
	case "status":
	default:
		h.sendError(client, requestID, "unknown command: "+command)
		return
	}

	status, statusErr := h.deviceService.Status(index)
	if err == nil {
		err = statusErr
	}

	data := map[string]interface{}{
		"command": command,
		"success": err == nil,
		"status":  status,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	h.sendMessage(client, &WebSocketMessage{
		Type:      "command_response",
		Data:      data,
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

func (h *WebSocketHandler) sendDeviceStatus(client *Client, index int) {
	status, err := h.deviceService.Status(index)
	if err != nil {
		h.sendError(client, "", err.Error())
		return
	}
	h.sendMessage(client, &WebSocketMessage{
		Type:      "initial_status",
		Data:      status,
		Timestamp: time.Now(),
	})
}

func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	select {
	case client.Send <- messageBytes:
	default:
		h.logger.Warn("Client send channel full, dropping message", zap.String("client_id", client.ID))
	}
}

func (h *WebSocketHandler) sendError(client *Client, requestID, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type:      "error",
		Data:      map[string]interface{}{"error": errorMsg},
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

// CloseAll disconnects every client
func (h *WebSocketHandler) CloseAll() {
	for _, client := range h.connections.All() {
		h.disconnect(client)
	}
}
