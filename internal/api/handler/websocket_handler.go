package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"vendotrash/internal/domain"
	"vendotrash/internal/service"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsClient struct {
	userID int
	conn   *websocket.Conn
}

type wsMessage struct {
	userID  int
	payload []byte
}

// WebSocketManager fans detection events out to each customer's open sockets.
// All writes happen on the Start goroutine.
type WebSocketManager struct {
	clients    map[int]map[*websocket.Conn]bool
	register   chan wsClient
	unregister chan wsClient
	send       chan wsMessage
	mutex      sync.RWMutex
}

func NewWebSocketManager() *WebSocketManager {
	return &WebSocketManager{
		clients:    make(map[int]map[*websocket.Conn]bool),
		register:   make(chan wsClient),
		unregister: make(chan wsClient),
		send:       make(chan wsMessage, 64),
	}
}

func (wsm *WebSocketManager) Start() {
	for {
		select {
		case client := <-wsm.register:
			wsm.mutex.Lock()
			if wsm.clients[client.userID] == nil {
				wsm.clients[client.userID] = make(map[*websocket.Conn]bool)
			}
			wsm.clients[client.userID][client.conn] = true
			wsm.mutex.Unlock()
			log.Printf("WebSocket: user %d connected. Connections: %d", client.userID, wsm.Count(client.userID))

		case client := <-wsm.unregister:
			wsm.remove(client)
			log.Printf("WebSocket: user %d disconnected. Connections: %d", client.userID, wsm.Count(client.userID))

		case msg := <-wsm.send:
			wsm.mutex.RLock()
			var broken []wsClient
			for conn := range wsm.clients[msg.userID] {
				if err := conn.WriteMessage(websocket.TextMessage, msg.payload); err != nil {
					log.Printf("WebSocket: write to user %d failed: %v", msg.userID, err)
					broken = append(broken, wsClient{msg.userID, conn})
				}
			}
			wsm.mutex.RUnlock()
			for _, client := range broken {
				wsm.remove(client)
			}
		}
	}
}

func (wsm *WebSocketManager) remove(client wsClient) {
	wsm.mutex.Lock()
	defer wsm.mutex.Unlock()
	conns := wsm.clients[client.userID]
	if _, ok := conns[client.conn]; ok {
		delete(conns, client.conn)
		client.conn.Close()
	}
	if len(conns) == 0 {
		delete(wsm.clients, client.userID)
	}
}

// Count returns the number of open sockets for a user.
func (wsm *WebSocketManager) Count(userID int) int {
	wsm.mutex.RLock()
	defer wsm.mutex.RUnlock()
	return len(wsm.clients[userID])
}

// NotifyUser queues an event for the user's sockets; it never blocks.
func (wsm *WebSocketManager) NotifyUser(userID int, event domain.DetectionEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		log.Printf("WebSocket: error marshaling detection event: %v", err)
		return
	}

	select {
	case wsm.send <- wsMessage{userID: userID, payload: message}:
	default:
		log.Println("WebSocket: send queue is full, dropping message")
	}
}

type WebSocketHandler struct {
	wsManager   *WebSocketManager
	authService *service.AuthService
}

func NewWebSocketHandler(wsManager *WebSocketManager, authService *service.AuthService) *WebSocketHandler {
	return &WebSocketHandler{wsManager: wsManager, authService: authService}
}

// GET /ws?token=<jwt>
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	_, claims, err := h.authService.ValidateToken(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token", "details": err.Error()})
		return
	}
	sub, _ := claims["sub"].(string)
	userID, err := strconv.Atoi(sub)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token carries no valid user"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket: upgrade failed: %v", err)
		return
	}

	client := wsClient{userID: userID, conn: conn}
	h.wsManager.register <- client

	go func() {
		defer func() {
			h.wsManager.unregister <- client
		}()

		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("WebSocket: read error for user %d: %v", userID, err)
				}
				break
			}
		}
	}()
}
