package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"snapcam/internal/camera"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsSendBuffer = 16
)

// StatusMessage はWebSocketで配信するステータス
type StatusMessage struct {
	Type   string             `json:"type"`
	Active bool               `json:"active"`
	Status camera.StatusState `json:"status"`
}

func newStatusMessage(active bool, state camera.StatusState) StatusMessage {
	return StatusMessage{Type: "status", Active: active, Status: state}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClient はステータスを購読するWebSocket接続
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// StatusHub はステータス変化を全WebSocket接続に配信する
type StatusHub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
}

// NewStatusHub は新しい StatusHub を作成する
func NewStatusHub() *StatusHub {
	return &StatusHub{clients: make(map[*wsClient]struct{})}
}

// Broadcast は全接続にメッセージを送る。送信待ちが溢れた接続には送らない
func (h *StatusHub) Broadcast(msg StatusMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "server").Msg("ステータスのエンコードに失敗しました")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			log.Warn().Str("module", "server").Msg("WebSocketの送信待ちが溢れました")
		}
	}
}

// Count は接続数を返す
func (h *StatusHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close は全接続を閉じる
func (h *StatusHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for client := range h.clients {
		client.close()
		delete(h.clients, client)
	}
}

// Handle は接続をアップグレードし、現在のステータスを送ってから購読させる
func (h *StatusHub) Handle(c *gin.Context, initial StatusMessage) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "server").Msg("WebSocketのアップグレードに失敗しました")
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	if data, err := json.Marshal(initial); err == nil {
		client.send <- data
	}
	if !h.register(client) {
		_ = conn.Close()
		return
	}

	log.Info().Str("module", "server").Str("remote", c.Request.RemoteAddr).Msg("WebSocket接続を受け付けました")

	go h.writePump(client)
	go h.readPump(client)
}

func (h *StatusHub) register(client *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[client] = struct{}{}
	return true
}

func (h *StatusHub) unregister(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.close()
	}
}

// writePump は送信待ちのメッセージと ping を書き込む
func (h *StatusHub) writePump(client *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "server").Msg("WebSocketへの書き込みに失敗しました")
				h.unregister(client)
				return
			}

		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(client)
				return
			}
		}
	}
}

// readPump は切断を検知するまで受信を読み捨てる
func (h *StatusHub) readPump(client *wsClient) {
	defer h.unregister(client)

	client.conn.SetReadLimit(1024)
	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("module", "server").Msg("WebSocketが切断されました")
			}
			return
		}
	}
}
