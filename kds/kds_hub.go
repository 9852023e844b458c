package kds

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/restaurant-tables/models"
	"github.com/yeremiapane/restaurant-tables/utils"
)

// Event types
const (
	EventTableCreate   = "table_create"
	EventTableUpdate   = "table_update"
	EventTableDelete   = "table_delete"
	EventTableStatus   = "table_status"
	EventSessionOpened = "session_opened"
	EventSessionClosed = "session_closed"
)

const writeTimeout = 5 * time.Second

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// KDSHub menampung semua dashboard yang terhubung (floor staff, host stand, admin).
type KDSHub struct {
	clients map[*websocket.Conn]string // conn -> client label
	mutex   sync.Mutex
}

var kdsHub = KDSHub{
	clients: make(map[*websocket.Conn]string),
}

// RegisterClient -> menambahkan connection beserta label client
func RegisterClient(conn *websocket.Conn, label string) {
	kdsHub.mutex.Lock()
	defer kdsHub.mutex.Unlock()
	kdsHub.clients[conn] = label
}

// UnregisterClient -> melepaskan dan menutup connection
func UnregisterClient(conn *websocket.Conn) {
	kdsHub.mutex.Lock()
	defer kdsHub.mutex.Unlock()
	delete(kdsHub.clients, conn)
	conn.Close()
}

// ClientCount is the number of connected dashboards.
func ClientCount() int {
	kdsHub.mutex.Lock()
	defer kdsHub.mutex.Unlock()
	return len(kdsHub.clients)
}

// BroadcastTableChange -> kirim data meja beserta statistik dashboard terbaru
func BroadcastTableChange(event string, table models.Table, stats interface{}) {
	broadcast(Message{
		Event: event,
		Data: map[string]interface{}{
			"table": table,
			"stats": stats,
		},
	})
}

// BroadcastSession -> sesi pemakaian dibuka / ditutup
func BroadcastSession(event string, session models.TableUsageHistory) {
	broadcast(Message{
		Event: event,
		Data:  session,
	})
}

// broadcast -> fungsi internal untuk mengirim pesan ke semua client
func broadcast(msg Message) {
	kdsHub.mutex.Lock()
	defer kdsHub.mutex.Unlock()

	if len(kdsHub.clients) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		utils.ErrorLogger.WithField("event", msg.Event).Errorf("Error marshaling message: %v", err)
		return
	}

	for conn, label := range kdsHub.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			utils.ErrorLogger.WithFields(logrus.Fields{
				"event":  msg.Event,
				"client": label,
			}).Warnf("Error sending message to client: %v", err)
			delete(kdsHub.clients, conn)
			conn.Close()
			continue
		}
	}
	utils.InfoLogger.WithFields(logrus.Fields{
		"event":   msg.Event,
		"clients": len(kdsHub.clients),
	}).Debug("broadcast sent")
}
