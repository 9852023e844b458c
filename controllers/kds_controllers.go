package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yeremiapane/restaurant-tables/kds"
	"github.com/yeremiapane/restaurant-tables/utils"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // read-only feed
	},
}

// KDSHandler upgrades to a websocket and streams table events until the
// client disconnects. ?client= labels the connection in logs.
func KDSHandler(c *gin.Context) {
	label := c.DefaultQuery("client", "dashboard")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.ErrorLogger.Warnf("websocket upgrade failed: %v", err)
		return
	}

	kds.RegisterClient(ws, label)
	utils.InfoLogger.WithField("client", label).Info("dashboard connected")

	// drain reads so close frames are processed
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	kds.UnregisterClient(ws)
	utils.InfoLogger.WithField("client", label).Info("dashboard disconnected")
}
