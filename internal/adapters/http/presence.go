package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Whisper/internal/app"
	"github.com/dkeye/Whisper/internal/domain"
)

type PresenceHandlers struct {
	Presence *app.PresenceService
}

func (h *PresenceHandlers) OnlineUsers(c *gin.Context) {
	users := h.Presence.OnlineUsers()
	if users == nil {
		users = []domain.UserID{}
	}
	c.JSON(http.StatusOK, gin.H{"online_users": users})
}

func (h *PresenceHandlers) UserStatus(c *gin.Context) {
	user := domain.UserID(c.Param("user_id"))
	c.JSON(http.StatusOK, gin.H{
		"user_id":   user,
		"is_online": h.Presence.IsOnline(user),
	})
}
