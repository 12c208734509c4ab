package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Whisper/internal/app"
	"github.com/dkeye/Whisper/internal/core"
	"github.com/dkeye/Whisper/internal/domain"
)

type CallHandlers struct {
	Calls    *app.CallManager
	Registry *app.Registry
	Users    core.UserDirectory
}

type initiateRequest struct {
	Participants []string `json:"participants" binding:"required"`
	CallType     string   `json:"call_type"`
}

func signalingURL(id domain.CallID) string {
	return fmt.Sprintf("/api/v1/calls/%s/signaling", id)
}

// Initiate creates a call session and pushes incoming_call to every
// invitee's chat devices. Offline invitees are simply not notified;
// zero-device fanout is not an error.
func (h *CallHandlers) Initiate(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid participants"})
		return
	}
	caller := currentUser(c)

	invitees := make([]domain.UserID, 0, len(req.Participants))
	for _, p := range req.Participants {
		invitees = append(invitees, domain.UserID(p))
	}

	sess, err := h.Calls.CreateCall(caller, invitees, domain.CallType(req.CallType))
	if err != nil {
		abortWithError(c, err)
		return
	}

	callerName := string(caller)
	if u, err := h.Users.User(c.Request.Context(), caller); err == nil {
		callerName = u.Username
	}
	frame, err := core.Encode(core.IncomingCall{
		Type:         core.TypeIncomingCall,
		CallID:       sess.ID,
		CallerID:     caller,
		CallerName:   callerName,
		CallType:     sess.Type,
		SignalingURL: signalingURL(sess.ID),
	})
	if err == nil {
		for _, invitee := range sess.Participants {
			if invitee == caller {
				continue
			}
			h.Registry.SendToUser(invitee, frame)
		}
	}

	log.Info().Str("module", "adapters.http").Str("call", string(sess.ID)).Str("caller", string(caller)).Msg("call initiated")
	c.JSON(http.StatusOK, gin.H{
		"call_id":       sess.ID,
		"status":        "initiated",
		"participants":  sess.Participants,
		"type":          sess.Type,
		"signaling_url": signalingURL(sess.ID),
	})
}

func (h *CallHandlers) Join(c *gin.Context) {
	callID := domain.CallID(c.Param("call_id"))
	sess, err := h.Calls.JoinCall(callID, currentUser(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"call_id":       sess.ID,
		"status":        "joined",
		"signaling_url": signalingURL(sess.ID),
	})
}

func (h *CallHandlers) End(c *gin.Context) {
	callID := domain.CallID(c.Param("call_id"))
	if err := h.Calls.EndCall(callID, currentUser(c)); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Call ended"})
}

func (h *CallHandlers) Get(c *gin.Context) {
	callID := domain.CallID(c.Param("call_id"))
	sess, err := h.Calls.Get(callID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if !sess.HasParticipant(currentUser(c)) {
		abortWithError(c, domain.ErrForbidden)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *CallHandlers) ListActive(c *gin.Context) {
	sessions := h.Calls.ActiveCallsFor(currentUser(c))
	if sessions == nil {
		sessions = []domain.CallSession{}
	}
	c.JSON(http.StatusOK, gin.H{"active_calls": sessions})
}

// abortWithError maps the domain taxonomy onto HTTP statuses, keeping
// rejection reasons distinguishable for the client.
func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrAlreadyInCall), errors.Is(err, domain.ErrParticipantBusy):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUnauthenticated):
		status = http.StatusUnauthorized
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
