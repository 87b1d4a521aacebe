package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/auth"
	"rollcall/internal/session"
	"rollcall/pkg/interfaces"
)

type startSessionRequest struct {
	ClassID string `json:"classId" binding:"required"`
}

// startSession opens the attendance window for a class. The web client calls
// this over REST, then connects its WebSocket; everyone already connected
// gets the session-active notice immediately.
func (s *Server) startSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "classId is required")
		return
	}

	class, err := s.roster.GetClass(c.Request.Context(), req.ClassID)
	if err != nil {
		fail(c, http.StatusNotFound, "class not found")
		return
	}
	if class.TeacherID != c.GetString(auth.ContextUserID) {
		fail(c, http.StatusForbidden, "not your class")
		return
	}

	sess, err := s.sessions.Start(c.Request.Context(), class)
	if err != nil {
		if errors.Is(err, session.ErrSessionConflict) {
			fail(c, http.StatusConflict, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, "could not start session")
		return
	}

	s.events.BroadcastSessionStarted(sess)
	ok(c, sess.Info())
}

// classAttendance returns the most recent completed session for a class.
func (s *Server) classAttendance(c *gin.Context) {
	class, err := s.roster.GetClass(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, http.StatusNotFound, "class not found")
		return
	}
	if class.TeacherID != c.GetString(auth.ContextUserID) {
		fail(c, http.StatusForbidden, "not your class")
		return
	}

	result, err := s.store.GetClassAttendance(c.Request.Context(), class.ID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			fail(c, http.StatusNotFound, "no attendance recorded for this class")
			return
		}
		fail(c, http.StatusInternalServerError, "could not load attendance")
		return
	}
	ok(c, result)
}
