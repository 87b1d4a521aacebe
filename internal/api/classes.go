package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rollcall/internal/auth"
	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

type createClassRequest struct {
	ClassName string `json:"className" binding:"required"`
}

type addStudentRequest struct {
	StudentID string `json:"studentId" binding:"required"`
}

func (s *Server) createClass(c *gin.Context) {
	var req createClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "className is required")
		return
	}

	class := &types.Class{
		Name:      req.ClassName,
		TeacherID: c.GetString(auth.ContextUserID),
	}
	if err := s.roster.CreateClass(c.Request.Context(), class); err != nil {
		s.logger.Error("class creation failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "could not create class")
		return
	}
	ok(c, class)
}

func (s *Server) myClasses(c *gin.Context) {
	classes, err := s.roster.ListClassesByTeacher(c.Request.Context(), c.GetString(auth.ContextUserID))
	if err != nil {
		fail(c, http.StatusInternalServerError, "could not list classes")
		return
	}
	out := make([]gin.H, 0, len(classes))
	for _, class := range classes {
		roster, err := s.roster.GetRoster(c.Request.Context(), class.ID)
		if err != nil {
			fail(c, http.StatusInternalServerError, "could not load roster")
			return
		}
		hasAttendance, err := s.store.HasAttendance(c.Request.Context(), class.ID)
		if err != nil {
			fail(c, http.StatusInternalServerError, "could not load attendance state")
			return
		}
		out = append(out, gin.H{
			"id":            class.ID,
			"className":     class.Name,
			"createdAt":     class.CreatedAt,
			"studentCount":  len(roster),
			"hasAttendance": hasAttendance,
		})
	}
	ok(c, out)
}

func (s *Server) enrolledClasses(c *gin.Context) {
	classes, err := s.roster.ListClassesByStudent(c.Request.Context(), c.GetString(auth.ContextUserID))
	if err != nil {
		fail(c, http.StatusInternalServerError, "could not list classes")
		return
	}
	ok(c, classes)
}

func (s *Server) getClass(c *gin.Context) {
	class, err := s.roster.GetClass(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			fail(c, http.StatusNotFound, "class not found")
			return
		}
		fail(c, http.StatusInternalServerError, "could not load class")
		return
	}
	roster, err := s.roster.GetRoster(c.Request.Context(), class.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "could not load roster")
		return
	}
	ok(c, gin.H{
		"id":        class.ID,
		"className": class.Name,
		"teacherId": class.TeacherID,
		"createdAt": class.CreatedAt,
		"students":  roster,
	})
}

func (s *Server) addStudent(c *gin.Context) {
	var req addStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "studentId is required")
		return
	}

	class, err := s.roster.GetClass(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, http.StatusNotFound, "class not found")
		return
	}
	if class.TeacherID != c.GetString(auth.ContextUserID) {
		fail(c, http.StatusForbidden, "not your class")
		return
	}

	if _, err := s.users.GetUser(c.Request.Context(), req.StudentID); err != nil {
		fail(c, http.StatusNotFound, "student not found")
		return
	}
	if err := s.roster.AddStudentToClass(c.Request.Context(), class.ID, req.StudentID); err != nil {
		s.logger.Error("enrollment failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "could not add student")
		return
	}

	roster, err := s.roster.GetRoster(c.Request.Context(), class.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "could not load roster")
		return
	}
	ok(c, gin.H{
		"id":        class.ID,
		"className": class.Name,
		"students":  roster,
	})
}

func (s *Server) listStudents(c *gin.Context) {
	students, err := s.users.ListStudents(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, "could not list students")
		return
	}
	ok(c, students)
}
