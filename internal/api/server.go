package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rollcall/internal/auth"
	"rollcall/internal/router"
	"rollcall/internal/session"
	"rollcall/pkg/interfaces"
)

// Server carries the REST handlers around the session core: account and
// class management, plus the REST-initiated session start the web client
// uses before opening its WebSocket.
type Server struct {
	users    interfaces.UserStore
	roster   interfaces.RosterStore
	store    interfaces.AttendanceStore
	sessions *session.Registry
	events   *router.Router
	tokens   *auth.Manager
	logger   *zap.Logger
}

// NewServer creates the REST handler set.
func NewServer(users interfaces.UserStore, roster interfaces.RosterStore, store interfaces.AttendanceStore,
	sessions *session.Registry, events *router.Router, tokens *auth.Manager, logger *zap.Logger) *Server {
	return &Server{
		users:    users,
		roster:   roster,
		store:    store,
		sessions: sessions,
		events:   events,
		tokens:   tokens,
		logger:   logger,
	}
}

// RegisterRoutes mounts all REST routes on the engine.
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/signup", s.signup)
		authGroup.POST("/login", s.login)
		authGroup.GET("/me", auth.Middleware(s.tokens), s.me)
	}

	classGroup := r.Group("/class", auth.Middleware(s.tokens))
	{
		classGroup.POST("", auth.RequireTeacher(), s.createClass)
		classGroup.GET("/my-classes", auth.RequireTeacher(), s.myClasses)
		classGroup.GET("/enrolled", auth.RequireStudent(), s.enrolledClasses)
		classGroup.GET("/:id", s.getClass)
		classGroup.POST("/:id/add-student", auth.RequireTeacher(), s.addStudent)
	}

	r.GET("/students", auth.Middleware(s.tokens), auth.RequireTeacher(), s.listStudents)

	attendanceGroup := r.Group("/attendance", auth.Middleware(s.tokens), auth.RequireTeacher())
	{
		attendanceGroup.POST("/start", s.startSession)
		attendanceGroup.GET("/class/:id", s.classAttendance)
	}
}

func (s *Server) health(c *gin.Context) {
	ok(c, gin.H{
		"status":          "ok",
		"active_sessions": s.sessions.CountActive(),
	})
}

// Response helpers matching the {success, data|error} shape the web client
// consumes.

func ok(c *gin.Context, data interface{}) {
	c.JSON(200, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}
