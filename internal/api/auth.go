package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"rollcall/internal/auth"
	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

type signupRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid signup payload")
		return
	}
	if !types.IsValidRole(req.Role) {
		fail(c, http.StatusBadRequest, "role must be 'teacher' or 'student'")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		fail(c, http.StatusInternalServerError, "could not create account")
		return
	}

	user := &types.User{
		ID:    uuid.New().String(),
		Name:  req.Name,
		Email: req.Email,
		Role:  req.Role,
	}
	if err := s.users.CreateUser(c.Request.Context(), user, string(hash)); err != nil {
		if errors.Is(err, interfaces.ErrAlreadyExists) {
			fail(c, http.StatusConflict, "email already registered")
			return
		}
		s.logger.Error("signup failed", zap.Error(err))
		fail(c, http.StatusInternalServerError, "could not create account")
		return
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		fail(c, http.StatusInternalServerError, "could not issue token")
		return
	}
	ok(c, gin.H{"token": token, "user": user})
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid login payload")
		return
	}

	user, hash, err := s.users.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		fail(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)) != nil {
		fail(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		fail(c, http.StatusInternalServerError, "could not issue token")
		return
	}
	ok(c, gin.H{"token": token, "user": user})
}

func (s *Server) me(c *gin.Context) {
	user, err := s.users.GetUser(c.Request.Context(), c.GetString(auth.ContextUserID))
	if err != nil {
		fail(c, http.StatusNotFound, "user not found")
		return
	}
	ok(c, user)
}
