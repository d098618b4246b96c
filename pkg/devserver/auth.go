package devserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/apperr"
	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/roles"
)

const userIDKey = "user_id"

// IssueToken signs a bearer token for userID
func (s *Server) IssueToken(userID string) (string, time.Time, error) {
	expiresAt := s.now().Add(s.cfg.TokenTTL)
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": s.now().Unix(),
		"exp": expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *Server) parseToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return sub, nil
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			jsonError(c, http.StatusUnauthorized, apperr.CodeNotAuthenticated, "Missing bearer token")
			return
		}

		userID, err := s.parseToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			jsonError(c, http.StatusUnauthorized, apperr.CodeNotAuthenticated, "Invalid or expired token")
			return
		}

		s.mu.Lock()
		_, exists := s.users[userID]
		s.mu.Unlock()
		if !exists {
			jsonError(c, http.StatusUnauthorized, apperr.CodeNotAuthenticated, "Unknown user")
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func (s *Server) requireCoordinator() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(userIDKey)

		s.mu.Lock()
		u := s.users[userID]
		allowed := u != nil && (model.ContainsRole(u.Roles, model.RoleCoordinator) || model.ContainsRole(u.Roles, model.RoleAdmin))
		s.mu.Unlock()

		if !allowed {
			jsonError(c, http.StatusForbidden, apperr.CodeForbidden, "Coordinator role required")
			return
		}
		c.Next()
	}
}

type registerBody struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	Skills    string `json:"skills"`
	Role      string `json:"role"`
}

func (s *Server) register(c *gin.Context) {
	var body registerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, apperr.CodeInvalidInput, "Invalid registration: "+err.Error())
		return
	}

	role := model.RoleVolunteer
	if body.Role != "" {
		r, ok := roles.Normalize(body.Role)
		if !ok || r == model.RoleAdmin {
			jsonError(c, http.StatusBadRequest, apperr.CodeInvalidInput, "Invalid role")
			return
		}
		role = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(body.Email))
	if _, exists := s.usersByEmail[email]; exists {
		jsonError(c, http.StatusConflict, apperr.CodeConflict, "Email already registered")
		return
	}

	u := &user{
		ID:        newID(),
		FirstName: strings.TrimSpace(body.FirstName),
		LastName:  strings.TrimSpace(body.LastName),
		Email:     email,
		Password:  body.Password,
		Phone:     body.Phone,
		Address:   body.Address,
		Skills:    body.Skills,
		Roles:     []model.Role{role},
	}
	s.addUserLocked(u)
	s.verifyTokens[newID()] = u.ID

	s.logger.Info("Registered user", zap.String("email", email), zap.String("role", string(role)))
	c.Status(http.StatusCreated)
}

func (s *Server) verify(c *gin.Context) {
	token := c.Query("token")

	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.verifyTokens[token]
	if !ok {
		jsonError(c, http.StatusBadRequest, apperr.CodeInvalidInput, "Invalid or used verification token")
		return
	}
	delete(s.verifyTokens, token)
	s.users[userID].Verified = true

	c.String(http.StatusOK, "Account verified")
}

type loginBody struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	var body loginBody
	if err := c.ShouldBindJSON(&body); err != nil {
		jsonError(c, http.StatusBadRequest, apperr.CodeInvalidInput, "Email and password are required")
		return
	}

	s.mu.Lock()
	u := s.usersByEmail[strings.ToLower(strings.TrimSpace(body.Email))]
	var (
		userID   string
		verified bool
		email    string
		granted  []model.Role
	)
	if u != nil && u.Password == body.Password {
		userID, verified, email = u.ID, u.Verified, u.Email
		granted = append(granted, u.Roles...)
	}
	s.mu.Unlock()

	if userID == "" {
		jsonError(c, http.StatusUnauthorized, apperr.CodeInvalidCredentials, "Invalid email or password")
		return
	}
	if !verified {
		jsonError(c, http.StatusForbidden, apperr.CodeInvalidCredentials, "Account not verified, check your email")
		return
	}

	token, expiresAt, err := s.IssueToken(userID)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, apperr.CodeInternal, "Failed to issue token")
		return
	}

	roleNames := make([]string, len(granted))
	for i, r := range granted {
		roleNames[i] = string(r)
	}
	primary := ""
	if len(granted) > 0 {
		primary = string(granted[0])
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
		"email":     email,
		"roles":     roleNames,
		"role":      primary,
	})
}
