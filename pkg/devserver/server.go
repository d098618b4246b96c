// Package devserver is an in-memory implementation of the volunteer portal
// REST backend. It backs local development (cmd/devserver) and the gateway
// and workflow tests.
package devserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
)

// Config configures a Server
type Config struct {
	// Secret signs bearer tokens (HS256)
	Secret   string
	TokenTTL time.Duration
	// Now overrides the clock, for tests
	Now func() time.Time
}

type user struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Password  string
	Phone     string
	Address   string
	Skills    string
	Roles     []model.Role
	Verified  bool
	AvatarRef string
}

func (u *user) name() string {
	return u.FirstName + " " + u.LastName
}

type activity struct {
	model.Activity
}

type enrollment struct {
	ID         string
	ActivityID string
	UserID     string
	CreatedAt  time.Time
	Attended   bool
	AttendedAt *time.Time
}

type notification struct {
	ID        string
	UserID    string
	Title     string
	Message   string
	Link      string
	CreatedAt time.Time
	Read      bool
	Priority  bool
}

type avatar struct {
	ContentType string
	Data        []byte
}

// Server holds all backend state behind one mutex, so capacity and
// duplicate checks are atomic with the write they guard.
type Server struct {
	cfg    Config
	logger *zap.Logger
	engine *gin.Engine

	mu            sync.Mutex
	users         map[string]*user
	usersByEmail  map[string]*user
	activities    map[string]*activity
	activityOrder []string
	enrollments   map[string]*enrollment
	notifications []*notification
	avatars       map[string]avatar
	verifyTokens  map[string]string
	unenrollLog   []UnenrollEvent
	requests      map[string]int
}

// UnenrollEvent records a removed enrollment and its optional reason
type UnenrollEvent struct {
	ActivityID string
	UserID     string
	ByUserID   string
	Reason     string
}

// New creates a Server with empty state
func New(cfg Config, logger *zap.Logger) *Server {
	if cfg.Secret == "" {
		cfg.Secret = "devserver-secret"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:          cfg,
		logger:       logger,
		users:        make(map[string]*user),
		usersByEmail: make(map[string]*user),
		activities:   make(map[string]*activity),
		enrollments:  make(map[string]*enrollment),
		avatars:      make(map[string]avatar),
		verifyTokens: make(map[string]string),
		requests:     make(map[string]int),
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler serving the API under /api/v1
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(s.logger), s.countRequests(), gin.Recovery())

	api := r.Group("/api/v1")

	// Public routes
	api.POST("/auth/register", s.register)
	api.GET("/auth/verify", s.verify)
	api.POST("/auth/login", s.login)
	api.GET("/activities", s.listActivities)
	api.GET("/activities/:id/availability", s.availability)

	// Authenticated routes
	authed := api.Group("")
	authed.Use(s.authMiddleware())
	{
		authed.GET("/profile/me", s.getProfile)
		authed.PUT("/profile/me", s.updateProfile)
		authed.GET("/profile/avatar/:ref", s.getAvatar)
		authed.PUT("/profile/role", s.updateRole)

		authed.POST("/activities/:id/enroll", s.enroll)
		authed.DELETE("/activities/:id/enroll", s.unenroll)
		authed.GET("/enrollments/me", s.myEnrollments)

		authed.GET("/notifications", s.listNotifications)
		authed.GET("/notifications/unread/count", s.unreadCount)
		authed.POST("/notifications/:id/read", s.markNotificationRead)
	}

	// Coordinator routes
	coord := authed.Group("")
	coord.Use(s.requireCoordinator())
	{
		coord.POST("/activities", s.createActivity)
		coord.GET("/activities/:id/enrollments", s.roster)
		coord.POST("/activities/:id/assign/:userId", s.assign)
		coord.POST("/activities/:id/assignByEmail", s.assignByEmail)
		coord.DELETE("/activities/:id/unenroll/:userId", s.adminUnenroll)
		coord.POST("/activities/attendance/:enrollmentId/mark", s.markAttendance)
		coord.GET("/volunteers", s.searchVolunteers)
	}

	return r
}

func (s *Server) now() time.Time {
	return s.cfg.Now()
}

func newID() string {
	return uuid.NewString()
}

func jsonError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "message": message})
}
