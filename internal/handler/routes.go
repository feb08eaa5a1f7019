package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/wave745/goontest-sub001/internal/db"
	"github.com/wave745/goontest-sub001/internal/middleware"
	"github.com/wave745/goontest-sub001/internal/models"
	"github.com/wave745/goontest-sub001/internal/services"
	"github.com/wave745/goontest-sub001/utils"
)

// Handler wires the HTTP surface to the services.
type Handler struct {
	coord  *services.Coordinator
	feed   *services.FeedService
	store  db.Store
	health *Health
	log    *utils.Logger

	// cluster names the explorer cluster for signature links.
	cluster string
}

// Option configures a Handler.
type Option func(*Handler)

// WithCluster sets the explorer cluster used in unlock history links.
func WithCluster(cluster string) Option {
	return func(h *Handler) { h.cluster = cluster }
}

func New(coord *services.Coordinator, feed *services.FeedService, store db.Store, health *Health, log *utils.Logger, opts ...Option) *Handler {
	if log == nil {
		log = utils.DefaultLogger
	}
	if health == nil {
		health = NewHealth(store, 0)
	}
	h := &Handler{coord: coord, feed: feed, store: store, health: health, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.GET("/healthz", h.health.Healthz)
	r.GET("/readyz", h.health.Readyz)

	api := r.Group("/api", middleware.Viewer())
	{
		api.GET("/feed", h.Feed)
		api.GET("/posts/:id", h.PostDetail)
		api.POST("/posts/unlock", h.Unlock)
		api.GET("/creators/:id/posts", h.CreatorPosts)
		api.GET("/users/:id/unlocks", h.UserUnlocks)
	}

	admin := r.Group("/admin", middleware.LocalOnly())
	{
		admin.POST("/users", h.CreateUser)
		admin.POST("/posts", h.CreatePost)
		admin.PATCH("/posts/:id", h.UpdatePost)
	}
}

// writeError renders the {"error","code"} envelope. access, when non-nil, is
// the fail-closed state the client should render.
func (h *Handler) writeError(c *gin.Context, err error, access *models.AccessState) {
	status, code := classify(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError && code == services.CodeInternal {
		h.log.Error("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		msg = "internal error"
	}
	body := gin.H{"error": msg, "code": code}
	if access != nil {
		body["access"] = access
	}
	c.AbortWithStatusJSON(status, body)
}

// classify extends services.Classify with the admin-side store errors.
func classify(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest, services.CodeInvalidRequest
	case errors.Is(err, db.ErrDuplicateUser):
		return http.StatusConflict, services.CodeInvalidRequest
	case errors.Is(err, db.ErrInvalidRecord):
		return http.StatusBadRequest, services.CodeInvalidRequest
	}
	return services.Classify(err)
}
