package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inkwell-cms/inkwell/internal/cache"
	"github.com/inkwell-cms/inkwell/internal/db"
	"github.com/inkwell-cms/inkwell/internal/posts"
	"github.com/inkwell-cms/inkwell/pkg/logging"
	"github.com/inkwell-cms/inkwell/pkg/telemetry"
)

// Router sets up API routes over the post service. Authentication is owned
// by an upstream collaborator; the caller identity arrives in the X-User-ID
// header.
type Router struct {
	service *posts.Service
	db      *db.DB
	cache   *cache.Cache
	logger  *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(service *posts.Service, database *db.DB, redisCache *cache.Cache) *Router {
	return &Router{
		service: service,
		db:      database,
		cache:   redisCache,
		logger:  logging.GetLogger().With(zap.String("component", "api-router")),
	}
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Health check endpoints
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)

	engine.GET("/posts", r.listPublished)
	engine.GET("/posts/trending", r.trending)
	engine.GET("/posts/search", r.searchByTags)
	engine.GET("/posts/:ref", r.getPost)
	engine.POST("/posts", r.createPost)
	engine.PATCH("/posts/:ref", r.updatePost)
	engine.DELETE("/posts/:ref", r.deletePost)
	engine.POST("/posts/:ref/like", r.like)
	engine.DELETE("/posts/:ref/like", r.unlike)
	engine.GET("/users/:id/posts", r.listByOwner)
}

// healthHandler reports service, database and cache reachability
func (r *Router) healthHandler(c *gin.Context) {
	status := http.StatusOK
	dbStatus := "OK"
	if err := r.db.Health(c.Request.Context()); err != nil {
		dbStatus = "DOWN"
		status = http.StatusServiceUnavailable
	}

	cacheStatus := "OK"
	if err := r.cache.Health(c.Request.Context()); err != nil {
		// Cache outage degrades latency, not availability.
		cacheStatus = "DOWN"
	}

	c.JSON(status, gin.H{
		"status":   dbStatus,
		"database": dbStatus,
		"cache":    cacheStatus,
		"service":  "inkwell-api",
	})
}

func (r *Router) getPost(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "posts.get")
	defer span.End()

	post, err := r.service.GetPost(ctx, c.Param("ref"))
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (r *Router) listPublished(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "posts.list")
	defer span.End()

	page := intQuery(c, "page", 1)
	size := intQuery(c, "size", 20)

	result, err := r.service.ListPublished(ctx, page, size)
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (r *Router) listByOwner(c *gin.Context) {
	ownerID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	ctx, span := telemetry.StartSpan(c.Request.Context(), "posts.list_by_owner")
	defer span.End()

	page := intQuery(c, "page", 1)
	size := intQuery(c, "size", 20)

	result, serr := r.service.ListByOwner(ctx, ownerID, page, size)
	if serr != nil {
		r.fail(c, serr)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (r *Router) trending(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "posts.trending")
	defer span.End()

	limit := intQuery(c, "limit", 10)

	items, err := r.service.Trending(ctx, limit)
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (r *Router) searchByTags(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "posts.search_by_tags")
	defer span.End()

	tags := strings.Split(c.Query("tags"), ",")

	items, err := r.service.SearchByTags(ctx, tags)
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (r *Router) createPost(c *gin.Context) {
	userID, ok := r.callerID(c)
	if !ok {
		return
	}

	var in posts.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	in.OwnerID = userID

	ctx, span := telemetry.StartSpan(c.Request.Context(), "posts.create")
	defer span.End()

	post, err := r.service.CreatePost(ctx, in)
	if err != nil {
		r.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (r *Router) updatePost(c *gin.Context) {
	if _, ok := r.callerID(c); !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("ref"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}

	var patch posts.UpdateInput
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	ctx, span := telemetry.StartSpan(c.Request.Context(), "posts.update")
	defer span.End()

	post, serr := r.service.UpdatePost(ctx, id, patch)
	if serr != nil {
		r.fail(c, serr)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (r *Router) deletePost(c *gin.Context) {
	if _, ok := r.callerID(c); !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("ref"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}

	ctx, span := telemetry.StartSpan(c.Request.Context(), "posts.delete")
	defer span.End()

	soft := c.DefaultQuery("soft", "true") != "false"
	if serr := r.service.DeletePost(ctx, id, soft); serr != nil {
		r.fail(c, serr)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) like(c *gin.Context) {
	userID, ok := r.callerID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("ref"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}

	ctx, span := telemetry.StartSpan(c.Request.Context(), "posts.like")
	defer span.End()

	if serr := r.service.Like(ctx, id, userID); serr != nil {
		r.fail(c, serr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": true})
}

func (r *Router) unlike(c *gin.Context) {
	userID, ok := r.callerID(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("ref"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid post id"})
		return
	}

	ctx, span := telemetry.StartSpan(c.Request.Context(), "posts.unlike")
	defer span.End()

	if serr := r.service.Unlike(ctx, id, userID); serr != nil {
		r.fail(c, serr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": false})
}

func (r *Router) fail(c *gin.Context, err error) {
	apiErr := toAPIError(err)
	if apiErr.Code == http.StatusInternalServerError {
		r.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(apiErr.Code, gin.H{"error": apiErr.Message})
}

// callerID extracts the authenticated user from the X-User-ID header set by
// the auth collaborator upstream
func (r *Router) callerID(c *gin.Context) (int64, bool) {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return 0, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
