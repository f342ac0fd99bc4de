package newsapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/berlinerpub/pubsite/pkg/pubsite/metrics"
	"github.com/berlinerpub/pubsite/pkg/pubsite/models"
	"github.com/berlinerpub/pubsite/pkg/pubsite/news"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultMaxBodyBytes caps the request body read by the gateway.
const DefaultMaxBodyBytes int64 = 1 << 20

// APIKeyHeader carries the caller's API key.
const APIKeyHeader = "x-api-key"

// Handler is the news ingestion gateway: one POST creates one article
// and every POST leaves exactly one api_logs row.
type Handler struct {
	db           *gorm.DB
	limiter      Limiter
	metrics      *metrics.Metrics
	log          *zap.Logger
	now          func() time.Time
	maxBodyBytes int64
}

// Option configures a Handler
type Option func(*Handler)

// WithLimiter replaces the default api_logs window limiter
func WithLimiter(l Limiter) Option {
	return func(h *Handler) { h.limiter = l }
}

// WithMetrics records gateway outcomes on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithLogger sets the logger used for failures that cannot reach the caller
func WithLogger(log *zap.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// WithClock sets the time source. Times are stored in UTC.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = func() time.Time { return now().UTC() } }
}

// WithMaxBodyBytes caps the body size; larger bodies count as invalid JSON
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// NewHandler creates the gateway handler
func NewHandler(db *gorm.DB, opts ...Option) *Handler {
	h := &Handler{
		db:           db,
		log:          zap.NewNop(),
		now:          func() time.Time { return time.Now().UTC() },
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.limiter == nil {
		h.limiter = NewLogWindowLimiter(db, h.now)
	}
	return h
}

// RegisterRoutes mounts the gateway for every method; the method gate is part of the pipeline
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.Any(Endpoint, h.Handle)
}

// Handle runs the gateway pipeline.
func (h *Handler) Handle(c *gin.Context) {
	setCORSHeaders(c.Writer.Header())

	switch c.Request.Method {
	case http.MethodOptions:
		c.Status(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
		return
	}

	a := &auditEntry{
		method:    c.Request.Method,
		ip:        truncate(clientIP(c.Request), 64),
		userAgent: truncate(c.Request.UserAgent(), 512),
	}

	defer func() {
		if r := recover(); r != nil {
			h.metrics.RecordPanic()
			h.log.Error("Panic in news gateway", zap.Any("error", r), zap.Stack("stack"))
			a.status, a.response, a.logged = http.StatusInternalServerError, gin.H{"error": "Internal server error"}, nil
		}
		if a.status != http.StatusCreated && a.release != nil {
			a.release()
		}
		h.emit(c.Request.Context(), a)
		h.metrics.RecordGatewayOutcome(a.status)
		c.JSON(a.status, a.response)
	}()

	a.status, a.response = h.process(c, a)
}

func validationFailed(errs []news.FieldError) gin.H {
	return gin.H{"error": "Validation failed", "details": errs}
}

// process runs the stages in order and returns the response. Stages record
// what the audit row needs on a as they go.
func (h *Handler) process(c *gin.Context, a *auditEntry) (int, any) {
	ctx := c.Request.Context()

	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		return http.StatusBadRequest, gin.H{"error": "Invalid JSON in request body"}
	}
	body, ok := news.DecodeBody(raw)
	if !ok {
		return http.StatusBadRequest, gin.H{"error": "Invalid JSON in request body"}
	}
	a.request = datatypes.JSON(raw)
	if body == nil {
		return http.StatusBadRequest, validationFailed([]news.FieldError{news.NotObject})
	}

	in, errs := news.ParseInput(body)
	if len(errs) > 0 {
		return http.StatusBadRequest, validationFailed(errs)
	}

	token := c.GetHeader(APIKeyHeader)
	if token == "" {
		return http.StatusUnauthorized, gin.H{"error": "API key is required. Please provide x-api-key header."}
	}

	key, err := h.lookupKey(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return http.StatusUnauthorized, gin.H{"error": "Invalid or inactive API key"}
		}
		h.log.Error("API key lookup failed", zap.Error(err))
		return http.StatusInternalServerError, gin.H{"error": "Internal server error"}
	}
	if !key.IsActive {
		return http.StatusUnauthorized, gin.H{"error": "Invalid or inactive API key"}
	}
	a.keyID = &key.ID

	if key.IsExpired(h.now()) {
		return http.StatusUnauthorized, gin.H{"error": "API key has expired"}
	}
	if !key.HasPermission(models.PermissionNewsCreate) {
		return http.StatusForbidden, gin.H{"error": "API key does not have permission to create news"}
	}

	reservation := uuid.NewString()
	allowed, err := h.limiter.Acquire(ctx, key.ID, key.RateLimit, reservation)
	if err != nil {
		h.log.Error("Rate limit check failed", zap.String("api_key_id", key.ID.String()), zap.Error(err))
		return http.StatusInternalServerError, gin.H{"error": "Failed to check rate limit"}
	}
	if !allowed {
		h.metrics.RecordRateLimited()
		return http.StatusTooManyRequests, gin.H{
			"error":            "Rate limit exceeded",
			"limit":            key.RateLimit,
			"reset_in_seconds": ResetInSeconds,
		}
	}
	a.release = func() {
		if err := h.limiter.Release(context.WithoutCancel(ctx), key.ID, reservation); err != nil {
			h.log.Warn("Failed to release rate limit reservation", zap.String("api_key_id", key.ID.String()), zap.Error(err))
		}
	}

	now := h.now()
	base := news.BaseSlug(in)
	slug, err := news.ResolveSlug(ctx, h.db, base, now)
	if err != nil {
		return http.StatusInternalServerError, gin.H{"error": "Failed to create news article", "details": err.Error()}
	}

	article := in.Article(slug, now)
	if err := news.CreateUnique(ctx, h.db, &article, base, h.now); err != nil {
		h.log.Error("Failed to create news article", zap.String("slug", article.Slug), zap.Error(err))
		return http.StatusInternalServerError, gin.H{"error": "Failed to create news article", "details": err.Error()}
	}

	h.touch(ctx, key.ID, now)
	h.metrics.RecordArticleCreated("gateway")

	data := gin.H{"id": article.ID, "slug": article.Slug}
	a.logged = data
	return http.StatusCreated, gin.H{
		"success": true,
		"message": "News article created successfully",
		"data":    data,
	}
}

func (h *Handler) lookupKey(ctx context.Context, token string) (*models.APIKey, error) {
	var key models.APIKey
	if err := h.db.WithContext(ctx).Where("api_key = ?", token).First(&key).Error; err != nil {
		return nil, err
	}
	return &key, nil
}

// touch records the key's last use. Failure does not fail the request.
func (h *Handler) touch(ctx context.Context, keyID uuid.UUID, now time.Time) {
	err := h.db.WithContext(ctx).Model(&models.APIKey{}).
		Where("id = ?", keyID).
		UpdateColumn("last_used", now).Error
	if err != nil {
		h.log.Warn("Failed to update api key last_used", zap.String("api_key_id", keyID.String()), zap.Error(err))
	}
}
