// Package webapp is the backend of the Telegram Mini App form used to submit
// listings.
package webapp

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"shop-post-bot/internal/metrics"
	"shop-post-bot/internal/moderation"
	"shop-post-bot/internal/storage"
)

const (
	InitDataHeader = "X-Telegram-Init-Data"
	contextKeyUser = "webappUser"
)

type Lifecycle interface {
	Preview(ctx context.Context, sub moderation.Submission) (*moderation.Preview, error)
	SubmitListing(ctx context.Context, sub moderation.Submission) (int64, error)
}

type Catalog interface {
	ListCategories(ctx context.Context) ([]storage.Category, error)
	GetCategory(ctx context.Context, id int64) (*storage.Category, error)
	ListShopAddresses(ctx context.Context) ([]storage.ShopAddress, error)
	GetShopAddress(ctx context.Context, id int64) (*storage.ShopAddress, error)
}

type SpecLookup interface {
	Lookup(ctx context.Context, productName string, category *storage.Category) map[string]string
}

type PhotoUploader interface {
	Upload(ctx context.Context, data []byte) (string, error)
}

// Options configure the server. Specs, Photos, Metrics and Clock are
// optional.
type Options struct {
	BotToken       string
	AllowUnsigned  bool
	InitDataMaxAge time.Duration
	// SubmitRate limits expensive calls per user; zero means one per second.
	SubmitRate  rate.Limit
	SubmitBurst int

	Lifecycle Lifecycle
	Catalog   Catalog
	Specs     SpecLookup
	Photos    PhotoUploader
	Metrics   *metrics.Metrics
	Clock     clockwork.Clock
}

type Server struct {
	opts   Options
	logger *zap.SugaredLogger

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

func NewServer(opts Options, logger *zap.SugaredLogger) *Server {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.SubmitRate == 0 {
		opts.SubmitRate = 1
	}
	if opts.SubmitBurst <= 0 {
		opts.SubmitBurst = 5
	}
	return &Server{opts: opts, logger: logger, limiters: make(map[string]*rate.Limiter)}
}

// Router builds the gin engine serving the form API.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), corsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.opts.Metrics.Handler()))
	}

	api := r.Group("/api", s.authMiddleware())
	api.GET("/categories", s.listCategories)
	api.GET("/shop-addresses", s.listShopAddresses)
	api.POST("/preview-post", s.previewPost)

	limited := api.Group("", s.rateLimitMiddleware())
	limited.POST("/search-specs", s.searchSpecs)
	limited.POST("/create-post", s.createPost)
	if s.opts.Photos != nil {
		limited.POST("/photos", s.uploadPhoto)
	}
	return r
}

// authMiddleware accepts requests carrying valid Mini App init data. With
// AllowUnsigned, requests without init data pass as an anonymous user;
// init data that is present but invalid is always refused.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		initData := c.GetHeader(InitDataHeader)
		if initData == "" && s.opts.AllowUnsigned {
			c.Set(contextKeyUser, &WebAppUser{})
			c.Next()
			return
		}
		user, err := ValidateInitData(initData, s.opts.BotToken, s.opts.InitDataMaxAge, s.opts.Clock.Now())
		if err != nil {
			s.logger.Warnf("Rejected web app request from %s: %v", c.ClientIP(), err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid init data"})
			return
		}
		c.Set(contextKeyUser, user)
		c.Next()
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if user := currentUser(c); user.ID != 0 {
			key = strconv.FormatInt(user.ID, 10)
		}
		if !s.limiter(key).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func (s *Server) limiter(key string) *rate.Limiter {
	s.limitersMu.Lock()
	defer s.limitersMu.Unlock()
	l, ok := s.limiters[key]
	if !ok {
		// Bounded memory; limits reset for everyone when the table fills up.
		if len(s.limiters) >= 10000 {
			s.limiters = make(map[string]*rate.Limiter)
		}
		l = rate.NewLimiter(s.opts.SubmitRate, s.opts.SubmitBurst)
		s.limiters[key] = l
	}
	return l
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debugw("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, "+InitDataHeader)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *WebAppUser {
	if v, ok := c.Get(contextKeyUser); ok {
		if user, ok := v.(*WebAppUser); ok {
			return user
		}
	}
	return &WebAppUser{}
}
