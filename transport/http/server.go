package httptransport

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	glog "github.com/goliatone/go-logger/glog"

	provisioning "github.com/goliatone/go-provisioning"
)

const apiKeyContextKey = "provisioning.api_key"

type Server struct {
	facade     *provisioning.Facade
	logger     glog.Logger
	metrics    http.Handler
	adminToken string
	engine     *gin.Engine
}

type Option func(*Server)

func WithLogger(logger glog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsHandler serves handler at GET /metrics.
func WithMetricsHandler(handler http.Handler) Option {
	return func(s *Server) {
		s.metrics = handler
	}
}

// WithAdminToken enables the /admin routes for callers presenting token.
func WithAdminToken(token string) Option {
	return func(s *Server) {
		s.adminToken = strings.TrimSpace(token)
	}
}

func New(facade *provisioning.Facade, opts ...Option) (*Server, error) {
	if facade == nil {
		return nil, errors.New("httptransport: facade is required")
	}
	server := &Server{facade: facade, logger: glog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(server)
		}
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), server.requestLogger())
	server.routes(engine)
	server.engine = engine
	return server, nil
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve runs an http.Server on addr until ctx is cancelled, then shuts it
// down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "address", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

func (s *Server) routes(engine *gin.Engine) {
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/status", s.status)
	if s.metrics != nil {
		engine.GET("/metrics", gin.WrapH(s.metrics))
	}

	admin := engine.Group("/admin", s.requireAdmin())
	admin.GET("/projects", s.listProjectAccountPairs)

	// Account creation registers the presented key, so it only needs the key.
	engine.POST("/accounts", s.requireAPIKey(), s.createAccount)

	tenant := engine.Group("/", s.requireAPIKey())
	tenant.GET("/accounts/me", s.getAccount)
	tenant.DELETE("/accounts/me", s.deleteAccount)
	tenant.GET("/projects", s.listProjects)
	tenant.POST("/projects/:project", s.createProject)
	tenant.DELETE("/projects/:project", s.deleteProject)
	tenant.GET("/projects/:project/resources", s.listResources)
	tenant.POST("/projects/:project/resources/:store", s.provisionResource)
	tenant.GET("/projects/:project/resources/:store", s.getResource)
	tenant.DELETE("/projects/:project/resources/:store", s.deprovisionResource)
	tenant.POST("/projects/:project/resources/:store/retry", s.retryResource)
}

func (s *Server) requireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			writeError(c, unauthorizedError("missing bearer api key"))
			return
		}
		c.Set(apiKeyContextKey, key)
		c.Next()
	}
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.adminToken == "" {
			writeError(c, forbiddenError("admin api is disabled"))
			return
		}
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			writeError(c, unauthorizedError("missing bearer admin token"))
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			writeError(c, forbiddenError("invalid admin token"))
			return
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startedAt := time.Now()
		c.Next()
		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", status,
			"duration_ms", time.Since(startedAt).Milliseconds(),
		}
		if status >= http.StatusInternalServerError {
			s.logger.Error("http request failed", args...)
			return
		}
		s.logger.Debug("http request", args...)
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func apiKeyFrom(c *gin.Context) string {
	return c.GetString(apiKeyContextKey)
}
