package cardserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/cardq/pkg/requestid"
)

// NewRouter mounts the DAV tree plus health, metrics and service
// discovery endpoints. access may be nil.
func NewRouter(s *Server, access *AccessLog) *gin.Engine {
	r := gin.New()
	r.Use(requestIDMiddleware(requestid.DefaultHeaderKey))
	if access != nil {
		r.Use(requestLogger(access, requestid.DefaultHeaderKey))
	}
	r.Use(gin.Recovery())
	if s.metrics != nil {
		r.Use(metricsMiddleware(s.metrics))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	if s.metrics != nil && s.cfg.Metrics.Enabled {
		r.GET(s.cfg.Metrics.Path, gin.WrapH(s.metrics.Handler()))
	}
	// RFC 6764 service discovery.
	wellKnown := func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, s.prefix+"/")
	}
	r.Any("/.well-known/carddav", wellKnown)
	r.Handle("PROPFIND", "/.well-known/carddav", wellKnown)

	// WebDAV methods are open ended, so the tree is served from NoRoute
	// and scoped to the prefix in serveDAV.
	r.NoRoute(s.serveDAV)
	return r
}
