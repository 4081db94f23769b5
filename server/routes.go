// routes.go - HTTP-Routen des imp Servers
//
// Dieses Modul enthaelt:
// - Server: Zustand des HTTP-Servers (Registry, Begrenzung paralleler Loesungen)
// - GenerateRoutes: Gin-Router mit CORS und allen API-Endpoints
// - limitUpload: Middleware fuer IMP_MAX_UPLOAD_BYTES
package server

import (
	"net"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/7blacky7/imp/envconfig"
	"github.com/7blacky7/imp/stereo"
	"github.com/7blacky7/imp/version"
)

// Server haelt den Zustand des HTTP-Servers.
type Server struct {
	addr     net.Addr
	registry *stereo.Registry
	solves   *semaphore.Weighted
}

// GenerateRoutes baut den Gin-Router.
func (s *Server) GenerateRoutes() (http.Handler, error) {
	if s.registry == nil {
		s.registry = stereo.DefaultRegistry
	}
	if s.solves == nil {
		n := int64(envconfig.MaxSolves())
		if n < 1 {
			n = 1
		}
		s.solves = semaphore.NewWeighted(n)
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	corsConfig.ExposeHeaders = []string{
		headerSession,
		headerMin,
		headerMax,
	}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.Use(cors.New(corsConfig))

	// General
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "imp is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "imp is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })

	// Konfiguration und Geraete
	r.GET("/api/config", s.ConfigHandler)
	r.GET("/api/devices", s.DevicesHandler)
	r.GET("/api/solvers", s.SolversHandler)

	// Verarbeitung
	r.POST("/api/pyramid", limitUpload(), s.PyramidHandler)
	r.POST("/api/stereo", limitUpload(), s.StereoHandler)

	return r, nil
}

// limitUpload begrenzt den Request-Body auf IMP_MAX_UPLOAD_BYTES.
func limitUpload() gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit := envconfig.MaxUploadBytes(); limit > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(limit))
		}
		c.Next()
	}
}
