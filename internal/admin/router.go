package admin

import (
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/luma/ninep/internal/meta"
	"github.com/luma/ninep/transport"
)

type Options struct {
	// DebugHTTP puts gin in debug mode
	DebugHTTP bool

	// Sessions lists the active 9P connections
	Sessions func() []transport.SessionInfo

	Log *zap.Logger
}

// NewRouter serves
//
//   GET /ping      pong
//   GET /sessions  {"sessions": [{"id", "remoteAddr", "msize"}]}
//   GET /version   build info
func NewRouter(options Options) *gin.Engine {
	gin.DisableConsoleColor()
	if options.DebugHTTP {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()

	// Add a ginzap middleware, which:
	//   - Logs all requests, like a combined access and error log.
	//   - RFC3339 with UTC time format.
	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/ping"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	r.GET("/sessions", func(c *gin.Context) {
		sessions := []transport.SessionInfo{}
		if options.Sessions != nil {
			sessions = options.Sessions()
		}

		c.JSON(http.StatusOK, gin.H{"sessions": sessions})
	})

	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, meta.GetInfo())
	})

	return r
}
