package api

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"dnicheck/internal/queue"
	"dnicheck/internal/storage"
	"dnicheck/internal/verifier"
	"dnicheck/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Server wraps the HTTP API and the HTML pages
type Server struct {
	router *gin.Engine
}

// NewServer creates a new API server
func NewServer(q *queue.Queue, uploads *storage.Storage, v verifier.Verifier, hub *websocket.Hub) *Server {
	handler := NewHandler(q, uploads, v, hub)

	router := gin.New()

	// Progress polling runs every second per open page, keep it out of the log
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		if strings.HasPrefix(param.Path, "/progress/") || param.Path == "/ws" {
			return ""
		}
		return fmt.Sprintf("[%s] %s %s %d %s %s \"%s\" %s\n",
			param.TimeStamp.Format("2006/01/02 - 15:04:05"),
			param.ClientIP,
			param.Method,
			param.StatusCode,
			param.Latency,
			param.Path,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}))

	router.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/*.html")))

	router.GET("/", handler.UploadPage)
	router.GET("/buscar", handler.LookupPage)
	router.GET("/health", handler.Health)
	router.GET("/ws", websocket.HandleWebSocket(hub))

	router.POST("/upload", handler.Upload)
	router.GET("/progress/:task_id", handler.Progress)
	router.GET("/resultados/:task_id", handler.ResultsPage)
	router.GET("/descargar/:task_id", handler.Download)
	router.POST("/api/verificar-dni", handler.VerifyDNI)

	return &Server{router: router}
}

// GetRouter returns the router
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
