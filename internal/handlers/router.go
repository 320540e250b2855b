package handlers

import (
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/chepyr/task-store/internal/models"
)

const (
	priorityTag   = "priority"
	taskStatusTag = "task_status"

	requestIDHeader = "X-Request-ID"
	requestIDCtxKey = "request_id"
)

var registerValidatorsOnce sync.Once

// registerValidators teaches gin's validator the closed task enums and makes
// it report fields by their JSON names.
func registerValidators() {
	registerValidatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		if err := v.RegisterValidation(priorityTag, func(fl validator.FieldLevel) bool {
			return models.Priority(fl.Field().String()).Valid()
		}); err != nil {
			panic(err)
		}
		if err := v.RegisterValidation(taskStatusTag, func(fl validator.FieldLevel) bool {
			return models.TaskStatus(fl.Field().String()).Valid()
		}); err != nil {
			panic(err)
		}
	})
}

// NewRouter wires the task API, the change feed and the middleware chain.
func NewRouter(h *Handler) *gin.Engine {
	registerValidators()

	router := gin.New()
	router.Use(h.RequestLogger())
	router.Use(gin.Recovery())
	router.Use(allowRequestedHeaders())
	router.Use(cors.New(corsConfig(h.ClientOrigin)))

	router.GET("/ping", h.Ping)

	tasks := router.Group("/tasks")
	tasks.GET("", h.ListTasks)
	tasks.POST("", h.CreateTask)
	tasks.GET("/:id", h.GetTask)
	tasks.PUT("/:id", h.UpdateTask)
	tasks.DELETE("/:id", h.DeleteTask)

	router.GET("/ws", h.HandleWebSocket)
	return router
}

// corsConfig admits exactly one client origin, with credentials and every
// method. Request headers are echoed by allowRequestedHeaders since a
// literal "*" is not honored by browsers on credentialed requests.
func corsConfig(origin string) cors.Config {
	return cors.Config{
		AllowOrigins: []string{origin},
		AllowMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

func allowRequestedHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			if requested := c.GetHeader("Access-Control-Request-Headers"); requested != "" {
				c.Header("Access-Control-Allow-Headers", requested)
			}
		}
		c.Next()
	}
}

func (h *Handler) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDCtxKey, requestID)
		c.Header(requestIDHeader, requestID)

		c.Next()

		status := c.Writer.Status()
		event := h.Logger.Info()
		switch {
		case status >= http.StatusInternalServerError:
			event = h.Logger.Error()
		case status >= http.StatusBadRequest:
			event = h.Logger.Warn()
		}
		event.
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Str("client_ip", c.ClientIP()).
			Dur("latency", time.Since(start)).
			Str("user_agent", c.Request.UserAgent()).
			Msg("request")
	}
}
