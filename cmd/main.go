package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/swecc-uw/swecc-sockets/internal/auth"
	"github.com/swecc-uw/swecc-sockets/internal/broker"
	"github.com/swecc-uw/swecc-sockets/internal/config"
	"github.com/swecc-uw/swecc-sockets/internal/containerlogs"
	"github.com/swecc-uw/swecc-sockets/internal/logger"
	"github.com/swecc-uw/swecc-sockets/internal/middleware"
	ws "github.com/swecc-uw/swecc-sockets/internal/websocket"
)

const (
	defaultExchange = "swecc-socket-exchange"
	resumeExchange  = "swecc-ai-exchange"
	resumeQueue     = "sockets.reviewed-resume"
)

func main() {
	logger.Initialize(getEnv("LOG_LEVEL", "info"), getEnv("GIN_MODE", "release") != "release")
	log := logger.GetLogger()

	cfg := config.Load()

	verifier := auth.NewVerifier(cfg.JWTSecret)
	registry := ws.NewRegistry()

	emitters := map[ws.ServiceKind]*ws.Emitter{
		ws.ServiceEcho:   ws.NewEmitter(ws.ServiceEcho),
		ws.ServiceLogs:   ws.NewEmitter(ws.ServiceLogs),
		ws.ServiceRoom:   ws.NewEmitter(ws.ServiceRoom),
		ws.ServiceResume: ws.NewEmitter(ws.ServiceResume),
	}

	ws.NewEchoHandler().Register(emitters[ws.ServiceEcho])
	ws.NewRoomHandler(registry).Register(emitters[ws.ServiceRoom])
	resumeHandler := ws.NewResumeHandler(registry)
	resumeHandler.Register(emitters[ws.ServiceResume])

	logSource, err := containerlogs.NewSource(getEnv("POD_NAMESPACE", "default"))
	if err != nil {
		log.Warn().Err(err).Msg("container log source unavailable; log streaming is disabled for this process")
	}
	if logSource != nil {
		ws.NewLogStreamHandler(registry, logSource).Register(emitters[ws.ServiceLogs])
	}

	bridge := broker.New(cfg.AMQPURL())
	bridge.RegisterConsumer(&broker.Consumer{
		Queue:           resumeQueue,
		Exchange:        resumeExchange,
		RoutingKey:      "reviewed",
		DeclareExchange: true,
		Schema:          func() interface{} { return &ws.ResumeReview{} },
		Handler: func(body []byte) {
			var review ws.ResumeReview
			if err := json.Unmarshal(body, &review); err != nil {
				logger.Broker().Warn().Err(err).Msg("failed to decode resume review delivery")
				return
			}
			resumeHandler.Deliver(review)
		},
	})
	bridge.RegisterProducer(&broker.Producer{Exchange: defaultExchange})

	bridgeCtx, cancelBridge := context.WithCancel(context.Background())
	if err := bridge.Start(bridgeCtx); err != nil {
		log.Error().Err(err).Msg("AMQP bridge failed to start; resume notifications and other broker features are unavailable")
	}

	dispatcher := ws.NewDispatcher(verifier, registry, emitters)

	router := gin.New()
	router.Use(gin.Recovery())

	plain := router.Group("/", middleware.RequestID(), middleware.StructuredLogger())
	plain.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "online", "message": "WebSocket server is running"})
	})
	plain.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	router.GET("/ws/echo/:token", func(c *gin.Context) {
		dispatcher.Handle(c, ws.ServiceEcho, c.Param("token"))
	})
	router.GET("/ws/logs/:token", func(c *gin.Context) {
		dispatcher.Handle(c, ws.ServiceLogs, c.Param("token"))
	})
	router.GET("/ws/resume/:token", func(c *gin.Context) {
		dispatcher.Handle(c, ws.ServiceResume, c.Param("token"))
	})
	router.GET("/ws/:service/:token", func(c *gin.Context) {
		kind, ok := serviceKind(c.Param("service"))
		if !ok {
			dispatcher.RejectUnknownService(c, c.Param("service"))
			return
		}
		dispatcher.Handle(c, kind, c.Param("token"))
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.ListenHost, cfg.ListenPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      0, // WebSocket connections are long-lived
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shutdown")
	}

	cancelBridge()
	bridge.Shutdown()

	log.Info().Msg("shutdown complete")
}

// serviceKind maps the generic router's path segment to a ServiceKind, per
// §6: `service ∈ {echo, presence, chat}` for the simplified-deployment
// alternative. presence and chat both resolve to the Room handler, which
// covers both semantics.
func serviceKind(service string) (ws.ServiceKind, bool) {
	switch service {
	case "echo":
		return ws.ServiceEcho, true
	case "presence", "chat":
		return ws.ServiceRoom, true
	case "logs":
		return ws.ServiceLogs, true
	case "resume":
		return ws.ServiceResume, true
	default:
		return "", false
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
