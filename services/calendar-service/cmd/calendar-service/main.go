package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/TonyIlliano/Smallbizagent1-sub000/libs/auth"
	"github.com/TonyIlliano/Smallbizagent1-sub000/libs/config"
	"github.com/TonyIlliano/Smallbizagent1-sub000/libs/db"
	"github.com/TonyIlliano/Smallbizagent1-sub000/libs/httpx"
	"github.com/TonyIlliano/Smallbizagent1-sub000/libs/kafkax"
	otelx "github.com/TonyIlliano/Smallbizagent1-sub000/libs/otel"
	"github.com/TonyIlliano/Smallbizagent1-sub000/libs/runtime"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/consumer"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/handlers"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/inbox"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/provider"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/storage"
	syncpkg "github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/sync"
)

func main() {
	service := config.String("SERVICE_NAME", "calendar-service")
	port, err := config.Port("PORT", "8084")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	repo := storage.NewRepository(pool)
	feedDir := config.String("FEED_DIR", "/var/lib/calendar-service/feeds")
	publicURL := config.String("PUBLIC_BASE_URL", "http://localhost:"+port)

	apple := provider.NewAppleAdapter(repo, feedDir)
	adapters := []provider.Adapter{
		provider.NewGoogleAdapter(repo, repo),
		provider.NewMicrosoftAdapter(repo, repo, nil),
		apple,
	}

	timeout := time.Duration(config.Int("PROVIDER_TIMEOUT_SECONDS", 10)) * time.Second
	orchestrator := syncpkg.NewOrchestrator(repo, adapters, timeout, logger)

	brokers := config.String("KAFKA_BROKERS", "")
	inboxRepo := inbox.NewRepository(pool)
	groupID := config.String("KAFKA_GROUP_ID", "calendar-service")
	for _, topic := range []string{consumer.TopicAppointmentBooked, consumer.TopicAppointmentCancelled} {
		c := consumer.New(logger, inboxRepo, orchestrator, consumer.Config{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		})
		go c.Run(ctx)
	}

	calendarHandler := handlers.NewCalendarHandler(orchestrator, repo, apple, publicURL, logger)
	requireJWT := auth.RequireJWT(config.String("JWT_SECRET", "dev-secret"))

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.Handle("/api/v1/calendar/sync", requireJWT(http.HandlerFunc(calendarHandler.Sync)))
	mux.Handle("/api/v1/calendar/delete-sync", requireJWT(http.HandlerFunc(calendarHandler.Unsync)))
	mux.Handle("/api/v1/calendar/status", requireJWT(http.HandlerFunc(calendarHandler.Status)))
	mux.Handle("/api/v1/calendar/google/credentials", requireJWT(calendarHandler.Credentials(provider.KindGoogle)))
	mux.Handle("/api/v1/calendar/microsoft/credentials", requireJWT(calendarHandler.Credentials(provider.KindMicrosoft)))
	mux.Handle("/api/v1/calendar/apple/subscribe", requireJWT(http.HandlerFunc(calendarHandler.Subscribe)))
	mux.Handle("/api/v1/calendar/disconnect", requireJWT(http.HandlerFunc(calendarHandler.Disconnect)))
	// Feed URLs are public; Apple Calendar fetches them without auth.
	mux.Handle("/calendar/", calendarHandler.Feeds(feedDir))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "calendar")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
