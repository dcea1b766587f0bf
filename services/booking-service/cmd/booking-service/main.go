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
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/booking-service/internal/availability"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/booking-service/internal/booking"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/booking-service/internal/handlers"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/booking-service/internal/outbox"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/booking-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
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

	outboxRepo := outbox.NewRepository(pool)
	apptRepo := storage.NewAppointmentRepository(pool, outboxRepo)
	businessRepo := storage.NewBusinessRepository(pool)

	coordinator := booking.NewCoordinator(apptRepo, logger)
	engine := availability.NewEngine(businessRepo, businessRepo, coordinator)

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	if err := startGrpcServer(ctx, logger, engine, coordinator); err != nil {
		logger.Error("grpc server init failed", "err", err)
	}

	bookingHandler := handlers.NewBookingHandler(engine, coordinator, apptRepo, businessRepo, logger)
	requireJWT := auth.RequireJWT(config.String("JWT_SECRET", "dev-secret"))

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/public/slots", bookingHandler.Slots)
	mux.HandleFunc("/api/v1/public/availability", bookingHandler.Availability)
	mux.HandleFunc("/api/v1/public/book", bookingHandler.Create)
	mux.Handle("/api/v1/appointments", requireJWT(http.HandlerFunc(bookingHandler.List)))
	mux.Handle("/api/v1/appointments/cancel", requireJWT(http.HandlerFunc(bookingHandler.Cancel)))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithTimeout(time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 15))*time.Second),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
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
