//go:build !protogen

package main

import (
	"context"
	"log/slog"

	"github.com/TonyIlliano/Smallbizagent1-sub000/services/booking-service/internal/availability"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/booking-service/internal/booking"
)

func startGrpcServer(_ context.Context, _ *slog.Logger, _ *availability.Engine, _ *booking.Coordinator) error {
	return nil
}
