//go:build protogen

package main

import (
	"context"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/TonyIlliano/Smallbizagent1-sub000/libs/config"
	"github.com/TonyIlliano/Smallbizagent1-sub000/libs/grpcx"
	bookingv1 "github.com/TonyIlliano/Smallbizagent1-sub000/protos/gen/booking/v1"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/booking-service/internal/availability"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/booking-service/internal/booking"
)

type bookingServer struct {
	bookingv1.UnimplementedBookingServiceServer

	engine      *availability.Engine
	coordinator *booking.Coordinator
}

func (s *bookingServer) CheckAvailability(ctx context.Context, req *bookingv1.CheckAvailabilityRequest) (*bookingv1.CheckAvailabilityResponse, error) {
	available, err := s.coordinator.IsTimeSlotAvailable(ctx, req.GetBusinessId(),
		req.GetStart().AsTime(), req.GetEnd().AsTime(), req.GetStaffId())
	if err != nil {
		return nil, err
	}
	return &bookingv1.CheckAvailabilityResponse{Available: available}, nil
}

func (s *bookingServer) FindSlots(ctx context.Context, req *bookingv1.FindSlotsRequest) (*bookingv1.FindSlotsResponse, error) {
	slots, err := s.engine.FindSlots(ctx, availability.Query{
		BusinessID:         req.GetBusinessId(),
		RangeStart:         req.GetRangeStart().AsTime(),
		RangeEnd:           req.GetRangeEnd().AsTime(),
		ServiceID:          req.GetServiceId(),
		StaffID:            req.GetStaffId(),
		GranularityMinutes: int(req.GetGranularityMinutes()),
		DurationMinutes:    int(req.GetDurationMinutes()),
	})
	if err != nil {
		return nil, err
	}
	resp := &bookingv1.FindSlotsResponse{Slots: make([]*bookingv1.Slot, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, &bookingv1.Slot{
			Start:     timestamppb.New(s.Start),
			End:       timestamppb.New(s.End),
			Available: s.Available,
		})
	}
	return resp, nil
}

func startGrpcServer(ctx context.Context, logger *slog.Logger, engine *availability.Engine, coordinator *booking.Coordinator) error {
	port, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		return err
	}
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(grpcx.UnaryServerRequestIDInterceptor()),
	)
	bookingv1.RegisterBookingServiceServer(srv, &bookingServer{engine: engine, coordinator: coordinator})

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()
	return nil
}
