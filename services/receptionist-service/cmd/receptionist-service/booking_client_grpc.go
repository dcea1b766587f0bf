//go:build protogen

package main

import (
	"context"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/TonyIlliano/Smallbizagent1-sub000/libs/config"
	"github.com/TonyIlliano/Smallbizagent1-sub000/libs/grpcx"
	bookingv1 "github.com/TonyIlliano/Smallbizagent1-sub000/protos/gen/booking/v1"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/receptionist-service/internal/bookingapi"
)

// grpcBookingClient serves the availability reads over gRPC; booking
// creation stays on the booking service's HTTP endpoint, which carries the
// conflict-with-alternatives contract.
type grpcBookingClient struct {
	*bookingapi.HTTPClient
	grpc bookingv1.BookingServiceClient
}

func newBookingClient() bookingapi.Client {
	httpClient := bookingapi.NewHTTPClient(config.String("BOOKING_SERVICE_URL", "http://localhost:8083"), nil)

	addr := config.String("BOOKING_SERVICE_GRPC_ADDR", "localhost:9093")
	conn, err := grpcx.Dial(context.Background(), addr, grpcx.DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		// The HTTP transport covers everything the gRPC one does.
		return httpClient
	}
	return &grpcBookingClient{
		HTTPClient: httpClient,
		grpc:       bookingv1.NewBookingServiceClient(conn),
	}
}

func (c *grpcBookingClient) IsTimeSlotAvailable(ctx context.Context, businessID string, start, end time.Time, staffID string) (bool, error) {
	resp, err := c.grpc.CheckAvailability(ctx, &bookingv1.CheckAvailabilityRequest{
		BusinessId: businessID,
		Start:      timestamppb.New(start),
		End:        timestamppb.New(end),
		StaffId:    staffID,
	})
	if err != nil {
		return false, err
	}
	return resp.GetAvailable(), nil
}

func (c *grpcBookingClient) FindSlots(ctx context.Context, q bookingapi.SlotQuery) ([]bookingapi.Slot, error) {
	resp, err := c.grpc.FindSlots(ctx, &bookingv1.FindSlotsRequest{
		BusinessId:      q.BusinessID,
		RangeStart:      timestamppb.New(q.RangeStart),
		RangeEnd:        timestamppb.New(q.RangeEnd),
		ServiceId:       q.ServiceID,
		StaffId:         q.StaffID,
		DurationMinutes: int32(q.DurationMinutes),
	})
	if err != nil {
		return nil, err
	}
	slots := make([]bookingapi.Slot, 0, len(resp.GetSlots()))
	for _, s := range resp.GetSlots() {
		slots = append(slots, bookingapi.Slot{
			Start:     s.GetStart().AsTime(),
			End:       s.GetEnd().AsTime(),
			Available: s.GetAvailable(),
		})
	}
	return slots, nil
}
