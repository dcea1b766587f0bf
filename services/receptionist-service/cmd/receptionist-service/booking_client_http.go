//go:build !protogen

package main

import (
	"github.com/TonyIlliano/Smallbizagent1-sub000/libs/config"
	"github.com/TonyIlliano/Smallbizagent1-sub000/services/receptionist-service/internal/bookingapi"
)

func newBookingClient() bookingapi.Client {
	return bookingapi.NewHTTPClient(config.String("BOOKING_SERVICE_URL", "http://localhost:8083"), nil)
}
