package provider

import (
	"fmt"
	"strings"

	"github.com/TonyIlliano/Smallbizagent1-sub000/services/calendar-service/internal/model"
)

func eventSummary(appt model.Appointment) string {
	if appt.ServiceName != "" {
		return appt.ServiceName
	}
	return "Appointment"
}

func eventDescription(appt model.Appointment) string {
	var parts []string
	if appt.CustomerID != "" {
		parts = append(parts, fmt.Sprintf("Customer: %s", appt.CustomerID))
	}
	if appt.StaffID != "" {
		parts = append(parts, fmt.Sprintf("Staff: %s", appt.StaffID))
	}
	if appt.Notes != "" {
		parts = append(parts, appt.Notes)
	}
	return strings.Join(parts, "\n")
}
