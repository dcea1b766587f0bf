// Package triage classifies inbound caller text into an intent and routes it
// to an action. Evaluation is stateless per call turn.
package triage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/TonyIlliano/Smallbizagent1-sub000/services/receptionist-service/internal/bookingapi"
)

type Channel string

const (
	ChannelVoice Channel = "voice"
	ChannelSMS   Channel = "sms"
	ChannelChat  Channel = "chat"
)

// CallRequest is one inbound turn. Every intake channel maps onto this
// struct before triage sees it.
type CallRequest struct {
	BusinessID string
	CallerID   string
	Channel    Channel
	Text       string
	ReceivedAt time.Time
}

type Intent string

const (
	IntentEmergency   Intent = "emergency"
	IntentAppointment Intent = "appointment"
	IntentInquiry     Intent = "inquiry"
	IntentStatus      Intent = "status"
	IntentComplaint   Intent = "complaint"
	IntentPayment     Intent = "payment"
	IntentLocation    Intent = "location"
	IntentHours       Intent = "hours"
	IntentServices    Intent = "services"
	IntentUnknown     Intent = "unknown"
)

type Action string

const (
	ActionTransferEmergency    Action = "transfer_emergency"
	ActionScheduleAppointment  Action = "schedule_appointment"
	ActionTakeVoicemail        Action = "take_voicemail"
	ActionProvideInfo          Action = "provide_info"
	ActionCheckStatus          Action = "check_status"
	ActionTransferToManager    Action = "transfer_to_manager"
	ActionPaymentOptions       Action = "payment_options"
	ActionProvideLocation      Action = "provide_location"
	ActionProvideHours         Action = "provide_hours"
	ActionListServices         Action = "list_services"
	ActionContinueConversation Action = "continue_conversation"
)

type CallResult struct {
	Action          Action
	Response        string
	Intent          Intent
	Confidence      float64
	IsEmergency     bool
	IsBusinessHours bool
}

// BusinessConfig is the per-business triage configuration.
type BusinessConfig struct {
	EmergencyKeywords []string
	TransferNumber    string
	VoicemailEnabled  bool
	Greeting          string
}

// DefaultEmergencyKeywords applies when a business has not configured its
// own list.
var DefaultEmergencyKeywords = []string{
	"emergency", "urgent", "flooding", "burst pipe", "gas leak",
	"no heat", "no power", "sparking", "fire",
}

// intentCategories is evaluated in order; the first category with any match
// wins.
var intentCategories = []struct {
	intent   Intent
	keywords []string
}{
	{IntentAppointment, []string{"appointment", "book", "schedule", "reschedule", "availability", "available"}},
	{IntentInquiry, []string{"question", "how much", "price", "cost", "quote", "estimate"}},
	{IntentStatus, []string{"status", "update on", "ready yet", "progress", "finished"}},
	{IntentComplaint, []string{"complaint", "complain", "unhappy", "terrible", "refund", "manager"}},
	{IntentPayment, []string{"pay", "payment", "invoice", "bill", "charge", "balance"}},
	{IntentLocation, []string{"location", "address", "where are you", "directions"}},
	{IntentHours, []string{"hours", "open today", "what time do you", "when do you close"}},
	{IntentServices, []string{"services", "what do you do", "do you offer", "do you fix"}},
}

const (
	emergencyBaseConfidence = 0.93
	emergencyStepConfidence = 0.02
	emergencyMaxConfidence  = 0.99

	intentBaseConfidence = 0.7
	intentStepConfidence = 0.1
	intentMaxConfidence  = 0.95
)

// ConfigSource loads the per-business triage configuration.
type ConfigSource interface {
	Config(ctx context.Context, businessID string) (BusinessConfig, error)
}

// HoursSource answers whether the business is open at a given instant.
type HoursSource interface {
	IsOpen(ctx context.Context, businessID string, at time.Time) (bool, error)
}

type Engine struct {
	configs ConfigSource
	hours   HoursSource
	booking bookingapi.Client
	logger  *slog.Logger
	now     func() time.Time
}

func NewEngine(configs ConfigSource, hours HoursSource, booking bookingapi.Client, logger *slog.Logger) *Engine {
	return &Engine{
		configs: configs,
		hours:   hours,
		booking: booking,
		logger:  logger,
		now:     time.Now,
	}
}

// ProcessCall classifies one turn of caller text and selects the action to
// take. An emergency keyword match overrides every other signal.
func (e *Engine) ProcessCall(ctx context.Context, req CallRequest) (CallResult, error) {
	cfg, err := e.configs.Config(ctx, req.BusinessID)
	if err != nil {
		return CallResult{}, fmt.Errorf("load triage config: %w", err)
	}

	at := req.ReceivedAt
	if at.IsZero() {
		at = e.now()
	}
	open, err := e.hours.IsOpen(ctx, req.BusinessID, at)
	if err != nil {
		// Hours are advisory for routing; treat a lookup failure as closed
		// rather than failing the call.
		e.logger.Warn("business hours lookup failed", "business_id", req.BusinessID, "err", err)
		open = false
	}

	keywords := cfg.EmergencyKeywords
	if len(keywords) == 0 {
		keywords = DefaultEmergencyKeywords
	}

	text := strings.ToLower(req.Text)
	if matches := countMatches(text, keywords); matches > 0 {
		result := CallResult{
			Action:          ActionTransferEmergency,
			Response:        emergencyResponse(cfg.TransferNumber),
			Intent:          IntentEmergency,
			Confidence:      emergencyConfidence(matches),
			IsEmergency:     true,
			IsBusinessHours: open,
		}
		return result, nil
	}

	intent, confidence := classifyIntent(text)
	action, response := route(intent, open, cfg)
	return CallResult{
		Action:          action,
		Response:        response,
		Intent:          intent,
		Confidence:      confidence,
		IsEmergency:     false,
		IsBusinessHours: open,
	}, nil
}

func classifyIntent(text string) (Intent, float64) {
	for _, cat := range intentCategories {
		if matches := countMatches(text, cat.keywords); matches > 0 {
			confidence := intentBaseConfidence + float64(matches-1)*intentStepConfidence
			if confidence > intentMaxConfidence {
				confidence = intentMaxConfidence
			}
			return cat.intent, confidence
		}
	}
	return IntentUnknown, 0
}

// route is the decision table keyed on (businessHours, intent). Emergencies
// are handled before we get here.
func route(intent Intent, open bool, cfg BusinessConfig) (Action, string) {
	if !open {
		switch {
		case intent == IntentAppointment:
			return ActionScheduleAppointment, "We're currently closed, but I can help you schedule an appointment."
		case cfg.VoicemailEnabled:
			return ActionTakeVoicemail, "We're currently closed. Please leave a message and we'll get back to you."
		default:
			return ActionProvideInfo, "We're currently closed. Please call back during business hours."
		}
	}

	switch intent {
	case IntentAppointment:
		return ActionScheduleAppointment, "I can help you schedule an appointment. What day works for you?"
	case IntentInquiry:
		return ActionProvideInfo, "Happy to help with that. What would you like to know?"
	case IntentStatus:
		return ActionCheckStatus, "Let me look up the status of your job."
	case IntentComplaint:
		return ActionTransferToManager, "I'm sorry to hear that. Let me transfer you to a manager."
	case IntentPayment:
		return ActionPaymentOptions, "I can go over your payment options."
	case IntentLocation:
		return ActionProvideLocation, "Here's where to find us."
	case IntentHours:
		return ActionProvideHours, "Here are our business hours."
	case IntentServices:
		return ActionListServices, "Here's what we offer."
	default:
		return ActionContinueConversation, "I'm sorry, could you tell me a bit more about what you need?"
	}
}

func emergencyConfidence(matches int) float64 {
	c := emergencyBaseConfidence + float64(matches-1)*emergencyStepConfidence
	if c > emergencyMaxConfidence {
		c = emergencyMaxConfidence
	}
	return c
}

func emergencyResponse(transferNumber string) string {
	if transferNumber == "" {
		return "This sounds like an emergency. Transferring you to our emergency line now."
	}
	return "This sounds like an emergency. Transferring you to " + transferNumber + " now."
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			n++
		}
	}
	return n
}
