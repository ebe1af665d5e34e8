package notify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/pokemonrocks9/thinking-of-you-backend/internal/metrics"
)

// Note is the content of one outbound notification. Values are captured at
// schedule time; the dispatcher never re-reads session state.
type Note struct {
	LinkCode      string    `json:"linkCode"`
	SenderName    string    `json:"senderName"`
	RecipientName string    `json:"recipientName"`
	Message       string    `json:"message"`
	SentAt        time.Time `json:"sentAt"`
}

// Sender delivers one notification to an external channel descriptor.
type Sender interface {
	Send(ctx context.Context, channel string, note Note) error
}

// ChannelSender routes a delivery to the webhook or timeline sender based on
// the shape of the channel descriptor. All outbound calls share one circuit
// breaker so a dead endpoint stops being hammered by failsafes.
type ChannelSender struct {
	webhook  *WebhookSender
	timeline *TimelineSender
	breaker  *gobreaker.CircuitBreaker
}

// NewChannelSender creates a sender with a bounded-timeout HTTP client shared
// by both delivery paths.
func NewChannelSender(timelineAPIURL string, timeout time.Duration) *ChannelSender {
	httpClient := &http.Client{Timeout: timeout}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "outbound-notify",
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			metrics.OutboundBreakerState.Set(breakerStateValue(to))
		},
	})

	return &ChannelSender{
		webhook:  NewWebhookSender(httpClient),
		timeline: NewTimelineSender(httpClient, timelineAPIURL),
		breaker:  breaker,
	}
}

func (s *ChannelSender) Send(ctx context.Context, channel string, note Note) error {
	kind := "timeline"
	if isWebhook(channel) {
		kind = "webhook"
	}

	_, err := s.breaker.Execute(func() (any, error) {
		if kind == "webhook" {
			return nil, s.webhook.Send(ctx, channel, note)
		}
		return nil, s.timeline.Send(ctx, channel, note)
	})
	if err != nil {
		metrics.FailsafeDispatchesTotal.WithLabelValues(kind, "error").Inc()
		return err
	}
	metrics.FailsafeDispatchesTotal.WithLabelValues(kind, "ok").Inc()
	return nil
}

func isWebhook(channel string) bool {
	return strings.HasPrefix(channel, "http://") || strings.HasPrefix(channel, "https://")
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
