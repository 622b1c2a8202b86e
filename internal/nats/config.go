package nats

import (
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subscriber creates durable consumers. Implemented by services.EventBus.
type Subscriber interface {
	SubscribeEvent(subject, durableName string, handler nats.MsgHandler) (*nats.Subscription, error)
}

// DurableName derives a consumer name from a subject, e.g.
// files.uploaded -> ecu-file-service-files-uploaded.
func DurableName(subject string) string {
	return "ecu-file-service-" + strings.ReplaceAll(subject, ".", "-")
}

// SubscribeAll loads all routes once during startup.
func SubscribeAll(sub Subscriber, routes map[string]nats.MsgHandler, logger *zap.Logger) ([]*nats.Subscription, error) {
	subs := make([]*nats.Subscription, 0, len(routes))
	for subject, handler := range routes {
		s, err := sub.SubscribeEvent(subject, DurableName(subject), handler)
		if err != nil {
			for _, done := range subs {
				_ = done.Unsubscribe()
			}
			return nil, err
		}
		subs = append(subs, s)
		logger.Info("subscribed", zap.String("subject", subject))
	}
	return subs, nil
}
