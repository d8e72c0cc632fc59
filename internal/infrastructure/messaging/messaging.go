// Package messaging relays domain events to external brokers as JSON.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domoutbox "github.com/Zhima-Mochi/minishop-checkout/internal/domain/outbox"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	contentTypeJSON = "application/json"
	headerEventName = "event-name"
)

func encode(e domoutbox.Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.EventName(), err)
	}
	return body, nil
}

// injectTrace writes the W3C trace context of ctx into carrier.
func injectTrace(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// FanoutPublisher forwards each event to every publisher in order. All
// publishers are attempted; their errors are joined.
type FanoutPublisher struct {
	publishers []domoutbox.Publisher
}

func NewFanoutPublisher(publishers ...domoutbox.Publisher) *FanoutPublisher {
	ps := make([]domoutbox.Publisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			ps = append(ps, p)
		}
	}
	return &FanoutPublisher{publishers: ps}
}

func (f *FanoutPublisher) Publish(ctx context.Context, e domoutbox.Event) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
