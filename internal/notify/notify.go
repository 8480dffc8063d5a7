// Package notify publishes committed alerts to external channels.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"idsguard/internal/config"
	"idsguard/internal/model"
)

// Publisher delivers alerts that are already committed to the store.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, alerts []model.Alert) error
	Close() error
}

// Multi fans alerts out to every publisher. All publishers are attempted;
// their failures are joined.
type Multi []Publisher

func (m Multi) Name() string { return "multi" }

func (m Multi) Publish(ctx context.Context, alerts []model.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, alerts); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// FromConfig builds the enabled publishers. It returns nil when none are
// enabled.
func FromConfig(cfg config.NotifyConfig, logger *slog.Logger) (Publisher, error) {
	var out Multi
	if cfg.Redis.Enabled {
		p, err := NewRedis(cfg.Redis)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
		if logger != nil {
			logger.Info("redis alert publishing enabled", "channel", cfg.Redis.Channel)
		}
	}
	if cfg.Kafka.Enabled {
		out = append(out, NewKafka(cfg.Kafka))
		if logger != nil {
			logger.Info("kafka alert publishing enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func encode(a model.Alert) ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode alert %s: %w", a.ID, err)
	}
	return data, nil
}
