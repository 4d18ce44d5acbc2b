package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/daylightd/internal/config"
	"github.com/dokzlo13/daylightd/internal/control"
	"github.com/dokzlo13/daylightd/internal/presence"
)

// PresenceService owns the configured presence sensor.
type PresenceService struct {
	cfg *config.Config

	Presence control.Presence
	mqtt     *presence.MQTTSensor
	webhook  *presence.WebhookServer
}

// NewPresenceService builds the sensor named by presence.source.
func NewPresenceService(cfg *config.Config) *PresenceService {
	s := &PresenceService{cfg: cfg}
	pc := cfg.Presence

	switch pc.Source {
	case config.PresenceMQTT:
		s.mqtt = presence.NewMQTTSensor(presence.MQTTOptions{
			Broker:      pc.MQTT.Broker,
			ClientID:    pc.MQTT.ClientID,
			Username:    pc.MQTT.Username,
			Password:    pc.MQTT.Password,
			Topic:       pc.MQTT.Topic,
			QoS:         byte(pc.MQTT.QoS),
			Initial:     pc.Initial(),
			ExpireAfter: pc.MQTT.ExpireAfter.Duration(),
		})
		s.Presence = s.mqtt
	case config.PresenceWebhook:
		s.webhook = presence.NewWebhookServer(pc.Webhook.Host, pc.Webhook.Port, pc.Initial(), pc.Webhook.ExpireAfter.Duration())
		s.Presence = s.webhook
	default:
		s.Presence = presence.Static(pc.Initial())
	}
	return s
}

// Start connects the sensor to its source. The webhook port is bound before
// Start returns; onFatalError receives errors from the server afterwards.
func (s *PresenceService) Start(ctx context.Context, onFatalError func(error)) error {
	log.Info().Str("source", s.cfg.Presence.Source).Msg("Starting presence sensor")

	switch {
	case s.mqtt != nil:
		return s.mqtt.Start(ctx)
	case s.webhook != nil:
		ln, err := s.webhook.Listen()
		if err != nil {
			return err
		}
		go func() {
			if err := s.webhook.Serve(ctx, ln, s.cfg.ShutdownTimeout.Duration()); err != nil {
				onFatalError(fmt.Errorf("presence webhook: %w", err))
			}
		}()
	}
	return nil
}

// Stop disconnects the sensor.
func (s *PresenceService) Stop() {
	if s.mqtt != nil {
		s.mqtt.Stop()
	}
}
