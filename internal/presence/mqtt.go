package presence

import (
	"context"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MQTTOptions configures an MQTT occupancy sensor.
type MQTTOptions struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	Topic       string
	QoS         byte
	Initial     bool
	ExpireAfter time.Duration
}

// MQTTSensor follows an occupancy topic on an MQTT broker.
type MQTTSensor struct {
	client pahomqtt.Client
	opts   MQTTOptions
	state  *Switch
}

// NewMQTTSensor creates a sensor. The connection is opened by Start.
func NewMQTTSensor(opts MQTTOptions) *MQTTSensor {
	if opts.ClientID == "" {
		opts.ClientID = "daylightd-" + uuid.NewString()[:8]
	}

	s := &MQTTSensor{
		opts:  opts,
		state: NewSwitch(opts.Initial, opts.ExpireAfter),
	}

	co := pahomqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		co.SetPassword(opts.Password)
	}
	co.SetCleanSession(true)
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(5 * time.Second)
	co.SetMaxReconnectInterval(30 * time.Second)

	// Subscriptions are dropped with a clean session, so resubscribe on every connect.
	co.OnConnect = func(c pahomqtt.Client) {
		log.Info().Str("broker", opts.Broker).Msg("Connected to MQTT broker")
		if token := c.Subscribe(opts.Topic, opts.QoS, s.handleMessage); token.Wait() && token.Error() != nil {
			log.Error().Err(token.Error()).Str("topic", opts.Topic).Msg("Failed to subscribe to presence topic")
		}
	}
	co.OnConnectionLost = func(c pahomqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	}

	s.client = pahomqtt.NewClient(co)
	return s
}

// Start connects to the broker, waiting until connected or ctx is done.
func (s *MQTTSensor) Start(ctx context.Context) error {
	log.Info().
		Str("broker", s.opts.Broker).
		Str("topic", s.opts.Topic).
		Msg("Connecting to MQTT broker")

	token := s.client.Connect()
	select {
	case <-token.Done():
		if token.Error() != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("connection timeout: %w", ctx.Err())
	}
}

// Stop disconnects from the broker.
func (s *MQTTSensor) Stop() {
	s.client.Disconnect(250)
}

// Present implements control.Presence.
func (s *MQTTSensor) Present(ctx context.Context) bool {
	return s.state.Present(ctx)
}

func (s *MQTTSensor) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	present, err := ParsePayload(msg.Payload())
	if err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic()).Msg("Ignoring presence message")
		return
	}
	s.state.Set(present)
	log.Debug().Str("topic", msg.Topic()).Bool("present", present).Msg("Presence updated")
}
