package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/markerd/internal/config"
	"github.com/dokzlo13/markerd/internal/eventbus"
	"github.com/dokzlo13/markerd/internal/mqtt"
)

// MQTTService connects to the broker, feeds tag messages into presence and
// mirrors state and dispatch events onto topics.
type MQTTService struct {
	Client *mqtt.Client
	Bridge *mqtt.Bridge
	Topics mqtt.Topics
}

// NewMQTTService connects to the broker and subscribes to the tag topic.
func NewMQTTService(cfg *config.Config, presence mqtt.Presenter, bus *eventbus.Bus) (*MQTTService, error) {
	topics := mqtt.Topics{Prefix: cfg.MQTT.TopicPrefix}

	client, err := mqtt.Connect(mqtt.Options{
		Broker:         cfg.MQTT.Broker,
		ClientID:       cfg.MQTT.ClientID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		QoS:            byte(cfg.MQTT.QoS),
		Topics:         topics,
		ReconnectDelay: cfg.MQTT.ReconnectDelay.Duration(),
		MaxReconnect:   cfg.MQTT.MaxReconnect.Duration(),
	})
	if err != nil {
		return nil, err
	}

	if err := client.Subscribe(topics.Tag(), mqtt.TagHandler(presence)); err != nil {
		client.Close()
		return nil, err
	}

	bridge := mqtt.NewBridge(client, topics)
	bridge.Register(bus)

	log.Info().Str("broker", cfg.MQTT.Broker).Str("tag_topic", topics.Tag()).Msg("MQTT bridge ready")

	return &MQTTService{Client: client, Bridge: bridge, Topics: topics}, nil
}

// Close publishes the offline status and disconnects.
func (s *MQTTService) Close() {
	if s.Client != nil {
		if err := s.Client.Close(); err != nil {
			log.Warn().Err(err).Msg("MQTT close error")
		}
	}
}
