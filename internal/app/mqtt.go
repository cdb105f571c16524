// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Publisher sends a JSON-encoded value to a topic.
type Publisher interface {
	Publish(topic string, v any) error
}

// connectMQTT connects to the broker and returns the client.
func connectMQTT(broker, clientID string, logger *zap.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect %s: %w", broker, token.Error())
	}
	logger.Info("connected to MQTT broker", zap.String("broker", broker), zap.String("client_id", clientID))
	return client, nil
}

// subscribe registers handler on topic and waits for the broker's ack.
func subscribe(client mqtt.Client, topic string, handler func(payload []byte), logger *zap.Logger) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("MQTT subscribe %s: %w", topic, token.Error())
	}
	logger.Info("subscribed to MQTT topic", zap.String("topic", topic))
	return nil
}

// mqttPublisher publishes JSON payloads at QoS 0 without retain.
type mqttPublisher struct {
	client mqtt.Client
}

func (p mqttPublisher) Publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	token := p.client.Publish(topic, 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT publish %s: %w", topic, err)
	}
	return nil
}
