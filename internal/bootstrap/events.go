// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package bootstrap

import (
	"github.com/churnai/retention-engine/internal/config"
	"github.com/churnai/retention-engine/pkg/conversation"
	"github.com/churnai/retention-engine/pkg/eventbus"
	"github.com/sirupsen/logrus"
)

// EventPipeline is the emitter and the publishers it owns.
type EventPipeline struct {
	Emitter *eventbus.Emitter
	Kafka   *eventbus.KafkaPublisher
}

// InitEventPipeline creates the asynchronous emitter. Events always go to the
// event store; when KAFKA_BROKERS is set they are also published to Kafka.
func InitEventPipeline(cfg *config.Config, events conversation.EventStore) *EventPipeline {
	sinks := []eventbus.Sink{eventbus.NewStoreSink(events)}

	var publisher *eventbus.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		writer := eventbus.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaEventsTopic)
		publisher = eventbus.NewKafkaPublisher(writer, cfg.KafkaEventsTopic)
		sinks = append(sinks, publisher)
		logrus.Infof("publishing events to Kafka topic %s (%d brokers)", cfg.KafkaEventsTopic, len(cfg.KafkaBrokers))
	}

	emitter := eventbus.NewEmitter(eventbus.Config{QueueSize: cfg.EventQueueSize}, sinks...)
	logrus.Infof("event emitter started with %d sinks", len(sinks))

	return &EventPipeline{Emitter: emitter, Kafka: publisher}
}
