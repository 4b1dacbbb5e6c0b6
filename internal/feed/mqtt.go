package feed

import (
	"context"
	"fmt"

	mqttcommon "wisefido-floor/internal/common/mqtt"

	"go.uber.org/zap"
)

// Subscriber MQTT 订阅能力（mqttcommon.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// MQTTSource 通过 MQTT 主题接收同样格式的数据帧
type MQTTSource struct {
	client     Subscriber
	topic      string
	qos        byte
	dispatcher Dispatcher
	logger     *zap.Logger
}

// NewMQTTSource 创建 MQTT 数据源
func NewMQTTSource(client Subscriber, topic string, qos byte, dispatcher Dispatcher, logger *zap.Logger) *MQTTSource {
	return &MQTTSource{
		client:     client,
		topic:      topic,
		qos:        qos,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Run 订阅主题并阻塞到 ctx 取消
func (s *MQTTSource) Run(ctx context.Context) error {
	handler := func(topic string, payload []byte) error {
		return Dispatch(ctx, s.dispatcher, payload)
	}
	if err := s.client.Subscribe(s.topic, s.qos, handler); err != nil {
		return fmt.Errorf("failed to subscribe feed topic: %w", err)
	}

	s.logger.Info("Feed subscribed", zap.String("topic", s.topic))

	<-ctx.Done()

	if err := s.client.Unsubscribe(s.topic); err != nil {
		s.logger.Warn("Failed to unsubscribe feed topic", zap.String("topic", s.topic), zap.Error(err))
	}
	return nil
}
