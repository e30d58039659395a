package mq

import (
	"context"
	"errors"
	"io"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Start 启动入站消息与确认两个消费循环
func (k *KafkaClient) Start(ctx context.Context, h Handlers) {
	d := dispatcher{h: h}
	k.consume(ctx, k.ChatReader, d.dispatchChat)
	k.consume(ctx, k.AckReader, d.dispatchAck)
}

// consume 单条记录的失败不会中断循环
func (k *KafkaClient) consume(ctx context.Context, reader *kafka.Reader, handle func(context.Context, []byte)) {
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		topic := reader.Config().Topic
		zap.L().Info("kafka consumer started", zap.String("topic", topic))
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					zap.L().Info("kafka consumer stopped", zap.String("topic", topic))
					return
				}
				zap.L().Error("kafka 读取失败", zap.String("topic", topic), zap.Error(err))
				continue
			}
			zap.L().Debug("kafka message",
				zap.String("topic", m.Topic), zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset), zap.ByteString("key", m.Key))
			safeHandle(ctx, handle, m.Value)
		}
	}()
}

func safeHandle(ctx context.Context, handle func(context.Context, []byte), value []byte) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("kafka 消息处理 panic", zap.Any("recover", r))
		}
	}()
	handle(ctx, value)
}
