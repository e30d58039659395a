package mq

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"kama_call_ring/internal/config"
	"kama_call_ring/internal/service/command"
	"kama_call_ring/internal/service/sender"
	"kama_call_ring/pkg/errorx"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaClient kafka 模式的消息通道
// ChatWriter/ChatReader：入站聊天消息；CommandWriter：出站命令；AckReader：服务端确认
type KafkaClient struct {
	conf config.KafkaConfig

	ChatWriter    *kafka.Writer
	CommandWriter *kafka.Writer
	ChatReader    *kafka.Reader
	AckReader     *kafka.Reader

	wg sync.WaitGroup
}

// NewKafkaClient 初始化读写器，不会立即连接
func NewKafkaClient(conf config.KafkaConfig) *KafkaClient {
	timeout := conf.Timeout * time.Second
	return &KafkaClient{
		conf:          conf,
		ChatWriter:    newWriter(conf.HostPort, conf.ChatTopic, timeout),
		CommandWriter: newWriter(conf.HostPort, conf.CommandTopic, timeout),
		ChatReader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        []string{conf.HostPort},
			Topic:          conf.ChatTopic,
			CommitInterval: timeout,
			GroupID:        conf.GroupID,
			StartOffset:    kafka.LastOffset,
		}),
		AckReader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        []string{conf.HostPort},
			Topic:          conf.AckTopic,
			CommitInterval: timeout,
			GroupID:        conf.GroupID + "_ack",
			StartOffset:    kafka.LastOffset,
		}),
	}
}

// newWriter 按会话 ID 分区，同一会话内保持顺序
func newWriter(hostPort, topic string, timeout time.Duration) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(hostPort),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           timeout,
		RequiredAcks:           kafka.RequireNone,
		AllowAutoTopicCreation: false,
	}
}

// CreateTopics 创建三个主题，已存在时忽略
func (k *KafkaClient) CreateTopics() error {
	conn, err := kafka.Dial("tcp", k.conf.HostPort)
	if err != nil {
		return errorx.Wrap(err, errorx.CodeMQError, "dial kafka")
	}
	defer conn.Close()

	// 主题需要在 controller 节点上创建
	controller, err := conn.Controller()
	if err != nil {
		return errorx.Wrap(err, errorx.CodeMQError, "get kafka controller")
	}
	ctrlConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return errorx.Wrap(err, errorx.CodeMQError, "dial kafka controller")
	}
	defer ctrlConn.Close()

	var topicConfigs []kafka.TopicConfig
	for _, topic := range []string{k.conf.ChatTopic, k.conf.CommandTopic, k.conf.AckTopic} {
		topicConfigs = append(topicConfigs, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     k.conf.Partition,
			ReplicationFactor: 1,
		})
	}
	if err := ctrlConn.CreateTopics(topicConfigs...); err != nil {
		return errorx.Wrap(err, errorx.CodeMQError, "create kafka topics")
	}
	return nil
}

// Send 实现 sender.CommandChannel
func (k *KafkaClient) Send(ctx context.Context, msg sender.OutboundMessage) error {
	return k.writeCommand(ctx, CommandEnvelope{Op: OpSend, Message: &msg, ChatID: msg.ChatID})
}

// Delete 实现 sender.CommandChannel
func (k *KafkaClient) Delete(ctx context.Context, chatID, serverID int64) error {
	return k.writeCommand(ctx, CommandEnvelope{Op: OpDelete, ChatID: chatID, ServerID: serverID})
}

func (k *KafkaClient) writeCommand(ctx context.Context, env CommandEnvelope) error {
	value, err := marshal(env)
	if err != nil {
		return err
	}
	if err := k.CommandWriter.WriteMessages(ctx, kafka.Message{Key: chatKey(env.ChatID), Value: value}); err != nil {
		return errorx.Wrapf(err, errorx.CodeMQError, "write %s to %s", env.Op, k.conf.CommandTopic)
	}
	return nil
}

// Publish 写入入站主题，由消费循环交给处理器
func (k *KafkaClient) Publish(ctx context.Context, msg *command.Message) error {
	value, err := marshal(msg)
	if err != nil {
		return err
	}
	if err := k.ChatWriter.WriteMessages(ctx, kafka.Message{Key: chatKey(msg.ChatID), Value: value}); err != nil {
		return errorx.Wrapf(err, errorx.CodeMQError, "write message to %s", k.conf.ChatTopic)
	}
	return nil
}

// Close 关闭读写器，等待消费循环退出
func (k *KafkaClient) Close() error {
	var first error
	for _, c := range []interface{ Close() error }{k.ChatReader, k.AckReader, k.ChatWriter, k.CommandWriter} {
		if err := c.Close(); err != nil {
			zap.L().Error("关闭 kafka 读写器失败", zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	k.wg.Wait()
	return first
}
