package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig MQTT 连接配置
type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	QoS         byte
	TopicPrefix string
}

// MQTTTransport 发布所需的最小接口（便于测试替换）
type MQTTTransport interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTClient paho 客户端封装
type MQTTClient struct {
	client mqtt.Client
}

// NewMQTTClient 连接 broker，自动重连
func NewMQTTClient(cfg MQTTConfig) (*MQTTClient, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return &MQTTClient{client: client}, nil
}

// Publish 发布消息并等待确认
func (c *MQTTClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Disconnect 断开连接（250ms 等待未完成的发送）
func (c *MQTTClient) Disconnect() {
	c.client.Disconnect(250)
}

// MQTTPublisher 发布到 <prefix>/<entity_type>/<event_type>
type MQTTPublisher struct {
	transport MQTTTransport
	prefix    string
	qos       byte
}

func NewMQTTPublisher(transport MQTTTransport, prefix string, qos byte) *MQTTPublisher {
	if prefix == "" {
		prefix = "facility"
	}
	return &MQTTPublisher{transport: transport, prefix: strings.TrimSuffix(prefix, "/"), qos: qos}
}

// Topic 事件对应的主题
func (p *MQTTPublisher) Topic(e Event) string {
	// "permit.stage_decided" -> "stage_decided"
	name := e.Type
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return p.prefix + "/" + e.EntityType + "/" + name
}

func (p *MQTTPublisher) Publish(_ context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return p.transport.Publish(p.Topic(e), p.qos, false, payload)
}
