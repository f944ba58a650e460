package sensors

import (
	"context"
	"encoding/json"
	"fmt"

	"hotel-sync/internal/config"
	"hotel-sync/internal/domain"
	"hotel-sync/internal/engine"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// reading 房间传感器上报
type reading struct {
	RoomID  string `json:"room_id"`
	Sensors struct {
		Temperature *float64 `json:"temperature"`
		Humidity    *float64 `json:"humidity"`
		Pressure    *float64 `json:"pressure"`
		Lights      *struct {
			Bathroom *bool `json:"bathroom"`
			Bedroom  *bool `json:"bedroom"`
			Hallway  *bool `json:"hallway"`
		} `json:"lights"`
	} `json:"sensors"`
}

// RoomPublisher pushes a committed room mutation to connected clients.
type RoomPublisher interface {
	PublishRoom(room *domain.Room)
}

// Ingestor 传感器数据接入
// Subscribes to room sensor readings over MQTT and applies them through the
// same update path commands use, so sensor changes fan out to connected
// clients like any other room mutation.
type Ingestor struct {
	client    mqtt.Client
	engine    *engine.Engine
	publisher RoomPublisher
	topic     string
	logger    *zap.Logger
}

// NewIngestor 创建传感器接入客户端
func NewIngestor(cfg config.MQTTConfig, eng *engine.Engine, publisher RoomPublisher, logger *zap.Logger) (*Ingestor, error) {
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

	client := mqtt.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &Ingestor{
		client:    client,
		engine:    eng,
		publisher: publisher,
		topic:     cfg.Topic,
		logger:    logger,
	}, nil
}

// Start 订阅传感器主题
func (i *Ingestor) Start() error {
	if token := i.client.Subscribe(i.topic, 0, func(client mqtt.Client, msg mqtt.Message) {
		if err := i.handleMessage(msg.Payload()); err != nil {
			i.logger.Warn("failed to handle sensor reading",
				zap.String("topic", msg.Topic()), zap.Error(err))
		}
	}); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", i.topic, token.Error())
	}

	i.logger.Info("sensor ingest started", zap.String("topic", i.topic))
	return nil
}

// handleMessage applies one sensor reading to its room.
func (i *Ingestor) handleMessage(payload []byte) error {
	var r reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return fmt.Errorf("malformed sensor payload: %w", err)
	}
	if r.RoomID == "" {
		return fmt.Errorf("sensor payload has no room_id")
	}

	patch := &engine.SensorsPatch{
		Temperature: r.Sensors.Temperature,
		Humidity:    r.Sensors.Humidity,
		Pressure:    r.Sensors.Pressure,
	}
	if r.Sensors.Lights != nil {
		patch.Lights = &engine.LightsPatch{
			Bathroom: r.Sensors.Lights.Bathroom,
			Bedroom:  r.Sensors.Lights.Bedroom,
			Hallway:  r.Sensors.Lights.Hallway,
		}
	}

	room, err := i.engine.UpdateRoom(context.Background(), r.RoomID, engine.RoomPatch{Sensors: patch})
	if err != nil {
		return err
	}
	if i.publisher != nil {
		i.publisher.PublishRoom(room)
	}
	return nil
}

// Stop 断开连接
func (i *Ingestor) Stop() {
	i.client.Disconnect(250)
}
