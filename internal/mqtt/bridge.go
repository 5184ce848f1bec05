//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"home-hub/internal/home"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	Discovery   bool
}

// Bridge mirrors the room-set onto MQTT and routes command topics into the
// action dispatcher.
type Bridge struct {
	client    pahomqtt.Client
	hub       *home.Hub
	prefix    string
	discovery bool
	logger    *slog.Logger
	unsub     func()

	// Last published payload per state topic, to skip unchanged republishes.
	mu   sync.Mutex
	last map[string]string
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(hub *home.Hub, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := newBridge(hub, cfg, logger)

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("home-hub").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.onConnect()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	b.client = client
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

func newBridge(hub *home.Hub, cfg Config, logger *slog.Logger) *Bridge {
	return &Bridge{
		hub:       hub,
		prefix:    cfg.TopicPrefix,
		discovery: cfg.Discovery,
		logger:    logger.With("component", "mqtt"),
		last:      make(map[string]string),
	}
}

// Start subscribes to hub events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.hub.Events().Subscribe(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

// onConnect runs on every (re)connect: the broker may have lost retained
// state and subscriptions.
func (b *Bridge) onConnect() {
	b.publishBridgeState("online")
	b.mu.Lock()
	b.last = make(map[string]string)
	b.mu.Unlock()

	rooms, err := b.hub.Rooms()
	if err != nil {
		b.logger.Error("load rooms for publish", "err", err)
	} else {
		for _, name := range rooms.Names() {
			for kind, dev := range rooms[name] {
				if b.discovery {
					b.publishDiscovery(name, kind, dev)
				}
				b.publishState(name, dev)
			}
		}
	}
	b.subscribeCommands()
}

func (b *Bridge) handleEvent(event home.Event) {
	switch event.Type {
	case home.EventDeviceUpdated:
		data, ok := event.Data.(map[string]interface{})
		if !ok {
			return
		}
		room, _ := data["room"].(string)
		kind, _ := data["kind"].(string)
		if room == "" || kind == "" {
			return
		}
		rooms, err := b.hub.Rooms()
		if err != nil {
			b.logger.Warn("load rooms for state", "err", err)
			return
		}
		if dev, ok := rooms[room][kind]; ok {
			b.publishState(room, dev)
		}
	case home.EventSceneApplied, home.EventCycleComplete:
		// Scenes touch many devices at once and emit a single event.
		b.publishAllStates()
	case home.EventNotification:
		b.publish(b.prefix+"/notifications", mustJSON(event.Data), false)
	case home.EventDisplayMessage:
		b.publish(b.prefix+"/display", mustJSON(event.Data), false)
	case home.EventFridgeUpdated:
		b.publish(b.prefix+"/fridge", mustJSON(event.Data), true)
	}
}

func (b *Bridge) publishAllStates() {
	rooms, err := b.hub.Rooms()
	if err != nil {
		b.logger.Warn("load rooms for state", "err", err)
		return
	}
	for _, name := range rooms.Names() {
		for _, dev := range rooms[name] {
			b.publishState(name, dev)
		}
	}
}

func (b *Bridge) publishState(room string, dev home.Device) {
	topic := stateTopic(b.prefix, room, dev.Kind())
	payload := mustJSON(statePayload(dev))

	b.mu.Lock()
	if b.last[topic] == string(payload) {
		b.mu.Unlock()
		return
	}
	b.last[topic] = string(payload)
	b.mu.Unlock()

	b.publish(topic, payload, true)
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.prefix+"/bridge/state", []byte(state), true)
}

func (b *Bridge) publishDiscovery(room, kind string, dev home.Device) {
	for _, msg := range buildDiscovery(b.prefix, room, kind, dev) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	b.logger.Debug("published HA discovery", "room", room, "kind", kind)
}

// subscribeCommands subscribes to <prefix>/<room>/<kind>/set for every device.
func (b *Bridge) subscribeCommands() {
	topic := b.prefix + "/+/+/set"
	b.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleCommand(msg.Topic(), msg.Payload())
	})
}

func (b *Bridge) handleCommand(topic string, payload []byte) {
	parts := strings.Split(strings.TrimPrefix(topic, b.prefix+"/"), "/")
	if len(parts) != 3 || parts[2] != "set" {
		return
	}
	segment, kind := parts[0], parts[1]

	rooms, err := b.hub.Rooms()
	if err != nil {
		b.logger.Warn("load rooms for command", "err", err)
		return
	}
	room, ok := roomForSegment(rooms, segment)
	if !ok {
		b.logger.Warn("command for unknown room", "topic", topic)
		return
	}

	action, params, err := parseCommand(payload)
	if err != nil {
		b.logger.Warn("invalid command", "topic", topic, "err", err)
		return
	}
	if _, err := b.hub.Apply(room, kind, action, params); err != nil {
		b.logger.Warn("command failed", "room", room, "kind", kind, "action", action, "err", err)
	}
}

// command is the JSON form of a /set payload. "state" is the Home Assistant
// spelling of the action.
type command struct {
	Action string `json:"action"`
	State  string `json:"state"`
	home.Params
}

// parseCommand accepts either a JSON object or a bare action word such as
// "ON" or "lock".
func parseCommand(payload []byte) (string, home.Params, error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return "", home.Params{}, fmt.Errorf("empty payload")
	}
	if !strings.HasPrefix(text, "{") {
		return strings.ToLower(text), home.Params{}, nil
	}

	var cmd command
	if err := json.Unmarshal([]byte(text), &cmd); err != nil {
		return "", home.Params{}, fmt.Errorf("decode command: %w", err)
	}
	action := cmd.Action
	if action == "" {
		action = cmd.State
	}
	action = strings.ToLower(action)
	if action == "" && cmd.Brightness != nil {
		action = home.ActionOn
	}
	if action == "" {
		return "", home.Params{}, fmt.Errorf("command has no action")
	}
	return action, cmd.Params, nil
}

// statePayload is the document form of dev plus an uppercase "state" field
// in the form Home Assistant entities expect.
func statePayload(dev home.Device) map[string]any {
	m := home.Fields(dev)
	m["state"] = haState(dev)
	return m
}

func haState(dev home.Device) string {
	switch dev.State() {
	case home.StatusLocked:
		return "LOCKED"
	case home.StatusUnlocked:
		return "UNLOCKED"
	case home.StatusOn, home.StatusAuto, home.StatusRunning, home.StatusCleaning:
		return "ON"
	default:
		return "OFF"
	}
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
