// Package notify publishes a short summary to an MQTT broker each time a scan
// completes, so other tools can react to fresh inventory data.
package notify

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"

	"inventoryview/inventory"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const publishTimeout = 10 * time.Second

// Summary is the published payload.
type Summary struct {
	Character   string          `json:"character"`
	CompletedAt time.Time       `json:"completed_at"`
	Sources     []SourceSummary `json:"sources"`
}

// SourceSummary counts the items found in one source.
type SourceSummary struct {
	Source string `json:"source"`
	Items  int    `json:"items"`
}

// BuildSummary condenses the snapshots of one scan.
func BuildSummary(character string, snaps []*inventory.Snapshot, at time.Time) Summary {
	s := Summary{
		Character:   character,
		CompletedAt: at.UTC(),
		Sources:     make([]SourceSummary, 0, len(snaps)),
	}
	for _, snap := range snaps {
		s.Sources = append(s.Sources, SourceSummary{Source: snap.SourceLabel, Items: snap.Count()})
	}
	return s
}

// Options configures the MQTT publisher.
type Options struct {
	Broker   string
	Port     int
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
	Retain   bool
}

// MQTT publishes scan summaries.
type MQTT struct {
	opts   Options
	client mqtt.Client
	now    func() time.Time
}

// NewMQTT returns an unconnected publisher.
func NewMQTT(opts Options) *MQTT {
	if strings.TrimSpace(opts.ClientID) == "" {
		opts.ClientID = fmt.Sprintf("inventoryview-%d", time.Now().Unix())
	}
	if opts.QoS > 2 {
		opts.QoS = 1
	}
	return &MQTT{opts: opts, now: time.Now}
}

// Connect establishes the broker connection; paho reconnects on its own
// afterwards.
func (m *MQTT) Connect() error {
	if strings.TrimSpace(m.opts.Topic) == "" {
		return errors.New("notify: topic is empty")
	}
	opts := mqtt.NewClientOptions()
	brokerURL := fmt.Sprintf("tcp://%s:%d", m.opts.Broker, m.opts.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(m.opts.ClientID)
	if m.opts.Username != "" {
		opts.SetUsername(m.opts.Username)
		opts.SetPassword(m.opts.Password)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("Notify: connected to %s", brokerURL)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("Notify: connection lost: %v", err)
	})

	m.client = mqtt.NewClient(opts)
	log.Printf("Notify: connecting to MQTT broker at %s...", brokerURL)
	token := m.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("notify: connect to %s: %w", brokerURL, token.Error())
	}
	return nil
}

// Payload encodes the summary for one scan.
func (m *MQTT) Payload(character string, snaps []*inventory.Snapshot) ([]byte, error) {
	return json.Marshal(BuildSummary(character, snaps, m.now()))
}

// ScanComplete publishes the summary without blocking the caller. Failures
// are logged and otherwise ignored.
func (m *MQTT) ScanComplete(character string, snaps []*inventory.Snapshot) {
	payload, err := m.Payload(character, snaps)
	if err != nil {
		log.Printf("Notify: encode summary for %s: %v", character, err)
		return
	}
	if m.client == nil || !m.client.IsConnected() {
		log.Printf("Notify: not connected; summary for %s dropped", character)
		return
	}
	token := m.client.Publish(m.opts.Topic, m.opts.QoS, m.opts.Retain, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			log.Printf("Notify: publish for %s timed out", character)
			return
		}
		if err := token.Error(); err != nil {
			log.Printf("Notify: publish for %s failed: %v", character, err)
			return
		}
		log.Printf("Notify: published summary for %s to %s", character, m.opts.Topic)
	}()
}

// Stop disconnects from the broker.
func (m *MQTT) Stop() {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}
