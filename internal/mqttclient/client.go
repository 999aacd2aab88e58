// Package mqttclient publishes lifecycle events to an MQTT broker so other
// tools (home automation, editors) can react to recordings and transcripts.
package mqttclient

import (
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/snarg/whisper-dictation/internal/events"
)

// publisher is the subset of mqtt.Client used for sending.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type Client struct {
	conn      mqtt.Client
	pub       publisher
	prefix    string
	connected atomic.Bool
	log       zerolog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

type Options struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
	Log         zerolog.Logger
}

func Connect(opts Options) (*Client, error) {
	c := &Client{
		prefix: normalizePrefix(opts.TopicPrefix),
		log:    opts.Log,
		stop:   make(chan struct{}),
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	c.conn = mqtt.NewClient(clientOpts)
	c.pub = c.conn
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Client) onConnect(_ mqtt.Client) {
	c.connected.Store(true)
	c.log.Info().Str("prefix", c.prefix).Msg("mqtt connected")
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

// Topic returns the topic an event type is published to.
func (c *Client) Topic(eventType string) string {
	return c.prefix + "/" + eventType
}

// Forward publishes every event from the bus until Close is called.
func (c *Client) Forward(bus *events.Bus) {
	ch, cancel := bus.Subscribe(events.Filter{})
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		for {
			select {
			case <-c.stop:
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				c.publish(e)
			}
		}
	}()
}

func (c *Client) publish(e events.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	topic := c.Topic(e.Type)
	token := c.pub.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		c.log.Warn().Str("topic", topic).Msg("mqtt publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		c.log.Warn().Err(err).Str("topic", topic).Msg("mqtt publish failed")
	}
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) Close() {
	close(c.stop)
	c.wg.Wait()
	if c.conn != nil {
		c.log.Info().Msg("disconnecting mqtt client")
		c.conn.Disconnect(1000)
	}
}

func normalizePrefix(raw string) string {
	p := strings.Trim(strings.TrimSpace(raw), "/")
	if p == "" {
		return "whisper-dictation"
	}
	return p
}
