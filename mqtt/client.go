package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/robertof/go-ble2mqtt/collector"
	"github.com/robertof/go-ble2mqtt/device"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseTopic = "ble2mqtt"

	availabilityOnline  = "online"
	availabilityOffline = "offline"

	publishTimeout = 5 * time.Second
)

var ErrStopped = errors.New("mqtt client stopped")

type Options struct {
	// Broker URL, e.g. tcp://localhost:1883 or ssl://broker:8883.
	Broker   string
	ClientID string
	Username string
	Password string

	// Readings are published to <BaseTopic>/<mac without colons>, availability to
	// <BaseTopic>/status.
	BaseTopic string
	QoS       byte
	Retain    bool

	// Called after every (re-)connection, once the birth message is out.
	OnConnect func(c *Client)
}

// Client publishes readings to an MQTT broker. The underlying paho client reconnects on its own;
// availability is tracked through a retained birth message and a last will.
type Client struct {
	client    paho.Client
	opts      Options
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewClient(opts Options) (*Client, error) {
	return newClient(opts, paho.NewClient)
}

func newClient(opts Options, factory func(*paho.ClientOptions) paho.Client) (*Client, error) {
	if opts.Broker == "" {
		return nil, errors.New("no mqtt broker configured")
	}

	if _, err := url.Parse(opts.Broker); err != nil {
		return nil, fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	if opts.BaseTopic == "" {
		opts.BaseTopic = DefaultBaseTopic
	}

	c := &Client{
		opts:   opts,
		stopCh: make(chan struct{}),
	}

	po := paho.NewClientOptions()
	po.AddBroker(opts.Broker)
	po.SetClientID(opts.ClientID)
	po.SetUsername(opts.Username)
	po.SetPassword(opts.Password)
	po.SetCleanSession(true)

	po.SetAutoReconnect(true)
	po.SetConnectRetry(true)
	po.SetConnectRetryInterval(5 * time.Second)
	po.SetMaxReconnectInterval(60 * time.Second)

	po.SetKeepAlive(30 * time.Second)
	po.SetPingTimeout(10 * time.Second)

	po.SetWill(c.AvailabilityTopic(), availabilityOffline, 1, true)

	po.SetOnConnectHandler(func(_ paho.Client) {
		c.setConnected(true)
		log.Info().Str("Broker", opts.Broker).Msg("mqtt: connected")

		// publishing from within the handler would block paho's connection routine.
		go c.onConnect()
	})

	po.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.setConnected(false)
		log.Warn().Err(err).Str("Broker", opts.Broker).Msg("mqtt: connection lost")
	})

	po.SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
		log.Debug().Str("Broker", opts.Broker).Msg("mqtt: reconnecting")
	})

	c.client = factory(po)

	return c, nil
}

func (c *Client) onConnect() {
	if err := c.publishRaw(c.AvailabilityTopic(), 1, true, []byte(availabilityOnline)); err != nil {
		log.Warn().Err(err).Msg("mqtt: failed to publish availability")
	}

	if c.opts.OnConnect != nil {
		c.opts.OnConnect(c)
	}
}

// Connect waits for the initial connection, respecting ctx and Disconnect().
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return ErrStopped
	default:
	}

	if c.IsConnected() {
		return nil
	}

	// with ConnectRetry, paho keeps retrying internally until the token completes.
	token := c.client.Connect()

	const poll = 200 * time.Millisecond

	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}

			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return ErrStopped
		default:
		}
	}
}

func (c *Client) StateTopic(mac string) string {
	return c.opts.BaseTopic + "/" + device.ObjectID(mac)
}

func (c *Client) AvailabilityTopic() string {
	return c.opts.BaseTopic + "/status"
}

// Publish sends r as JSON without waiting for the broker acknowledgement.
func (c *Client) Publish(topic string, r device.Reading) collector.PublishToken {
	data, err := json.Marshal(r)

	if err != nil {
		return failedToken{fmt.Errorf("marshal reading: %w", err)}
	}

	log.Trace().Str("Topic", topic).Bytes("Payload", data).Msg("mqtt: publishing reading")

	return c.client.Publish(topic, c.opts.QoS, c.opts.Retain, data)
}

// PublishJSON sends v as a JSON document and waits for the outcome.
func (c *Client) PublishJSON(topic string, v any, retain bool) error {
	data, err := json.Marshal(v)

	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", topic, err)
	}

	return c.publishRaw(topic, 1, retain, data)
}

func (c *Client) publishRaw(topic string, qos byte, retain bool, data []byte) error {
	token := c.client.Publish(topic, qos, retain, data)

	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()

	return connected && c.client.IsConnected()
}

// Disconnect marks the bridge offline and closes the connection. Safe to call multiple times.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() {
		close(c.stopCh)

		if c.IsConnected() {
			if err := c.publishRaw(c.AvailabilityTopic(), 1, true, []byte(availabilityOffline)); err != nil {
				log.Warn().Err(err).Msg("mqtt: failed to publish availability")
			}
		}

		c.client.Disconnect(250)
		c.setConnected(false)

		log.Info().Msg("mqtt: disconnected")
	})
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

type failedToken struct {
	err error
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func (t failedToken) Done() <-chan struct{} { return closedCh }
func (t failedToken) Error() error          { return t.err }
