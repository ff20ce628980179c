package mqtt

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Client struct {
	cli mqtt.Client

	mu   sync.Mutex
	subs map[string]Handler
}

// ClientAPI is the broker surface the adapter uses; tests substitute a fake.
type ClientAPI interface {
	Subscribe(topic string, cb Handler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte) error
	PublishWith(topic string, payload []byte, retain bool) error
}

// Message is re-exported type for handlers
type Message = mqtt.Message

// Handler is handler signature
type Handler = mqtt.MessageHandler

// Options configure identity and the retained last will published when the connection drops.
type Options struct {
	ClientID    string
	WillTopic   string
	WillPayload []byte
}

func brokerServer(u *url.URL) (string, error) {
	switch u.Scheme {
	case "mqtt", "tcp":
		return "tcp://" + u.Host, nil
	case "ssl", "tls", "mqtts":
		return "ssl://" + u.Host, nil
	case "ws", "wss":
		return u.Scheme + "://" + u.Host + u.Path, nil
	default:
		return "", fmt.Errorf("unsupported mqtt scheme %q", u.Scheme)
	}
}

func New(brokerURL string, o Options) (*Client, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}
	server, err := brokerServer(u)
	if err != nil {
		return nil, err
	}
	c := &Client{subs: map[string]Handler{}}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(server)
	clientID := o.ClientID
	if clientID == "" {
		clientID = "govee-adapter"
	}
	opts.SetClientID(clientID + "-" + time.Now().Format("150405.000"))
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(mc mqtt.Client) {
		slog.Info("mqtt connected", "broker", u.Host)
		c.resubscribe(mc)
	}
	opts.OnConnectionLost = func(mc mqtt.Client, err error) { slog.Error("mqtt connection lost", "error", err) }
	if o.WillTopic != "" {
		opts.SetBinaryWill(o.WillTopic, o.WillPayload, 1, true)
	}
	if u.User != nil {
		pw, _ := u.User.Password()
		opts.SetUsername(u.User.Username())
		opts.SetPassword(pw)
	}
	if server[:6] == "ssl://" || u.Scheme == "wss" {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	cli := mqtt.NewClient(opts)
	if t := cli.Connect(); t.Wait() && t.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", t.Error())
	}
	c.cli = cli
	return c, nil
}

// resubscribe restores subscriptions after an automatic reconnect.
func (c *Client) resubscribe(mc mqtt.Client) {
	c.mu.Lock()
	subs := make(map[string]Handler, len(c.subs))
	for k, v := range c.subs {
		subs[k] = v
	}
	c.mu.Unlock()
	for topic, cb := range subs {
		if t := mc.Subscribe(topic, 1, cb); t.Wait() && t.Error() != nil {
			slog.Error("mqtt resubscribe failed", "topic", topic, "error", t.Error())
		}
	}
}

func (c *Client) Subscribe(topic string, cb Handler) error {
	t := c.cli.Subscribe(topic, 1, cb)
	if t.Wait() && t.Error() != nil {
		return t.Error()
	}
	c.mu.Lock()
	c.subs[topic] = cb
	c.mu.Unlock()
	slog.Info("mqtt subscribed", "topic", topic)
	return nil
}

func (c *Client) Publish(topic string, payload []byte) error {
	return c.PublishWith(topic, payload, false)
}

func (c *Client) PublishWith(topic string, payload []byte, retain bool) error {
	t := c.cli.Publish(topic, 1, retain, payload)
	if t.Wait() && t.Error() != nil {
		return t.Error()
	}
	return nil
}

func (c *Client) Unsubscribe(topic string) error {
	t := c.cli.Unsubscribe(topic)
	if t.Wait() && t.Error() != nil {
		return t.Error()
	}
	c.mu.Lock()
	delete(c.subs, topic)
	c.mu.Unlock()
	slog.Info("mqtt unsubscribed", "topic", topic)
	return nil
}

func (c *Client) Disconnect() {
	c.cli.Disconnect(250)
}
