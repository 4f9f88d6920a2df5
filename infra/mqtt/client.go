package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/negsched/infra/logger"
)

// ErrAckTimeout is returned when the negotiation workflow does not confirm a
// published result in time.
var ErrAckTimeout = errors.New("ack timeout")

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	// Topic is the prefix results are published under; the request ID is
	// appended as the last level.
	Topic string `json:"topic"`
	// AckTopic carries receipts from the negotiation workflow. Empty
	// disables acknowledgment tracking.
	AckTopic   string      `json:"ack_topic"`
	UseTLS     bool        `json:"use_tls"`
	ClientCert string      `json:"client_cert"`
	ClientKey  string      `json:"client_key"`
	CABundle   string      `json:"ca_bundle"`
	AuthMethod string      `json:"auth_method"`
	QoS        byte        `json:"qos"`
	AckQoS     byte        `json:"ack_qos"`
	Retain     bool        `json:"retain"`
	LWTTopic   string      `json:"lwt_topic"`
	LWTPayload string      `json:"lwt_payload"`
	LWTQoS     byte        `json:"lwt_qos"`
	LWTRetain  bool        `json:"lwt_retain"`
	MaxRetries int         `json:"max_retries"`
	BackoffMS  int         `json:"backoff_ms"`
	TLSConfig  *tls.Config `json:"-"`
}

// SetDefaults fills unset fields with sensible values.
func (c *Config) SetDefaults() {
	if c.Topic == "" {
		c.Topic = "negsched/results"
	}
	if c.ClientID == "" {
		c.ClientID = "negsched-" + uuid.NewString()[:8]
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

// Validate checks the fields required to connect.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt: broker is required")
	}
	if c.QoS > 2 || c.AckQoS > 2 || c.LWTQoS > 2 {
		return fmt.Errorf("mqtt: qos must be 0, 1 or 2")
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Envelope is the message published for one planner result.
type Envelope struct {
	PublishID   string    `json:"publish_id"`
	RequestID   string    `json:"request_id"`
	PublishedAt time.Time `json:"published_at"`
	Result      any       `json:"result"`
}

// PahoClient implements Publisher using Eclipse Paho.
type PahoClient struct {
	cli      pahoClient
	topic    string
	ackTopic string
	qos      byte
	ackQoS   byte
	retain   bool

	mu         sync.Mutex
	ackChans   map[string]chan struct{}
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker and subscribes to the ACK topic
// when one is configured.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	logger := logger.New("mqtt_publisher")
	pc := &PahoClient{
		topic:      strings.TrimSuffix(cfg.Topic, "/"),
		ackTopic:   cfg.AckTopic,
		qos:        cfg.QoS,
		ackQoS:     cfg.AckQoS,
		retain:     cfg.Retain,
		ackChans:   make(map[string]chan struct{}),
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}

	opts.OnConnect = func(c paho.Client) {
		logger.Infof("MQTT connected")
		if pc.ackTopic == "" {
			return
		}
		if token := c.Subscribe(pc.ackTopic, pc.ackQoS, pc.onAck); token.Wait() && token.Error() != nil {
			logger.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		logger.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

func (p *PahoClient) onAck(_ paho.Client, msg paho.Message) {
	var m struct {
		PublishID string `json:"publish_id"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.logger.Errorf("failed to decode ack: %v", err)
		return
	}
	p.mu.Lock()
	ch, ok := p.ackChans[m.PublishID]
	if ok {
		select {
		case ch <- struct{}{}:
		default:
		}
		p.logger.Infof("received ack %s", m.PublishID)
	}
	p.mu.Unlock()
}

// PublishResult publishes result under <topic>/<requestID> and returns the
// publish identifier used for acknowledgment tracking. Failed publishes are
// retried with exponential backoff until ctx is done.
func (p *PahoClient) PublishResult(ctx context.Context, requestID string, result any) (string, error) {
	env := Envelope{
		PublishID:   uuid.NewString(),
		RequestID:   requestID,
		PublishedAt: time.Now().UTC(),
		Result:      result,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode result %s: %w", requestID, err)
	}

	topic := p.topic + "/" + requestID
	if p.ackTopic != "" {
		// register before publishing so a fast receipt is not lost
		p.mu.Lock()
		p.ackChans[env.PublishID] = make(chan struct{}, 1)
		p.mu.Unlock()
	}
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, p.qos, p.retain, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Infof("published result %s to %s", env.PublishID, topic)
			break
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt == p.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			publishErr = errors.Join(publishErr, ctx.Err())
			attempt = p.maxRetries
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
		}
	}
	if publishErr != nil {
		p.forget(env.PublishID)
		return "", fmt.Errorf("publish result %s: %w", requestID, publishErr)
	}
	return env.PublishID, nil
}

// WaitForAck blocks until the negotiation workflow confirms the publish or
// the timeout expires.
func (p *PahoClient) WaitForAck(publishID string, timeout time.Duration) (bool, error) {
	p.mu.Lock()
	ch := p.ackChans[publishID]
	p.mu.Unlock()
	if ch == nil {
		return false, fmt.Errorf("unknown publish %s", publishID)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	defer p.forget(publishID)
	select {
	case <-ch:
		return true, nil
	case <-timer.C:
		return false, fmt.Errorf("publish %s: %w", publishID, ErrAckTimeout)
	}
}

func (p *PahoClient) forget(publishID string) {
	p.mu.Lock()
	delete(p.ackChans, publishID)
	p.mu.Unlock()
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
