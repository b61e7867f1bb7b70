// Package cloud forwards diagnostics and mission events to the fleet
// backend over MQTT.
package cloud

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log/slog"
	"sync"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/tiiuae/control_interface/internal/config"
	"github.com/tiiuae/control_interface/internal/logging"
	"github.com/tiiuae/control_interface/internal/types"
)

// MQTT parameters
const (
	QoS      = 1
	Retain   = false
	Username = "unused"

	diagnosticsPeriod = time.Second
)

type cloud struct {
	cfg      config.Cloud
	deviceID string
	log      *slog.Logger
	inbox    chan types.Message
	throttle *logging.Throttle
}

func New(cfg config.Cloud, deviceID string, log *slog.Logger) types.MessageHandler {
	return &cloud{
		cfg:      cfg,
		deviceID: deviceID,
		log:      log.With("component", "cloud"),
		inbox:    make(chan types.Message, 100),
		throttle: logging.NewThrottle(diagnosticsPeriod),
	}
}

func (c *cloud) Run(ctx context.Context, wg *sync.WaitGroup, post types.PostFn) {
	go c.runMessageLoop(ctx, wg)
}

func (c *cloud) Receive(message types.Message) {
	switch message.MessageType {
	case types.MessageTypeDiagnostics, types.MessageTypeMissionEvent:
		select {
		case c.inbox <- message:
		default:
		}
	}
}

func (c *cloud) runMessageLoop(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	defer wg.Done()

	client, err := c.connect(ctx)
	if err != nil {
		c.log.Error("Cloud disabled", "err", err)
		return
	}
	defer client.Disconnect(1000)

	topic := EventTopic(c.deviceID)
	for {
		select {
		case <-ctx.Done():
			c.log.Info("Cloud shutting down")
			return
		case msg := <-c.inbox:
			if msg.MessageType == types.MessageTypeDiagnostics && !c.throttle.Allow(msg.MessageType, msg.Timestamp) {
				continue
			}
			b, err := EncodeEvent(msg)
			if err != nil {
				c.log.Warn("Could not encode event", "err", err)
				continue
			}
			client.Publish(topic, QoS, Retain, string(b))
		}
	}
}

func (c *cloud) connect(ctx context.Context) (mqtt.Client, error) {
	keyData, err := ioutil.ReadFile(c.cfg.PrivateKeyPath)
	if err != nil {
		return nil, errors.Wrap(err, "could not read private key")
	}
	pass, err := Password(c.cfg, keyData, time.Now())
	if err != nil {
		return nil, err
	}

	clientID := ClientID(c.cfg, c.deviceID)
	c.log.Info("MQTT client", "address", c.cfg.MQTTBroker, "client_id", clientID)

	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.MQTTBroker).
		SetClientID(clientID).
		SetUsername(Username).
		SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}).
		SetPassword(pass).
		SetProtocolVersion(4) // Use MQTT 3.1.1

	client := mqtt.NewClient(opts)
	for {
		c.log.Info("Connecting MQTT...")
		tok := client.Connect()
		if !tok.WaitTimeout(5 * time.Second) {
			c.log.Warn("Connection Timeout")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
				continue
			}
		}
		if err := tok.Error(); err != nil {
			return nil, errors.Wrap(err, "mqtt connect")
		}
		c.log.Info("..Connected")
		return client, nil
	}
}

func ClientID(cfg config.Cloud, deviceID string) string {
	return fmt.Sprintf("projects/%s/locations/%s/registries/%s/devices/%s", cfg.ProjectID, cfg.Region, cfg.RegistryID, deviceID)
}

func EventTopic(deviceID string) string {
	return fmt.Sprintf("/devices/%s/events/control-interface", deviceID)
}

// Password signs the JWT used as the MQTT password. It is valid for 24 hours.
func Password(cfg config.Cloud, keyData []byte, now time.Time) (string, error) {
	var key interface{}
	var err error
	switch cfg.Algorithm {
	case "RS256":
		key, err = jwt.ParseRSAPrivateKeyFromPEM(keyData)
	case "ES256":
		key, err = jwt.ParseECPrivateKeyFromPEM(keyData)
	default:
		return "", errors.Errorf("unknown algorithm: %s", cfg.Algorithm)
	}
	if err != nil {
		return "", errors.Wrap(err, "could not parse private key")
	}

	token := jwt.NewWithClaims(jwt.GetSigningMethod(cfg.Algorithm), &jwt.StandardClaims{
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(24 * time.Hour).Unix(),
		Audience:  cfg.ProjectID,
	})
	pass, err := token.SignedString(key)
	if err != nil {
		return "", errors.Wrap(err, "could not sign token")
	}
	return pass, nil
}

type event struct {
	MessageID   string      `json:"message_id"`
	Timestamp   int64       `json:"timestamp"`
	MessageType string      `json:"message_type"`
	Message     interface{} `json:"message"`
}

func EncodeEvent(msg types.Message) ([]byte, error) {
	return json.Marshal(event{
		MessageID:   msg.ID,
		Timestamp:   msg.Timestamp.UnixNano() / 1000,
		MessageType: msg.MessageType,
		Message:     msg.Message,
	})
}
