package cloud

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"testing"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/tiiuae/control_interface/internal/config"
	"github.com/tiiuae/control_interface/internal/types"
)

func TestPasswordRS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	keyData := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	cfg := config.Default().Cloud
	now := time.Now()
	pass, err := Password(cfg, keyData, now)
	if err != nil {
		t.Fatal(err)
	}

	claims := &jwt.StandardClaims{}
	_, err = jwt.ParseWithClaims(pass, claims, func(token *jwt.Token) (interface{}, error) {
		return &key.PublicKey, nil
	})
	if err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if claims.Audience != "auto-fleet-mgnt" || claims.ExpiresAt != now.Add(24*time.Hour).Unix() {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestPasswordES256(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	keyData := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})

	cfg := config.Default().Cloud
	cfg.Algorithm = "ES256"
	if _, err := Password(cfg, keyData, time.Now()); err != nil {
		t.Errorf("expected ES256 token, got %v", err)
	}

	cfg.Algorithm = "RS256"
	if _, err := Password(cfg, keyData, time.Now()); err == nil {
		t.Error("expected error for mismatched key")
	}
	cfg.Algorithm = "HS256"
	if _, err := Password(cfg, keyData, time.Now()); err == nil {
		t.Error("expected error for unknown algorithm")
	}
}

func TestNaming(t *testing.T) {
	cfg := config.Default().Cloud
	if id := ClientID(cfg, "drone-1"); id != "projects/auto-fleet-mgnt/locations/europe-west1/registries/fleet-registry/devices/drone-1" {
		t.Errorf("unexpected client id %s", id)
	}
	if topic := EventTopic("drone-1"); topic != "/devices/drone-1/events/control-interface" {
		t.Errorf("unexpected topic %s", topic)
	}
}

func TestEncodeEvent(t *testing.T) {
	msg := types.CreateMessage(types.MessageTypeMissionEvent, "drone-1", "drone-1", types.MissionEvent{Event: "started", Size: 3})
	b, err := EncodeEvent(msg)
	if err != nil {
		t.Fatal(err)
	}

	var decoded struct {
		MessageID   string                 `json:"message_id"`
		MessageType string                 `json:"message_type"`
		Message     map[string]interface{} `json:"message"`
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.MessageID != msg.ID || decoded.MessageType != "mission-event" || decoded.Message["event"] != "started" || decoded.Message["size"] != 3.0 {
		t.Errorf("unexpected event %s", b)
	}
}
