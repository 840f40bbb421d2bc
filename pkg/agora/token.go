package agora

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
)

// Credential kinds understood by the A/V provider.
const (
	KindRTC = "rtc"
	KindRTM = "rtm"
)

// Version tag carried at the front of every minted credential.
const tokenVersion = "007"

// Builder mints channel-scoped credentials for the A/V transport. The token
// bytes are opaque to this service; it only requests, caches and forwards them.
type Builder interface {
	Build(channelName string, uid uint, kind string, ttl time.Duration) (string, time.Time, error)
}

// Config contains the provider credentials required for signing.
type Config struct {
	AppID       string
	Certificate string
}

type hmacBuilder struct {
	appID       string
	certificate []byte
}

// New constructs a credential builder instance.
func New(cfg Config) (Builder, error) {
	if cfg.AppID == "" || cfg.Certificate == "" {
		return nil, fmt.Errorf("agora app id and certificate must be provided")
	}

	return &hmacBuilder{
		appID:       cfg.AppID,
		certificate: []byte(cfg.Certificate),
	}, nil
}

func (b *hmacBuilder) Build(channelName string, uid uint, kind string, ttl time.Duration) (string, time.Time, error) {
	if channelName == "" {
		return "", time.Time{}, fmt.Errorf("channel name must not be empty")
	}
	if kind != KindRTC && kind != KindRTM {
		return "", time.Time{}, fmt.Errorf("invalid token kind %q", kind)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	expiresAt := time.Now().UTC().Add(ttl)

	payload := fmt.Sprintf("%s:%s:%s:%d:%d", b.appID, kind, channelName, uid, expiresAt.Unix())
	mac := hmac.New(sha256.New, b.certificate)
	mac.Write([]byte(payload))
	signature := mac.Sum(nil)

	blob := append([]byte(payload+":"), signature...)
	token := tokenVersion + b.appID + base64.RawURLEncoding.EncodeToString(blob)

	return token, expiresAt, nil
}
