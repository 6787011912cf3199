package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/pcurt/hivesense2mqtt/internal/config"
)

var errStopped = errors.New("mqtt client stopped")

const publishTimeout = 5 * time.Second

// newClientOptions builds the paho options shared by the subscriber and the publisher.
func newClientOptions(b config.Broker) (*mqtt.ClientOptions, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.URL())
	opts.SetClientID(b.ClientID)
	if b.Username != "" {
		opts.SetUsername(b.Username)
		opts.SetPassword(b.Password)
	}

	if b.TLS {
		tlsCfg, err := tlsConfig(b.CAFile)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	// Session settings
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	// Keepalive / timeouts
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	return opts, nil
}

// tlsConfig trusts the PEM bundle in caFile, or the system roots when caFile is empty.
func tlsConfig(caFile string) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return cfg, nil
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("ca file %s: no certificates found", caFile)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// connState tracks the connection as reported by paho callbacks and the stop signal.
type connState struct {
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func (c *connState) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *connState) isConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *connState) stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *connState) stopped() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

// waitToken waits for token while respecting ctx and the stop signal.
func (c *connState) waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopCh:
		return errStopped
	}
}
