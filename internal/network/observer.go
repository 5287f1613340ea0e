package network

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/leonardotrapani/livescribe/internal/logging"
)

// Probe reports whether the remote service is reachable right now.
type Probe func(ctx context.Context) bool

// Observer holds the current connectivity state. Subscribers are told about
// transitions only, never about repeated values.
type Observer struct {
	mu        sync.RWMutex
	connected bool
	subs      []chan bool
	log       zerolog.Logger
}

func New(initial bool) *Observer {
	return &Observer{
		connected: initial,
		log:       logging.Component("network"),
	}
}

func (o *Observer) Connected() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.connected
}

// Set records a new state and fans the edge out to subscribers. A full
// subscriber channel drops the oldest pending value so the latest edge wins.
func (o *Observer) Set(connected bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.connected == connected {
		return
	}
	o.connected = connected
	o.log.Info().Bool("connected", connected).Msg("connectivity changed")

	// Sends never block, so holding the lock here keeps Subscribe's
	// cleanup from closing a channel mid-send.
	for _, ch := range o.subs {
		for {
			select {
			case ch <- connected:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Subscribe returns a channel receiving every transition. It is closed when
// ctx is done.
func (o *Observer) Subscribe(ctx context.Context) <-chan bool {
	ch := make(chan bool, 8)

	o.mu.Lock()
	o.subs = append(o.subs, ch)
	o.mu.Unlock()

	go func() {
		<-ctx.Done()
		o.mu.Lock()
		for i, c := range o.subs {
			if c == ch {
				o.subs = append(o.subs[:i], o.subs[i+1:]...)
				break
			}
		}
		o.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Run polls probe every interval until ctx is done, feeding results to Set.
func (o *Observer) Run(ctx context.Context, probe Probe, interval time.Duration) {
	if probe == nil || interval <= 0 {
		return
	}

	o.Set(probe(ctx))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Set(probe(ctx))
		}
	}
}

// TCPProbe dials address and reports whether a connection could be made
// within timeout.
func TCPProbe(address string, timeout time.Duration) Probe {
	dialer := &net.Dialer{Timeout: timeout}
	return func(ctx context.Context) bool {
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}
}

// AddressFromURL derives a host:port dial target from an endpoint URL.
func AddressFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("endpoint %q has no host", raw)
	}

	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "http":
			port = "80"
		default:
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
