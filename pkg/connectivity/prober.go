package connectivity

import (
	"context"
	"net/http"
	"time"
)

// DefaultProbeInterval is how often Prober checks the server.
const DefaultProbeInterval = 15 * time.Second

// Prober polls a health endpoint and feeds the result to an Observer.
type Prober struct {
	observer *Observer
	url      string
	client   *http.Client
	interval time.Duration
}

// NewProber creates a prober for healthURL. A nil client uses one with a
// five second timeout; a non-positive interval uses DefaultProbeInterval.
func NewProber(o *Observer, healthURL string, interval time.Duration, client *http.Client) *Prober {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Prober{observer: o, url: healthURL, client: client, interval: interval}
}

// Probe reports whether the health endpoint answered with a 2xx status.
func (p *Prober) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, http.NoBody)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Run probes immediately and then on every tick until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if ok := p.Probe(ctx); ctx.Err() == nil {
			p.observer.Set(ok)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
