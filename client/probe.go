package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maybeProbe launches at most one bandwidth probe at a time. Probes are
// skipped while not playing or while no playback surface is visible.
func (c *Controller) maybeProbe(ctx context.Context) {
	c.mu.Lock()
	if c.state != StatePlaying || !c.visible || c.probing {
		c.mu.Unlock()
		return
	}
	c.probing = true
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.probing = false
			c.mu.Unlock()
		}()
		sample, err := c.probeOnce(ctx)
		if err != nil {
			c.logger.Warnf("bandwidth probe failed: %v", err)
			return
		}
		c.recordSample(sample)
		c.applySample(sample)
	}()
}

// probeOnce downloads the relay's probe payload and converts elapsed wall
// time into a kilobits-per-second estimate.
func (c *Controller) probeOnce(ctx context.Context) (BandwidthSample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ServerURL+"/probe", nil)
	if err != nil {
		return BandwidthSample{}, err
	}

	start := time.Now()
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return BandwidthSample{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return BandwidthSample{}, fmt.Errorf("probe: status=%d", resp.StatusCode)
	}
	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return BandwidthSample{}, err
	}
	elapsed := time.Since(start)
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}

	kbps := float64(n*8) / 1000 / elapsed.Seconds()
	return BandwidthSample{
		Kbps:  kbps,
		Class: classifyKbps(kbps),
		At:    time.Now(),
	}, nil
}

func (c *Controller) recordSample(sample BandwidthSample) {
	c.mu.Lock()
	c.samples = append(c.samples, sample)
	c.mu.Unlock()
	c.logger.Infof("bandwidth sample: %.0f kbps (%s)", sample.Kbps, sample.Class)
}

// applySample switches the player rendition for the measured class. Pinned
// tiers record samples but leave the rendition alone.
func (c *Controller) applySample(sample BandwidthSample) {
	c.mu.Lock()
	tier := c.tier
	c.mu.Unlock()
	if tier != TierAuto {
		return
	}

	index, ok := renditionIndexFor(sample.Class, len(c.player.Renditions()))
	if !ok {
		return
	}
	if err := c.player.SetRendition(index); err != nil {
		c.logger.Warnf("set rendition %d: %v", index, err)
	}
}
