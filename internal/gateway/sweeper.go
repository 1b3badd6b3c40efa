package gateway

import (
	"context"
	"log"
	"time"
)

// runPeriodic invokes fn every interval until ctx is cancelled. Sweep bodies
// are plain methods, so tests call them directly instead of waiting on the
// ticker.
func runPeriodic(ctx context.Context, name string, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[sweeper] %s started, interval=%s", name, interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[sweeper] %s stopped", name)
			return
		case <-ticker.C:
			fn()
		}
	}
}

// StartSweepers launches the liveness and typing sweep loops. They stop when
// ctx is cancelled at shutdown.
func (g *Gateway) StartSweepers(ctx context.Context) {
	go runPeriodic(ctx, "liveness", g.cfg.LivenessSweepInterval, g.SweepLiveness)
	go runPeriodic(ctx, "typing", g.cfg.TypingSweepInterval, g.SweepTyping)
}

// SweepLiveness evicts sessions whose heartbeat lapsed beyond the
// inactivity threshold. Eviction force-closes the transport and then runs
// the normal disconnect cleanup, so no membership or typing state is ever
// silently dropped.
func (g *Gateway) SweepLiveness() {
	for _, session := range g.registry.Expired(g.cfg.InactivityThreshold) {
		log.Printf("[sweeper] evicting inactive conn=%s user=%s lastActivity=%s",
			session.ConnectionID, session.Identity.UserID, session.LastActivityAt.Format(time.RFC3339))

		g.mu.RLock()
		sender, ok := g.senders[session.ConnectionID]
		g.mu.RUnlock()
		if ok {
			if err := sender.Close(); err != nil {
				log.Printf("[sweeper] close conn=%s failed: %v", session.ConnectionID, err)
			}
		}

		// The transport close also triggers Disconnect via the read loop;
		// both paths are idempotent.
		g.Disconnect(session.ConnectionID)
	}
}

// SweepTyping expires stale typing entries and refreshes the rooms whose
// visible state changed.
func (g *Gateway) SweepTyping() {
	for _, conversationID := range g.typing.Sweep() {
		g.broadcastTyping(conversationID)
	}
}
