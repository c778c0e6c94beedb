// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/vladiator-network/core/message"
)

// HeartbeatInterval is the §4.3.3 cadence.
const HeartbeatInterval = 2 * time.Minute

// RunHeartbeat publishes a HEARTBEAT frame every HeartbeatInterval
// until ctx is canceled. uptime is sampled fresh on every tick so the
// payload reflects how long this process has been running.
func (b *Bus) RunHeartbeat(ctx context.Context, started time.Time) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Publish(message.Heartbeat, &message.Message{
				Type:    message.Heartbeat,
				Author:  b.author,
				Source:  message.HeartbeatSentinel,
				Payload: fmt.Sprintf("uptime=%s peers=%d", time.Since(started).Round(time.Second), b.PeerCount()),
			})
		}
	}
}
