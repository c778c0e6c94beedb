// Copyright (C) 2023, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladiator-network/core/cache"
)

func TestDedupWindowBoundary(t *testing.T) {
	now := time.Unix(0, 0)
	w := cache.NewDedupWindowWithClock(DedupWindowTTL, func() time.Time { return now })

	key := cache.DedupKey{Type: "MESSAGE:REQUEST", Author: "node-a", TransactionHash: "0xabc"}
	require.False(t, w.Seen(key), "first sighting should not be flagged as a dup")

	t.Run("within window", func(t *testing.T) {
		now = now.Add(4900 * time.Millisecond)
		require.True(t, w.Seen(key), "4.9s apart is inside the 5s dedup window")
	})

	t.Run("past window", func(t *testing.T) {
		now = now.Add(200 * time.Millisecond) // total 5.1s since the original sighting
		require.False(t, w.Seen(key), "5.1s apart is past the 5s dedup window")
	})
}

func TestDedupWindowDistinctKeys(t *testing.T) {
	w := cache.NewDedupWindow(DedupWindowTTL)

	a := cache.DedupKey{Type: "MESSAGE:SIGNED", Author: "node-a", TransactionHash: "0x1"}
	b := cache.DedupKey{Type: "MESSAGE:SIGNED", Author: "node-b", TransactionHash: "0x1"}

	require.False(t, w.Seen(a))
	require.False(t, w.Seen(b), "different author is a distinct key even with the same tx hash")
	require.True(t, w.Seen(a))
}
