// Package ids generates unique, time-ordered string identifiers for
// users and messages. The layout is snowflake-style: 41 bits of
// milliseconds since a fixed epoch, 10 bits of node id, 12 bits of
// per-millisecond sequence, so ids sort in creation order.
package ids

import (
	"strconv"
	"sync"
	"time"
)

type generator struct {
	mu      sync.Mutex
	epochMS int64
	nodeID  int64 // 0..1023
	seq     int64 // 0..4095
	lastMS  int64
}

var (
	defaultGen *generator
	once       sync.Once
)

func initDefault() {
	once.Do(func() {
		defaultGen = &generator{
			epochMS: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
			nodeID:  1,
		}
	})
}

// New returns the next id as a decimal string.
func New() string {
	initDefault()
	return strconv.FormatInt(defaultGen.next(), 10)
}

// SetNodeID configures the node component (0..1023). Call once at
// startup when running more than one instance.
func SetNodeID(nodeID int64) {
	initDefault()
	if nodeID < 0 || nodeID > 1023 {
		nodeID = 1
	}
	defaultGen.nodeID = nodeID
}

func (g *generator) next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		now := time.Now().UnixMilli()
		if now < g.lastMS {
			// Clock went backwards; wait it out.
			time.Sleep(time.Duration(g.lastMS-now) * time.Millisecond)
			continue
		}
		if now == g.lastMS {
			g.seq = (g.seq + 1) & 0xFFF
			if g.seq == 0 {
				// Sequence exhausted within this millisecond.
				for now <= g.lastMS {
					now = time.Now().UnixMilli()
				}
			}
		} else {
			g.seq = 0
		}
		g.lastMS = now
		return (now-g.epochMS)<<22 | g.nodeID<<12 | g.seq
	}
}
