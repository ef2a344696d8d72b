package token

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"pqcall/internal/domain"
)

// monitorCapacity bounds the number of tracked sources; the oldest entry is
// evicted when an attacker rotates source keys faster than the cooldown.
const monitorCapacity = 4096

// monitor counts token resolution attempts per source key. Counters
// self-expire after the cooldown; a source crossing the threshold raises one
// enumeration alert per counter lifetime.
type monitor struct {
	threshold int
	clock     clock.Clock
	events    domain.EventSink
	log       *zap.Logger

	mu       sync.Mutex // guards get-or-add on counters
	counters *lru.LRU[string, *sourceCounter]
}

type sourceCounter struct {
	mu       sync.Mutex
	count    int
	alerted  bool
	lastSeen string // last token hash prefix attempted by this source
}

func newMonitor(threshold int, cooldown time.Duration, clk clock.Clock, events domain.EventSink, log *zap.Logger) *monitor {
	return &monitor{
		threshold: threshold,
		clock:     clk,
		events:    events,
		log:       log,
		counters:  lru.NewLRU[string, *sourceCounter](monitorCapacity, nil, cooldown),
	}
}

func (m *monitor) record(tokenHashPrefix, sourceKey string) {
	m.mu.Lock()
	c, ok := m.counters.Get(sourceKey)
	if !ok {
		c = &sourceCounter{}
		m.counters.Add(sourceKey, c)
	}
	m.mu.Unlock()

	c.mu.Lock()
	c.count++
	c.lastSeen = tokenHashPrefix
	count := c.count
	last := c.lastSeen
	alert := count >= m.threshold && !c.alerted
	if alert {
		c.alerted = true
	}
	c.mu.Unlock()

	if !alert {
		return
	}
	m.log.Warn("token enumeration suspected",
		zap.String("source", sourceKey),
		zap.Int("attempts", count),
		zap.String("last_prefix", last))
	m.events.Publish(domain.SecurityAlert{
		Alert:  domain.AlertEnumeration,
		Source: sourceKey,
		Detail: fmt.Sprintf("%d token resolution attempts within cooldown window, last prefix %s", count, last),
		At:     m.clock.Now(),
	})
}

// sources returns the number of live counters.
func (m *monitor) sources() int {
	return m.counters.Len()
}
