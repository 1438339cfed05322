// Package budget implements a lock-free accounting of bytes held by
// in-flight work against a ceiling. It performs no allocation or I/O; the
// contract is check-then-reserve.
package budget

import "sync/atomic"

// Monitor tracks reserved bytes against a configured limit.
type Monitor struct {
	limit    uint64
	reserved atomic.Uint64
	peak     atomic.Uint64
}

// NewMonitor returns a monitor with the given ceiling in bytes.
func NewMonitor(limitBytes uint64) *Monitor {
	return &Monitor{limit: limitBytes}
}

// NewMonitorMB returns a monitor with a ceiling given in megabytes.
func NewMonitorMB(limitMB uint64) *Monitor {
	return NewMonitor(limitMB * 1024 * 1024)
}

// CanReserve reports whether bytes more would stay within the limit.
// It does not change state.
func (m *Monitor) CanReserve(bytes uint64) bool {
	cur := m.reserved.Load()
	return cur <= m.limit && bytes <= m.limit-cur
}

// Reserve adds bytes unconditionally. Callers wanting back-pressure call
// CanReserve first, or use TryReserve.
func (m *Monitor) Reserve(bytes uint64) {
	m.notePeak(m.reserved.Add(bytes))
}

// TryReserve atomically reserves bytes only if the limit allows it.
func (m *Monitor) TryReserve(bytes uint64) bool {
	for {
		cur := m.reserved.Load()
		if cur > m.limit || bytes > m.limit-cur {
			return false
		}
		if m.reserved.CompareAndSwap(cur, cur+bytes) {
			m.notePeak(cur + bytes)
			return true
		}
	}
}

// Release subtracts bytes, flooring at zero.
func (m *Monitor) Release(bytes uint64) {
	for {
		cur := m.reserved.Load()
		next := uint64(0)
		if bytes < cur {
			next = cur - bytes
		}
		if m.reserved.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Usage returns the bytes currently reserved.
func (m *Monitor) Usage() uint64 { return m.reserved.Load() }

// Limit returns the configured ceiling in bytes.
func (m *Monitor) Limit() uint64 { return m.limit }

// Available returns the bytes left before the ceiling.
func (m *Monitor) Available() uint64 {
	cur := m.reserved.Load()
	if cur >= m.limit {
		return 0
	}
	return m.limit - cur
}

// Peak returns the highest usage observed.
func (m *Monitor) Peak() uint64 { return m.peak.Load() }

func (m *Monitor) notePeak(v uint64) {
	for {
		p := m.peak.Load()
		if v <= p || m.peak.CompareAndSwap(p, v) {
			return
		}
	}
}
