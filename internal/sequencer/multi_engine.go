package sequencer

import (
	"sync"

	"github.com/sevonj/sfontplayer-sub000/internal/midiraw"
)

// Engine is a stereo synthesis engine driven by raw channel messages.
type Engine interface {
	Sink
	RenderFrame() (float32, float32)
	SampleRate() uint32
}

// MultiEngine routes channel messages to engines by MIDI channel and mixes
// the output of all engines. Observers see every message regardless of
// routing.
type MultiEngine struct {
	mu        sync.Mutex
	engines   []Engine
	routes    [16]int
	observers []midiraw.Receiver
}

// NewMultiEngine creates a MultiEngine. fallback receives every channel that
// has not been routed elsewhere.
func NewMultiEngine(fallback Engine) *MultiEngine {
	return &MultiEngine{engines: []Engine{fallback}}
}

// Route sends channel's messages to engine. The engine must share the
// fallback's sample rate.
func (m *MultiEngine) Route(channel uint8, engine Engine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := -1
	for i, e := range m.engines {
		if e == engine {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.engines = append(m.engines, engine)
		idx = len(m.engines) - 1
	}
	m.routes[channel&0x0f] = idx
}

// Observe registers a receiver that is sent a copy of every message.
func (m *MultiEngine) Observe(r midiraw.Receiver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, r)
}

func (m *MultiEngine) engine(channel uint8) Engine {
	return m.engines[m.routes[channel&0x0f]]
}

// AllEngines returns the registered engines, fallback first.
func (m *MultiEngine) AllEngines() []Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Engine(nil), m.engines...)
}

func (m *MultiEngine) ReceiveRaw(channel, command, data1, data2 uint8) {
	m.mu.Lock()
	e := m.engine(channel)
	observers := m.observers
	m.mu.Unlock()
	e.ReceiveRaw(channel, command, data1, data2)
	for _, o := range observers {
		o.ReceiveRaw(channel, command, data1, data2)
	}
}

func (m *MultiEngine) Reset() {
	for _, e := range m.AllEngines() {
		e.Reset()
	}
}

func (m *MultiEngine) RenderFrame() (float32, float32) {
	m.mu.Lock()
	engines := m.engines
	m.mu.Unlock()
	var l, r float32
	for _, e := range engines {
		el, er := e.RenderFrame()
		l += el
		r += er
	}
	return l, r
}

func (m *MultiEngine) SampleRate() uint32 {
	return m.engines[0].SampleRate()
}
