package board

import "sync/atomic"

// Metrics contains atomic counters for one board session.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// FrameSendCount indicates the number of frames written and drained.
	FrameSendCount atomic.Uint64
	// FrameRecvCount indicates the number of frames received and decoded from the stream.
	FrameRecvCount atomic.Uint64
	// FrameErrCount indicates the number of frames dropped for framing or decode errors.
	FrameErrCount atomic.Uint64
	// OutOfOrderCount indicates the number of sessions ended by an out-of-order response.
	OutOfOrderCount atomic.Uint64
	// TimeoutCount indicates the number of sessions ended by a response timeout.
	TimeoutCount atomic.Uint64
	// StatusUpdateCount indicates the number of propertyStatus updates applied.
	StatusUpdateCount atomic.Uint64
	// ThingRevealCount indicates the number of things revealed to the directory.
	ThingRevealCount atomic.Uint64
	// ConnectCount indicates the number of times the transport was opened.
	ConnectCount atomic.Uint64
}

func (m *Metrics) incFrameSendCount() {
	m.FrameSendCount.Add(1)
}

func (m *Metrics) incFrameRecvCount() {
	m.FrameRecvCount.Add(1)
}

func (m *Metrics) incFrameErrCount() {
	m.FrameErrCount.Add(1)
}

func (m *Metrics) incOutOfOrderCount() {
	m.OutOfOrderCount.Add(1)
}

func (m *Metrics) incTimeoutCount() {
	m.TimeoutCount.Add(1)
}

func (m *Metrics) incStatusUpdateCount() {
	m.StatusUpdateCount.Add(1)
}

func (m *Metrics) incThingRevealCount() {
	m.ThingRevealCount.Add(1)
}

func (m *Metrics) incConnectCount() {
	m.ConnectCount.Add(1)
}
