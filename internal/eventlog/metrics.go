package eventlog

import "time"

// MetricsHook observes log activity. Implementations must be cheap and safe
// for concurrent use.
type MetricsHook interface {
	ObservePublish(topic string, messages int, bytes int64, elapsed time.Duration)
	ObserveSeal(topic string, messages int, bytes int64, age time.Duration)
	ObserveDelivery(topic string)
	ObserveCorruptSegment(topic string)
}

type noopMetrics struct{}

func (noopMetrics) ObservePublish(string, int, int64, time.Duration) {}
func (noopMetrics) ObserveSeal(string, int, int64, time.Duration)    {}
func (noopMetrics) ObserveDelivery(string)                           {}
func (noopMetrics) ObserveCorruptSegment(string)                     {}
