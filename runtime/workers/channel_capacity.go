package workers

import (
	"context"
	"log/slog"
	"reflect"
	"time"
)

const (
	DefaultMetricInterval       = 5 * time.Second
	DefaultLowCapacityThreshold = 80
)

type NamedChannel struct {
	Name    string
	Channel any
}

// ChannelUsage is one sample of a buffered channel.
type ChannelUsage struct {
	Name     string
	Length   int
	Capacity int
}

func (u ChannelUsage) Percent() int {
	if u.Capacity == 0 {
		return 0
	}
	return u.Length * 100 / u.Capacity
}

// ChannelCapacityWorker periodically samples the session's buffered channels
// and warns when one of them is filling up, which means its consumer lags behind.
// Reading len(channel) and cap(channel) is non-blocking, so this won't interfere
// with other goroutines.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	channels       []NamedChannel
	metricInterval time.Duration
	threshold      int
}

// NewChannelCapacityWorker warns when a channel is at least threshold percent full.
func NewChannelCapacityWorker(log *slog.Logger, channels []NamedChannel,
	metricInterval time.Duration, threshold int) *ChannelCapacityWorker {
	if metricInterval <= 0 {
		metricInterval = DefaultMetricInterval
	}
	if threshold <= 0 || threshold > 100 {
		threshold = DefaultLowCapacityThreshold
	}
	return &ChannelCapacityWorker{
		log:            log,
		channels:       channels,
		metricInterval: metricInterval,
		threshold:      threshold,
	}
}

func (w ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping channel capacity sampling")
			return nil
		case <-ticker.C:
			for _, usage := range w.Sample() {
				if usage.Capacity > 0 && usage.Percent() >= w.threshold {
					w.log.Warn("Channel filling up", "name", usage.Name,
						"length", usage.Length, "capacity", usage.Capacity)
				}
			}
		}
	}
}

// Sample reads the length and capacity of every watched channel.
func (w ChannelCapacityWorker) Sample() []ChannelUsage {
	res := make([]ChannelUsage, 0, len(w.channels))
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		// Verify if this is a channel
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		res = append(res, ChannelUsage{Name: nc.Name, Length: v.Len(), Capacity: v.Cap()})
	}
	return res
}
