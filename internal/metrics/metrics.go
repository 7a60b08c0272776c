// Package metrics records what a sync run did. Runs are batch jobs, so the
// registry is exported to a node_exporter textfile rather than served.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Recorder struct {
	registry *prometheus.Registry

	requests       *prometheus.CounterVec
	throttled      *prometheus.CounterVec
	throttleWait   prometheus.Counter
	threads        *prometheus.CounterVec
	replies        *prometheus.CounterVec
	skipped        prometheus.Counter
	lastSuccess    prometheus.Gauge
	archiveBytes   prometheus.Gauge
	channelsSynced prometheus.Counter
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slackarchive_api_requests_total",
			Help: "Remote API calls issued, including retried attempts.",
		}, []string{"method"}),
		throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slackarchive_api_throttled_total",
			Help: "Remote API calls answered with a throttling signal.",
		}, []string{"method"}),
		throttleWait: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slackarchive_throttle_wait_seconds_total",
			Help: "Time spent waiting on server-specified retry delays.",
		}),
		threads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slackarchive_threads_archived_total",
			Help: "New threads merged into the archive.",
		}, []string{"channel"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slackarchive_replies_archived_total",
			Help: "Replies stored with newly merged threads.",
		}, []string{"channel"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slackarchive_channels_skipped_total",
			Help: "Channels skipped because the credential lacks access.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slackarchive_last_success_timestamp_seconds",
			Help: "Unix time of the last run that finished without a fatal error.",
		}),
		archiveBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "slackarchive_archive_size_bytes",
			Help: "Size of the last persisted archive snapshot.",
		}),
		channelsSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slackarchive_channels_synced_total",
			Help: "Channels that completed a sync pass.",
		}),
	}
	r.registry.MustRegister(
		r.requests,
		r.throttled,
		r.throttleWait,
		r.threads,
		r.replies,
		r.skipped,
		r.lastSuccess,
		r.archiveBytes,
		r.channelsSynced,
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Request(method string) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(method).Inc()
}

func (r *Recorder) Throttled(method string, waitSeconds float64) {
	if r == nil {
		return
	}
	r.throttled.WithLabelValues(method).Inc()
	r.throttleWait.Add(waitSeconds)
}

func (r *Recorder) ChannelSynced(channel string, threads, replies int) {
	if r == nil {
		return
	}
	r.channelsSynced.Inc()
	r.threads.WithLabelValues(channel).Add(float64(threads))
	r.replies.WithLabelValues(channel).Add(float64(replies))
}

func (r *Recorder) ChannelSkipped() {
	if r == nil {
		return
	}
	r.skipped.Inc()
}

func (r *Recorder) ArchiveSaved(sizeBytes int) {
	if r == nil {
		return
	}
	r.archiveBytes.Set(float64(sizeBytes))
}

func (r *Recorder) RunSucceeded(unixSeconds float64) {
	if r == nil {
		return
	}
	r.lastSuccess.Set(unixSeconds)
}

// WriteTextfile atomically writes the registry in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
