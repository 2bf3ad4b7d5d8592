package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for a recording session
type Metrics struct {
	// Recognition metrics
	RecognitionFrames prometheus.Counter
	Boundaries        prometheus.Counter
	EmptyUtterances   prometheus.Counter
	RecognitionErrors prometheus.Counter

	// Memo metrics
	MemoEntries *prometheus.CounterVec

	// Archive metrics
	ArchiveBytes    prometheus.Counter
	Rotations       prometheus.Counter
	SegmentDuration prometheus.Histogram
	SegmentBytes    prometheus.Histogram
}

// New creates all metrics and registers them with reg. A nil reg creates
// unregistered metrics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RecognitionFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "memorec_recognition_frames_total",
			Help: "Total number of audio frames fed to the recognizer",
		}),
		Boundaries: factory.NewCounter(prometheus.CounterOpts{
			Name: "memorec_utterance_boundaries_total",
			Help: "Total number of utterance boundaries reported by the recognizer",
		}),
		EmptyUtterances: factory.NewCounter(prometheus.CounterOpts{
			Name: "memorec_empty_utterances_total",
			Help: "Total number of boundaries whose text was empty after normalization",
		}),
		RecognitionErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "memorec_recognition_errors_total",
			Help: "Total number of recognizer failures",
		}),

		MemoEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "memorec_memo_entries_total",
			Help: "Total number of entries appended to the memo by kind",
		}, []string{"kind"}),

		ArchiveBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "memorec_archive_bytes_total",
			Help: "Total number of PCM bytes written to segments",
		}),
		Rotations: factory.NewCounter(prometheus.CounterOpts{
			Name: "memorec_segment_rotations_total",
			Help: "Total number of segment rotations",
		}),
		SegmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "memorec_segment_duration_seconds",
			Help:    "Wall clock duration of closed segments",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4 minutes
		}),
		SegmentBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "memorec_segment_pcm_bytes",
			Help:    "PCM bytes written to each closed segment",
			Buckets: prometheus.ExponentialBuckets(4096, 4, 8),
		}),
	}
}

// Memo entry kinds
const (
	EntryText  = "text"
	EntryFinal = "final"
	EntryAudio = "audio"
)
