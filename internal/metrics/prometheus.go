package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice loop
type Metrics struct {
	// Conversation metrics
	Turns        *prometheus.CounterVec
	State        prometheus.Gauge
	TurnDuration prometheus.Histogram

	// Capture metrics
	Captures          *prometheus.CounterVec
	UtteranceDuration prometheus.Histogram
	AmbientEnergy     prometheus.Gauge
	SpeechThreshold   prometheus.Gauge

	// Transcription metrics
	TranscriptionDuration prometheus.Histogram
	TranscriptionFailures *prometheus.CounterVec

	// Turn service metrics
	TurnRequestDuration prometheus.Histogram
	ReplyBytes          prometheus.Histogram
	ReplyAudioDuration  prometheus.Histogram
	DecodeFailures      prometheus.Counter

	// Playback metrics
	PlaybackDuration prometheus.Histogram
	PlaybackFailures prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Conversation metrics
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceloop_turns_total",
			Help: "Total number of conversation turns by outcome",
		}, []string{"outcome"}),
		State: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voiceloop_state",
			Help: "Current conversation state (0 = listening, 1 = chatting)",
		}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceloop_turn_duration_seconds",
			Help:    "Time from end of utterance to end of reply playback",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 9), // 0.5s to ~2 minutes
		}),

		// Capture metrics
		Captures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceloop_captures_total",
			Help: "Total number of capture attempts by outcome",
		}, []string{"outcome"}),
		UtteranceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceloop_utterance_duration_seconds",
			Help:    "Duration of captured utterances",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 0.25s to ~30s
		}),
		AmbientEnergy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voiceloop_ambient_energy",
			Help: "Ambient noise RMS measured at calibration",
		}),
		SpeechThreshold: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voiceloop_speech_threshold",
			Help: "RMS energy above which audio counts as speech",
		}),

		// Transcription metrics
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceloop_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}),
		TranscriptionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceloop_transcription_failures_total",
			Help: "Total number of failed transcriptions by kind",
		}, []string{"kind"}),

		// Turn service metrics
		TurnRequestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceloop_turn_request_duration_seconds",
			Help:    "Time to send a turn and receive the complete reply",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		ReplyBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceloop_reply_size_bytes",
			Help:    "Size of encoded audio replies",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 15), // 1KB to ~16MB
		}),
		ReplyAudioDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceloop_reply_audio_duration_seconds",
			Help:    "Playback length of decoded replies",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 9),
		}),
		DecodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceloop_decode_failures_total",
			Help: "Total number of replies that could not be decoded",
		}),

		// Playback metrics
		PlaybackDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voiceloop_playback_duration_seconds",
			Help:    "Wall-clock time spent playing replies",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 9),
		}),
		PlaybackFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "voiceloop_playback_failures_total",
			Help: "Total number of failed or interrupted playbacks",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceloop_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voiceloop_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voiceloop_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordTurn records the outcome of a finished turn
func (m *Metrics) RecordTurn(outcome string, durationSeconds float64) {
	m.Turns.WithLabelValues(outcome).Inc()
	if durationSeconds > 0 {
		m.TurnDuration.Observe(durationSeconds)
	}
}

// SetChatting sets the conversation state gauge
func (m *Metrics) SetChatting(chatting bool) {
	if chatting {
		m.State.Set(1)
	} else {
		m.State.Set(0)
	}
}

// RecordCapture records a capture attempt; duration is zero when no utterance was captured
func (m *Metrics) RecordCapture(outcome string, durationSeconds float64) {
	m.Captures.WithLabelValues(outcome).Inc()
	if durationSeconds > 0 {
		m.UtteranceDuration.Observe(durationSeconds)
	}
}

// RecordCalibration records the ambient energy and resulting speech threshold
func (m *Metrics) RecordCalibration(ambient, threshold float64) {
	m.AmbientEnergy.Set(ambient)
	m.SpeechThreshold.Set(threshold)
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(kind string, durationSeconds float64) {
	m.TranscriptionFailures.WithLabelValues(kind).Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordReply records a received and decoded reply
func (m *Metrics) RecordReply(requestSeconds float64, sizeBytes int, audioSeconds float64) {
	m.TurnRequestDuration.Observe(requestSeconds)
	m.ReplyBytes.Observe(float64(sizeBytes))
	m.ReplyAudioDuration.Observe(audioSeconds)
}

// RecordDecodeFailure increments the decode failures counter
func (m *Metrics) RecordDecodeFailure() {
	m.DecodeFailures.Inc()
}

// RecordPlayback records a playback attempt
func (m *Metrics) RecordPlayback(success bool, durationSeconds float64) {
	m.PlaybackDuration.Observe(durationSeconds)
	if !success {
		m.PlaybackFailures.Inc()
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
