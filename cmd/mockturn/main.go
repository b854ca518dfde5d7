// Command mockturn is a stand-in conversational service for local runs.
// POST /chat answers every message with a sine tone whose length grows
// with the message, streamed in chunks with an open-ended WAV header.
package main

import (
	"encoding/binary"
	"flag"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"time"
	"unicode/utf8"

	"github.com/bytedance/sonic"

	"github.com/skypro1111/voiceloop/internal/audio"
	"github.com/skypro1111/voiceloop/internal/turn"
)

const (
	toneFrequency = 440.0
	toneAmplitude = 0.3

	minReply     = 500 * time.Millisecond
	perCharacter = 60 * time.Millisecond
	maxReply     = 10 * time.Second
)

type mockServer struct {
	format     audio.Format
	chunkSize  int
	chunkDelay time.Duration
	logger     *slog.Logger
}

func main() {
	addr := flag.String("addr", ":8000", "Listen address")
	sampleRate := flag.Int("rate", 24000, "Reply sample rate")
	chunkSize := flag.Int("chunk", 4096, "Bytes per streamed chunk")
	chunkDelay := flag.Duration("delay", 20*time.Millisecond, "Pause between chunks")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	m := &mockServer{
		format:     audio.Format{SampleRate: *sampleRate, Channels: 1, BitDepth: 16},
		chunkSize:  *chunkSize,
		chunkDelay: *chunkDelay,
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/chat", m.handleChat)

	logger.Info("Mock turn service starting",
		slog.String("address", *addr),
		slog.String("endpoint", "POST /chat"),
	)

	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func (m *mockServer) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Error reading body", http.StatusBadRequest)
		return
	}

	var req turn.Request
	if err := sonic.Unmarshal(body, &req); err != nil || req.Message == "" {
		http.Error(w, "Expected JSON body with message and id", http.StatusBadRequest)
		return
	}

	reply, err := toneReply(m.format, replyDuration(req.Message))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.logger.Info("Turn received",
		slog.String("session", req.ID),
		slog.String("message", req.Message),
		slog.Int("reply_bytes", len(reply)),
	)

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for off := 0; off < len(reply); off += m.chunkSize {
		end := min(off+m.chunkSize, len(reply))
		if _, err := w.Write(reply[off:end]); err != nil {
			m.logger.Warn("Client went away", slog.String("error", err.Error()))
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if m.chunkDelay > 0 && end < len(reply) {
			select {
			case <-time.After(m.chunkDelay):
			case <-r.Context().Done():
				return
			}
		}
	}
}

// replyDuration scales the reply with the message length
func replyDuration(message string) time.Duration {
	d := minReply + time.Duration(utf8.RuneCountInString(message))*perCharacter
	return min(d, maxReply)
}

// toneReply renders a sine tone as a WAV whose sizes are left open, the
// way a streaming synthesizer writes its header before the audio exists
func toneReply(format audio.Format, duration time.Duration) ([]byte, error) {
	frames := int(int64(format.SampleRate) * int64(duration) / int64(time.Second))
	samples := make([]int16, frames*format.Channels)

	for i := 0; i < frames; i++ {
		v := int16(toneAmplitude * math.MaxInt16 * math.Sin(2*math.Pi*toneFrequency*float64(i)/float64(format.SampleRate)))
		for c := 0; c < format.Channels; c++ {
			samples[i*format.Channels+c] = v
		}
	}

	data, err := audio.EncodeWAV(format, audio.Int16ToBytes(samples))
	if err != nil {
		return nil, err
	}

	binary.LittleEndian.PutUint32(data[4:8], 0xFFFFFFFF)
	binary.LittleEndian.PutUint32(data[40:44], 0xFFFFFFFF)
	return data, nil
}
