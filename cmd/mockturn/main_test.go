package main

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/skypro1111/voiceloop/internal/audio"
)

func TestReplyDuration(t *testing.T) {
	tests := []struct {
		message string
		want    time.Duration
	}{
		{"hi", 620 * time.Millisecond},
		{"привіт", 860 * time.Millisecond},
		{strings.Repeat("a", 1000), maxReply},
	}

	for _, tt := range tests {
		if got := replyDuration(tt.message); got != tt.want {
			t.Errorf("replyDuration(%d runes) = %v, want %v", len([]rune(tt.message)), got, tt.want)
		}
	}
}

func TestHandleChatStreamsDecodableWAV(t *testing.T) {
	m := &mockServer{
		format:    audio.Format{SampleRate: 16000, Channels: 1, BitDepth: 16},
		chunkSize: 1000,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	srv := httptest.NewServer(http.HandlerFunc(m.handleChat))
	defer srv.Close()

	resp, err := http.Post(srv.URL, "application/json", bytes.NewBufferString(`{"message":"hi","id":"s-1"}`))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	playable, err := audio.NewAssembler(0).Assemble(resp.Body)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if playable.Duration() != 620*time.Millisecond {
		t.Errorf("Expected 620ms reply, got %v", playable.Duration())
	}
}

func TestHandleChatRejectsBadRequests(t *testing.T) {
	m := &mockServer{
		format:    audio.Format{SampleRate: 16000, Channels: 1, BitDepth: 16},
		chunkSize: 1000,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"get", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"not json", http.MethodPost, "hello", http.StatusBadRequest},
		{"empty message", http.MethodPost, `{"message":"","id":"x"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/chat", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			m.handleChat(rec, req)
			if rec.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}
