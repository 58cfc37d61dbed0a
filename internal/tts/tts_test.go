package tts

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voyxa/voice-webhook/internal/audio"
	"github.com/voyxa/voice-webhook/internal/config"
	"github.com/voyxa/voice-webhook/internal/resilience"
)

func TestCartesiaClient_Synthesize(t *testing.T) {
	var got CartesiaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "cartesia-test" {
			t.Errorf("Unexpected X-API-Key %q", r.Header.Get("X-API-Key"))
		}
		if r.Header.Get("Cartesia-Version") == "" {
			t.Error("Expected Cartesia-Version header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write(pcmBytes([]int16{0, 1000, -1000, 32767}))
	}))
	defer srv.Close()

	c := NewCartesiaClient(&config.Config{
		CartesiaAPIKey:  "cartesia-test",
		CartesiaAPIURL:  srv.URL,
		CartesiaVoiceID: "voice-1",
		CartesiaModelID: "sonic-english",
	})

	speech, err := c.Synthesize(context.Background(), "Hello caller")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if speech.SampleRate != audio.SampleRate {
		t.Errorf("Expected rate %d, got %d", audio.SampleRate, speech.SampleRate)
	}
	if len(speech.Samples) != 4 || speech.Samples[3] != 32767 {
		t.Errorf("Unexpected samples %v", speech.Samples)
	}

	if got.Transcript != "Hello caller" || got.Voice.ID != "voice-1" || got.ModelID != "sonic-english" {
		t.Errorf("Unexpected request %+v", got)
	}
	if got.OutputFormat.Encoding != "pcm_s16le" || got.OutputFormat.SampleRate != audio.SampleRate {
		t.Errorf("Unexpected output format %+v", got.OutputFormat)
	}
}

func TestCartesiaClient_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   []byte
		want   error
		code   int
	}{
		{"server error", http.StatusInternalServerError, []byte("boom"), nil, 500},
		{"empty audio", http.StatusOK, nil, ErrEmptyAudio, 0},
		{"single byte", http.StatusOK, []byte{0x01}, ErrEmptyAudio, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write(tt.body)
			}))
			defer srv.Close()

			c := NewCartesiaClient(&config.Config{CartesiaAPIURL: srv.URL})
			_, err := c.Synthesize(context.Background(), "hi")
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if tt.code != 0 {
				var statusErr *resilience.StatusError
				if !errors.As(err, &statusErr) || statusErr.StatusCode != tt.code {
					t.Errorf("Expected StatusError %d, got %v", tt.code, err)
				}
			}
		})
	}
}

func TestCartesiaClient_EmptyText(t *testing.T) {
	c := NewCartesiaClient(&config.Config{CartesiaAPIURL: "http://127.0.0.1:0"})
	if _, err := c.Synthesize(context.Background(), "   "); !errors.Is(err, ErrEmptyText) {
		t.Errorf("Expected ErrEmptyText, got %v", err)
	}
}

func pcmBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}
	return out
}

// fakePiper accepts one connection and answers a synthesize event with the given events
func fakePiper(t *testing.T, respond func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		evt, _, err := readEvent(bufio.NewReader(conn))
		if err != nil {
			t.Errorf("fake piper read: %v", err)
			return
		}
		if evt.Type != "synthesize" {
			t.Errorf("Expected synthesize event, got %q", evt.Type)
		}
		if evt.Data["text"] != "Hello from piper" {
			t.Errorf("Unexpected text %v", evt.Data["text"])
		}
		respond(conn)
	}()

	return ln.Addr().String()
}

func TestPiperClient_Synthesize(t *testing.T) {
	addr := fakePiper(t, func(conn net.Conn) {
		writeEvent(conn, wyomingEvent{Type: "audio-start", Data: map[string]any{"rate": 22050, "width": 2, "channels": 1}}, nil)
		writeEvent(conn, wyomingEvent{Type: "audio-chunk"}, pcmBytes([]int16{1, 2, 3}))
		writeEvent(conn, wyomingEvent{Type: "audio-chunk"}, pcmBytes([]int16{4, 5}))
		writeEvent(conn, wyomingEvent{Type: "audio-stop"}, nil)
	})

	c := NewPiperClient(&config.Config{PiperEndpoint: "tcp://" + addr, PiperVoice: "en_US-lessac-medium"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	speech, err := c.Synthesize(ctx, "Hello from piper")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if speech.SampleRate != 22050 {
		t.Errorf("Expected rate 22050, got %d", speech.SampleRate)
	}
	if len(speech.Samples) != 5 || speech.Samples[4] != 5 {
		t.Errorf("Unexpected samples %v", speech.Samples)
	}
}

func TestPiperClient_StereoDownmix(t *testing.T) {
	addr := fakePiper(t, func(conn net.Conn) {
		writeEvent(conn, wyomingEvent{Type: "audio-start", Data: map[string]any{"rate": 16000, "width": 2, "channels": 2}}, nil)
		writeEvent(conn, wyomingEvent{Type: "audio-chunk"}, pcmBytes([]int16{10, -10, 20, -20}))
		writeEvent(conn, wyomingEvent{Type: "audio-stop"}, nil)
	})

	c := NewPiperClient(&config.Config{PiperEndpoint: addr})
	speech, err := c.Synthesize(context.Background(), "Hello from piper")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(speech.Samples) != 2 || speech.Samples[0] != 10 || speech.Samples[1] != 20 {
		t.Errorf("Expected left channel [10 20], got %v", speech.Samples)
	}
}

func TestPiperClient_ErrorEvent(t *testing.T) {
	addr := fakePiper(t, func(conn net.Conn) {
		writeEvent(conn, wyomingEvent{Type: "error", Data: map[string]any{"text": "voice not found"}}, nil)
	})

	c := NewPiperClient(&config.Config{PiperEndpoint: addr})
	_, err := c.Synthesize(context.Background(), "Hello from piper")
	if err == nil || err.Error() != "piper error: voice not found" {
		t.Errorf("Expected piper error, got %v", err)
	}
}

func TestPiperClient_Check(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()

	c := NewPiperClient(&config.Config{PiperEndpoint: addr})
	if ok, err := c.Check(context.Background()); !ok || err != nil {
		t.Errorf("Expected reachable piper, got %v %v", ok, err)
	}

	ln.Close()
	if ok, _ := c.Check(context.Background()); ok {
		t.Error("Expected closed listener to be unreachable")
	}
}

type countingSynth struct {
	calls int
	err   error
}

func (s *countingSynth) Name() string { return "counting" }
func (s *countingSynth) Close() error { return nil }
func (s *countingSynth) Synthesize(ctx context.Context, text string) (*Speech, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &Speech{Samples: []int16{1}, SampleRate: audio.SampleRate}, nil
}

func TestResilient_Synthesize(t *testing.T) {
	inner := &countingSynth{err: errors.New("connection refused")}
	r := NewResilient(inner, resilience.NewGuard(nil, &resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: time.Millisecond}))

	if _, err := r.Synthesize(context.Background(), "hi"); err == nil {
		t.Fatal("Expected error")
	}
	if inner.calls != 2 {
		t.Errorf("Expected 2 attempts for a network error, got %d", inner.calls)
	}

	inner.err = nil
	speech, err := r.Synthesize(context.Background(), "hi")
	if err != nil || len(speech.Samples) != 1 {
		t.Errorf("Expected success, got %v %v", speech, err)
	}
}

func TestNewFromConfig(t *testing.T) {
	s, err := NewFromConfig(&config.Config{TTSProvider: config.TTSPiper, PiperEndpoint: "localhost:10200"})
	if err != nil || s.Name() != "piper" {
		t.Errorf("Expected piper backend, got %v %v", s, err)
	}
	if _, err := NewFromConfig(&config.Config{TTSProvider: "festival"}); err == nil {
		t.Error("Expected error for unknown provider")
	}
}

func TestReadEvent_MalformedHeaders(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"negative json length", "-5 0\n{}\n"},
		{"negative payload length", "2 -1\n{}\n"},
		{"json length over limit", "1048577 0\n{}\n"},
		{"payload length over limit", "2 9999999999\n{}\n"},
		{"missing field", "12\n"},
		{"not numeric", "a b\n"},
		{"header too long", strings.Repeat("1", 100) + "\n"},
		{"truncated json", "20 0\n{}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := readEvent(strings.NewReader(tt.input)); err == nil {
				t.Errorf("Expected error for %q", tt.input)
			}
		})
	}
}

func TestPiperClient_MalformedHeaderFails(t *testing.T) {
	addr := fakePiper(t, func(conn net.Conn) {
		conn.Write([]byte("-5 0\n{}\n"))
	})

	c := NewPiperClient(&config.Config{PiperEndpoint: addr})
	if _, err := c.Synthesize(context.Background(), "Hello from piper"); err == nil {
		t.Error("Expected error for malformed wyoming header")
	}
}

func TestSynthesizers_UpstreamTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	addr := fakePiper(t, func(conn net.Conn) {
		// Hold the connection open without answering
		buf := make([]byte, 64)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	})

	cfg := &config.Config{CartesiaAPIURL: srv.URL, PiperEndpoint: addr, UpstreamTimeout: 1}
	for _, synth := range []Synthesizer{NewCartesiaClient(cfg), NewPiperClient(cfg)} {
		t.Run(synth.Name(), func(t *testing.T) {
			start := time.Now()
			if _, err := synth.Synthesize(context.Background(), "Hello from piper"); err == nil {
				t.Fatal("Expected timeout error")
			}
			if elapsed := time.Since(start); elapsed > 4*time.Second {
				t.Errorf("Expected request to stop near the 1s timeout, took %v", elapsed)
			}
		})
	}
}
