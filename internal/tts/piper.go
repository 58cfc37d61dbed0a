package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voyxa/voice-webhook/internal/audio"
	"github.com/voyxa/voice-webhook/internal/config"
)

// PiperClient implements Synthesizer against a Piper server speaking the
// Wyoming protocol. Each event on the wire is:
//
//	<json_length> <payload_length>\n
//	<json_bytes>\n
//	<payload_bytes>   (if payload_length > 0)
type PiperClient struct {
	endpoint string
	voice    string
	timeout  time.Duration
	dialer   net.Dialer
}

// NewPiperClient creates a new Piper TTS client
func NewPiperClient(cfg *config.Config) *PiperClient {
	endpoint := strings.TrimPrefix(cfg.PiperEndpoint, "tcp://")
	return &PiperClient{
		endpoint: endpoint,
		voice:    cfg.PiperVoice,
		timeout:  cfg.UpstreamTimeoutDuration(),
		dialer:   net.Dialer{Timeout: 10 * time.Second},
	}
}

// Name returns the backend identifier
func (c *PiperClient) Name() string { return config.TTSPiper }

// Synthesize sends text to Piper and collects the PCM it streams back
func (c *PiperClient) Synthesize(ctx context.Context, text string) (*Speech, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to piper: %w", err)
	}
	defer conn.Close()

	timeout := c.timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)

	synth := wyomingEvent{
		Type: "synthesize",
		Data: map[string]any{
			"text":  text,
			"voice": map[string]any{"name": c.voice},
		},
	}
	if err := writeEvent(conn, synth, nil); err != nil {
		return nil, fmt.Errorf("sending synthesize event: %w", err)
	}

	var (
		pcmBuf     bytes.Buffer
		sampleRate = 22050
		channels   = 1
		width      = 2
	)

	for {
		evt, payload, err := readEvent(conn)
		if err != nil {
			return nil, fmt.Errorf("reading piper event: %w", err)
		}

		switch evt.Type {
		case "audio-start":
			if rate, ok := evt.Data["rate"].(float64); ok {
				sampleRate = int(rate)
			}
			if ch, ok := evt.Data["channels"].(float64); ok {
				channels = int(ch)
			}
			if w, ok := evt.Data["width"].(float64); ok {
				width = int(w)
			}
			if width != 2 {
				return nil, fmt.Errorf("unsupported piper sample width %d", width)
			}

		case "audio-chunk":
			pcmBuf.Write(payload)

		case "audio-stop":
			log.Debug().Int("pcm_bytes", pcmBuf.Len()).Int("rate", sampleRate).Msg("Piper synthesis complete")
			samples, err := audio.BytesToSamples(pcmBuf.Bytes()[:pcmBuf.Len()&^1])
			if err != nil {
				return nil, err
			}
			samples = firstChannel(samples, channels)
			if len(samples) == 0 {
				return nil, ErrEmptyAudio
			}
			return &Speech{Samples: samples, SampleRate: sampleRate}, nil

		case "error":
			msg := "unknown error"
			if text, ok := evt.Data["text"].(string); ok {
				msg = text
			}
			return nil, fmt.Errorf("piper error: %s", msg)
		}
	}
}

// Close is a no-op; connections are per-request
func (c *PiperClient) Close() error { return nil }

// Check dials the server to confirm it is reachable
func (c *PiperClient) Check(ctx context.Context) (bool, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.endpoint)
	if err != nil {
		return false, fmt.Errorf("connecting to piper: %w", err)
	}
	conn.Close()
	return true, nil
}

// firstChannel keeps one channel of interleaved samples
func firstChannel(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	mono := make([]int16, 0, len(samples)/channels)
	for i := 0; i+channels <= len(samples); i += channels {
		mono = append(mono, samples[i])
	}
	return mono
}

// Upper bounds on a single Wyoming event
const (
	maxEventJSON    = 1 << 20
	maxEventPayload = 8 << 20
)

type wyomingEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

func writeEvent(w io.Writer, evt wyomingEvent, payload []byte) error {
	jsonBytes, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d\n", len(jsonBytes), len(payload))
	buf.Write(jsonBytes)
	buf.WriteByte('\n')
	buf.Write(payload)

	_, err = w.Write(buf.Bytes())
	return err
}

func readEvent(r io.Reader) (*wyomingEvent, []byte, error) {
	headerBuf := make([]byte, 0, 64)
	oneByte := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, oneByte); err != nil {
			return nil, nil, fmt.Errorf("reading header: %w", err)
		}
		if oneByte[0] == '\n' {
			break
		}
		headerBuf = append(headerBuf, oneByte[0])
		if len(headerBuf) > 64 {
			return nil, nil, fmt.Errorf("wyoming header too long")
		}
	}

	parts := strings.Fields(string(headerBuf))
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("invalid wyoming header: %q", string(headerBuf))
	}
	jsonLen, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, nil, fmt.Errorf("parsing json_length: %w", err)
	}
	payloadLen, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, nil, fmt.Errorf("parsing payload_length: %w", err)
	}
	if jsonLen < 0 || jsonLen > maxEventJSON {
		return nil, nil, fmt.Errorf("wyoming json_length %d out of range", jsonLen)
	}
	if payloadLen < 0 || payloadLen > maxEventPayload {
		return nil, nil, fmt.Errorf("wyoming payload_length %d out of range", payloadLen)
	}

	// JSON is followed by a newline
	jsonBuf := make([]byte, jsonLen+1)
	if _, err := io.ReadFull(r, jsonBuf); err != nil {
		return nil, nil, fmt.Errorf("reading json: %w", err)
	}

	var evt wyomingEvent
	if err := json.Unmarshal(jsonBuf[:jsonLen], &evt); err != nil {
		return nil, nil, fmt.Errorf("unmarshalling event: %w", err)
	}

	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, nil, fmt.Errorf("reading payload: %w", err)
		}
	}

	return &evt, payload, nil
}
