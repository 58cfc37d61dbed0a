package webhook

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/voyxa/voice-webhook/internal/audio"
	"github.com/voyxa/voice-webhook/internal/audiostore"
	"github.com/voyxa/voice-webhook/internal/dialogue"
	"github.com/voyxa/voice-webhook/internal/observability"
	"github.com/voyxa/voice-webhook/internal/orchestrator"
	"github.com/voyxa/voice-webhook/internal/tts"
)

// echoGenerator replies with the transcript so tests can tell turns apart
type echoGenerator struct{}

func (echoGenerator) Name() string { return "echo" }

func (echoGenerator) Generate(ctx context.Context, prompt string, opts dialogue.Options) (string, error) {
	return "you said " + prompt, nil
}

// lengthSynthesizer encodes the text length into the samples
type lengthSynthesizer struct{}

func (lengthSynthesizer) Name() string { return "length" }

func (lengthSynthesizer) Synthesize(ctx context.Context, text string) (*tts.Speech, error) {
	samples := make([]int16, len(text)*10)
	for i := range samples {
		samples[i] = int16(i % 1000)
	}
	return &tts.Speech{Samples: samples, SampleRate: 16000}, nil
}

func (lengthSynthesizer) Close() error { return nil }

type stubDecider struct {
	result orchestrator.Result
	events []orchestrator.CallEvent
	mu     sync.Mutex
}

func (s *stubDecider) Decide(ctx context.Context, event orchestrator.CallEvent) orchestrator.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.result
}

type element struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Text    string     `xml:",chardata"`
	Inner   []element  `xml:",any"`
}

type twimlResponse struct {
	XMLName xml.Name  `xml:"Response"`
	Verbs   []element `xml:",any"`
}

func (e element) attr(name string) string {
	for _, a := range e.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func newTestServer(t *testing.T, decider Decider, opts Options) (*httptest.Server, *audiostore.Store) {
	t.Helper()
	store, err := audiostore.New(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("audiostore.New: %v", err)
	}
	if decider == nil {
		decider = orchestrator.New(echoGenerator{}, lengthSynthesizer{}, store, dialogue.DefaultOptions())
	}
	srv := httptest.NewServer(NewRouter(decider, store, opts, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func postForm(t *testing.T, target string, form url.Values) (*http.Response, twimlResponse) {
	t.Helper()
	resp, err := http.PostForm(target, form)
	if err != nil {
		t.Fatalf("POST %s: %v", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/xml" {
		t.Errorf("Expected text/xml, got %q", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	var doc twimlResponse
	if err := xml.Unmarshal(body, &doc); err != nil {
		t.Fatalf("unmarshal %q: %v", body, err)
	}
	return resp, doc
}

func names(doc twimlResponse) string {
	var parts []string
	for _, v := range doc.Verbs {
		parts = append(parts, v.XMLName.Local)
	}
	return strings.Join(parts, ",")
}

func TestGreeting(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{})

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != Greeting {
		t.Errorf("Unexpected greeting %q", body)
	}
}

func TestIncomingCall(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{Voice: "alice"})

	_, doc := postForm(t, srv.URL+"/", url.Values{"CallSid": {"CA1"}})

	if names(doc) != "Gather" {
		t.Fatalf("Expected Gather, got %s", names(doc))
	}
	gather := doc.Verbs[0]
	if gather.attr("timeout") != "10" || gather.attr("action") != "/gather" || gather.attr("input") != "speech" {
		t.Errorf("Unexpected gather attributes %+v", gather.Attrs)
	}
	if len(gather.Inner) != 1 || gather.Inner[0].Text != "Welcome to Voyxa. Please say something." {
		t.Errorf("Unexpected gather content %+v", gather.Inner)
	}
}

func TestGather_EmptyTranscript(t *testing.T) {
	for name, form := range map[string]url.Values{
		"empty":  {"SpeechResult": {""}},
		"absent": {},
	} {
		t.Run(name, func(t *testing.T) {
			srv, store := newTestServer(t, nil, Options{})

			_, doc := postForm(t, srv.URL+"/gather", form)

			if names(doc) != "Say" {
				t.Fatalf("Expected only Say, got %s", names(doc))
			}
			if doc.Verbs[0].Text != "I didn't get that. Please say something." {
				t.Errorf("Unexpected message %q", doc.Verbs[0].Text)
			}
			if n, _ := store.Count(); n != 0 {
				t.Errorf("Expected no audio written, got %d", n)
			}
		})
	}
}

func TestGather_Goodbye(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{})

	_, doc := postForm(t, srv.URL+"/gather", url.Values{"SpeechResult": {"That's great, goodbye!"}})

	if names(doc) != "Say,Hangup" {
		t.Fatalf("Expected Say,Hangup, got %s", names(doc))
	}
	if doc.Verbs[0].Text != "Goodbye! Have a great day." {
		t.Errorf("Unexpected farewell %q", doc.Verbs[0].Text)
	}
}

func TestGather_ReplyIsPlayableFromPlayURL(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{})

	_, doc := postForm(t, srv.URL+"/gather", url.Values{"SpeechResult": {"what time is it"}})

	if names(doc) != "Play,Gather" {
		t.Fatalf("Expected Play,Gather, got %s", names(doc))
	}
	play := doc.Verbs[0]
	if play.attr("loop") != "1" {
		t.Errorf("Expected loop 1, got %q", play.attr("loop"))
	}
	if !strings.HasPrefix(play.Text, srv.URL+"/") || !strings.HasSuffix(play.Text, ".wav") {
		t.Fatalf("Unexpected play url %q", play.Text)
	}
	if g := doc.Verbs[1]; g.attr("action") != "/gather" || g.attr("timeout") != "10" {
		t.Errorf("Unexpected gather attributes %+v", g.Attrs)
	}

	resp, err := http.Get(play.Text)
	if err != nil {
		t.Fatalf("GET audio: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Expected audio/wav, got %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) < 44 || string(body[:4]) != "RIFF" || string(body[8:12]) != "WAVE" {
		t.Errorf("Expected a WAV file, got %d bytes", len(body))
	}
}

func TestGather_PublicBaseURL(t *testing.T) {
	decider := &stubDecider{result: orchestrator.Reply("x.wav", "hi")}
	srv, _ := newTestServer(t, decider, Options{PublicBaseURL: "https://voyxa.example.com/"})

	_, doc := postForm(t, srv.URL+"/gather", url.Values{"SpeechResult": {"hi"}, "CallSid": {"CA9"}})

	if got := doc.Verbs[0].Text; got != "https://voyxa.example.com/x.wav" {
		t.Errorf("Unexpected play url %q", got)
	}
	if decider.events[0].Kind != orchestrator.GatheredSpeech || decider.events[0].Transcript != "hi" {
		t.Errorf("Unexpected event %+v", decider.events[0])
	}
}

func TestGather_ForwardedProto(t *testing.T) {
	decider := &stubDecider{result: orchestrator.Reply("x.wav", "hi")}
	srv, _ := newTestServer(t, decider, Options{})

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/gather", strings.NewReader("SpeechResult=hi"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Host = "voyxa.example.com"

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	var doc twimlResponse
	body, _ := io.ReadAll(resp.Body)
	if err := xml.Unmarshal(body, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := doc.Verbs[0].Text; got != "https://voyxa.example.com/x.wav" {
		t.Errorf("Unexpected play url %q", got)
	}
}

func TestGather_RenderFailureStillSpeaks(t *testing.T) {
	decider := &stubDecider{result: orchestrator.Result{Outcome: orchestrator.Outcome(99)}}
	srv, _ := newTestServer(t, decider, Options{})

	_, doc := postForm(t, srv.URL+"/gather", url.Values{"SpeechResult": {"hi"}})

	if names(doc) != "Say" || doc.Verbs[0].Text != orchestrator.SynthesisErrorMessage {
		t.Errorf("Expected fallback Say, got %+v", doc)
	}
}

func TestGather_ConcurrentTurnsGetDistinctAudio(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{})

	transcripts := []string{"a", "bb", "ccc", "dddd", "eeeee", "ffffff", "ggggggg", "hhhhhhhh"}
	urls := make([]string, len(transcripts))

	var wg sync.WaitGroup
	for i, transcript := range transcripts {
		wg.Add(1)
		go func(i int, transcript string) {
			defer wg.Done()
			resp, err := http.PostForm(srv.URL+"/gather", url.Values{"SpeechResult": {transcript}})
			if err != nil {
				t.Errorf("POST: %v", err)
				return
			}
			defer resp.Body.Close()
			var doc twimlResponse
			body, _ := io.ReadAll(resp.Body)
			if err := xml.Unmarshal(body, &doc); err != nil || len(doc.Verbs) == 0 {
				t.Errorf("bad document %q", body)
				return
			}
			urls[i] = doc.Verbs[0].Text
		}(i, transcript)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for i, u := range urls {
		if u == "" {
			t.Fatalf("turn %d got no audio", i)
		}
		if seen[u] {
			t.Fatalf("Duplicate audio url %q", u)
		}
		seen[u] = true

		// Each file carries the length of its own reply
		resp, err := http.Get(u)
		if err != nil {
			t.Fatalf("GET %s: %v", u, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		samples, _, err := audio.DecodeWAV(bytes.NewReader(body))
		if err != nil {
			t.Fatalf("turn %d: decode: %v", i, err)
		}
		wantSamples := len("you said "+transcripts[i]) * 10
		if len(samples) != wantSamples {
			t.Errorf("turn %d: expected %d samples, got %d", i, wantSamples, len(samples))
		}
	}
}

func TestAudio_NotFoundAndTraversal(t *testing.T) {
	srv, store := newTestServer(t, nil, Options{})

	secret := filepath.Join(filepath.Dir(store.Dir()), "secret.wav")
	if err := os.WriteFile(secret, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, path := range []string{
		"/missing.wav",
		"/..%2Fsecret.wav",
		"/%2E%2E%2Fsecret.wav",
		"/..%5Csecret.wav",
		"/config.go",
		"/.pending-123",
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s: expected 404, got %d", path, resp.StatusCode)
		}
	}
}

func TestAudio_DeleteAfterServe(t *testing.T) {
	srv, store := newTestServer(t, nil, Options{DeleteAfterServe: true})

	name, err := store.Save([]int16{1, 2, 3, 4}, 16000)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	resp, err := http.Get(srv.URL + "/" + name)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	if _, err := os.Stat(filepath.Join(store.Dir(), name)); !os.IsNotExist(err) {
		t.Errorf("Expected file removed after serve, stat err = %v", err)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	ok := func(ctx context.Context) (bool, error) { return true, nil }
	srv, _ := newTestServer(t, nil, Options{
		MetricsEnabled:  true,
		ReadinessChecks: map[string]observability.HealthCheckFunc{"audio_store": ok},
	})

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}

func TestMetricsDisabled(t *testing.T) {
	srv, _ := newTestServer(t, nil, Options{})

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 with metrics disabled, got %d", resp.StatusCode)
	}
}
