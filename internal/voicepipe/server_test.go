package voicepipe_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/foyerlabs/foyer/internal/voicepipe"
	"github.com/foyerlabs/foyer/pkg/audio"
	"github.com/foyerlabs/foyer/pkg/provider/stt"
	sttmock "github.com/foyerlabs/foyer/pkg/provider/stt/mock"
	"github.com/foyerlabs/foyer/pkg/provider/vad"
	vadmock "github.com/foyerlabs/foyer/pkg/provider/vad/mock"
	vpmock "github.com/foyerlabs/foyer/pkg/provider/voiceprint/mock"
)

type serverFixture struct {
	handler http.Handler
	prints  *voicepipe.Fingerprints
	enc     *vpmock.Encoder
	stt     *sttmock.Provider
}

// newServerFixture builds the full HTTP surface over the dad/mom table
// with a mock pipeline behind it. The default embedding identifies dad.
func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	prints := familyPrints(t)
	enc := &vpmock.Encoder{Embedding: []float32{1, 0, 0}}
	speaker := voicepipe.NewSpeakerIdentifier(enc, prints, 0.75, 0.60, []string{"mom", "dad"})
	audit := openAuditLog(t, filepath.Join(t.TempDir(), "access.jsonl"))

	sttProv := &sttmock.Provider{Result: stt.Transcript{Text: "bonjour tout le monde", Language: "fr"}}
	vadEng := &vadmock.Engine{Result: vad.Result{HasSpeech: true, SpeechRatio: 0.6}}

	pipe := voicepipe.NewPipeline(speaker, audit,
		voicepipe.WithVAD(vadEng),
		voicepipe.WithTranscriber(sttProv),
	)
	return &serverFixture{
		handler: voicepipe.NewServer(pipe, prints, nil).Handler(),
		prints:  prints,
		enc:     enc,
		stt:     sttProv,
	}
}

// wavRequest builds a multipart POST /voice/process request carrying frame
// encoded as a WAV file under the given field and file names.
func wavRequest(t *testing.T, field, filename string, frame audio.Frame) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if err := audio.EncodeWAV(fw, frame); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/voice/process", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serveRequest(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeInto(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
}

func TestVoiceServer_Process(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)
	rr := serveRequest(fx.handler, wavRequest(t, "file", "clip.wav", testFrame(16000, 1, 8000)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rr.Code, rr.Body)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var res voicepipe.Result
	decodeInto(t, rr, &res)
	if res.Status != voicepipe.StatusIdentified || res.UserID != "dad" {
		t.Errorf("result = %+v, want dad identified", res)
	}
	if res.Transcript != "bonjour tout le monde" {
		t.Errorf("Transcript = %q, want the mock transcript", res.Transcript)
	}
	if res.AudioDurationSeconds != 0.5 {
		t.Errorf("AudioDurationSeconds = %v, want 0.5", res.AudioDurationSeconds)
	}
}

func TestVoiceServer_ProcessFilenames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		field    string
		filename string
		wantCode int
	}{
		{"canonical", "file", "clip.wav", http.StatusOK},
		{"field name is irrelevant", "audio", "clip.wav", http.StatusOK},
		{"extension check ignores case", "file", "CLIP.WAV", http.StatusOK},
		{"mp3 rejected", "file", "clip.mp3", http.StatusBadRequest},
		{"missing extension rejected", "file", "clip", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fx := newServerFixture(t)
			rr := serveRequest(fx.handler, wavRequest(t, tt.field, tt.filename, testFrame(16000, 1, 8000)))

			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d, body %s", rr.Code, tt.wantCode, rr.Body)
			}
			if tt.wantCode == http.StatusBadRequest {
				var body map[string]string
				decodeInto(t, rr, &body)
				if body["error"] != "only WAV files are supported" {
					t.Errorf("error = %q, want the WAV-only message", body["error"])
				}
			}
		})
	}
}

func TestVoiceServer_ProcessRequiresExactlyOneFile(t *testing.T) {
	t.Parallel()

	build := func(t *testing.T, files int) *http.Request {
		t.Helper()
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		if err := mw.WriteField("note", "hello"); err != nil {
			t.Fatalf("write field: %v", err)
		}
		for i := 0; i < files; i++ {
			fw, err := mw.CreateFormFile("file", "clip.wav")
			if err != nil {
				t.Fatalf("create form file: %v", err)
			}
			if err := audio.EncodeWAV(fw, testFrame(16000, 1, 160)); err != nil {
				t.Fatalf("encode wav: %v", err)
			}
		}
		if err := mw.Close(); err != nil {
			t.Fatalf("close multipart writer: %v", err)
		}
		req := httptest.NewRequest(http.MethodPost, "/voice/process", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req
	}

	for _, files := range []int{0, 2} {
		fx := newServerFixture(t)
		rr := serveRequest(fx.handler, build(t, files))

		if rr.Code != http.StatusBadRequest {
			t.Errorf("%d files: status = %d, want 400", files, rr.Code)
			continue
		}
		var body map[string]string
		decodeInto(t, rr, &body)
		if body["error"] != "exactly one audio file is required" {
			t.Errorf("%d files: error = %q", files, body["error"])
		}
	}
}

func TestVoiceServer_ProcessCorruptPayload(t *testing.T) {
	t.Parallel()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "clip.wav")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.WriteString(fw, "definitely not RIFF data"); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/voice/process", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	fx := newServerFixture(t)
	rr := serveRequest(fx.handler, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500, body %s", rr.Code, rr.Body)
	}
	var resp map[string]string
	decodeInto(t, rr, &resp)
	if resp["error"] != "audio processing failed" {
		t.Errorf("error = %q, want audio processing failed", resp["error"])
	}
	if resp["detail"] == "" {
		t.Error("detail is empty, want the decode error")
	}
}

func TestVoiceServer_ProcessNotMultipart(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/voice/process", strings.NewReader(`{"audio":"nope"}`))
	req.Header.Set("Content-Type", "application/json")

	rr := serveRequest(fx.handler, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var body map[string]string
	decodeInto(t, rr, &body)
	if body["error"] != "invalid multipart form" {
		t.Errorf("error = %q, want invalid multipart form", body["error"])
	}
}

func TestVoiceServer_Reload(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)
	rr := serveRequest(fx.handler, httptest.NewRequest(http.MethodPost, "/voice/reload-embeddings", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"missing_users":[]`) {
		t.Errorf("body %s should carry missing_users as an empty array", rr.Body)
	}

	var resp struct {
		Status       string   `json:"status"`
		LoadedUsers  []string `json:"loaded_users"`
		MissingUsers []string `json:"missing_users"`
	}
	decodeInto(t, rr, &resp)
	if resp.Status != "reloaded" {
		t.Errorf("status = %q, want reloaded", resp.Status)
	}
	if !slices.Equal(resp.LoadedUsers, []string{"dad", "mom"}) {
		t.Errorf("loaded_users = %v, want [dad mom]", resp.LoadedUsers)
	}
}

func TestVoiceServer_Health(t *testing.T) {
	t.Parallel()

	t.Run("healthy answers 200", func(t *testing.T) {
		t.Parallel()
		fx := newServerFixture(t)
		rr := serveRequest(fx.handler, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		var doc voicepipe.HealthStatus
		decodeInto(t, rr, &doc)
		if doc.Status != "ok" {
			t.Errorf("health status = %q, want ok", doc.Status)
		}
	})

	t.Run("degraded still answers 200", func(t *testing.T) {
		t.Parallel()
		prints := newPrints(t, map[string][]float32{"dad": {1, 0, 0}}, "mom")
		speaker := voicepipe.NewSpeakerIdentifier(&vpmock.Encoder{}, prints, 0.75, 0.60, nil)
		audit := openAuditLog(t, filepath.Join(t.TempDir(), "a.jsonl"))
		pipe := voicepipe.NewPipeline(speaker, audit,
			voicepipe.WithVAD(&vadmock.Engine{}),
			voicepipe.WithTranscriber(&sttmock.Provider{}),
		)
		h := voicepipe.NewServer(pipe, prints, nil).Handler()

		rr := serveRequest(h, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
		var doc voicepipe.HealthStatus
		decodeInto(t, rr, &doc)
		if doc.Status != "degraded" || doc.SpeakerID != "degraded" {
			t.Errorf("health = %+v, want degraded speaker id", doc)
		}
	})

	t.Run("empty fingerprint table answers 503", func(t *testing.T) {
		t.Parallel()
		prints := newPrints(t, nil, "dad")
		speaker := voicepipe.NewSpeakerIdentifier(&vpmock.Encoder{}, prints, 0.75, 0.60, nil)
		audit := openAuditLog(t, filepath.Join(t.TempDir(), "a.jsonl"))
		pipe := voicepipe.NewPipeline(speaker, audit,
			voicepipe.WithVAD(&vadmock.Engine{}),
			voicepipe.WithTranscriber(&sttmock.Provider{}),
		)
		h := voicepipe.NewServer(pipe, prints, nil).Handler()

		rr := serveRequest(h, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rr.Code)
		}
	})
}

func TestVoiceServer_Probes(t *testing.T) {
	t.Parallel()

	fx := newServerFixture(t)

	if rr := serveRequest(fx.handler, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rr.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rr.Code)
	}
	if rr := serveRequest(fx.handler, httptest.NewRequest(http.MethodGet, "/readyz", nil)); rr.Code != http.StatusOK {
		t.Errorf("readyz status = %d, want 200", rr.Code)
	}

	empty := newPrints(t, nil, "dad")
	speaker := voicepipe.NewSpeakerIdentifier(&vpmock.Encoder{}, empty, 0.75, 0.60, nil)
	audit := openAuditLog(t, filepath.Join(t.TempDir(), "a.jsonl"))
	h := voicepipe.NewServer(voicepipe.NewPipeline(speaker, audit), empty, nil).Handler()

	if rr := serveRequest(h, httptest.NewRequest(http.MethodGet, "/readyz", nil)); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with empty table = %d, want 503", rr.Code)
	}
}
