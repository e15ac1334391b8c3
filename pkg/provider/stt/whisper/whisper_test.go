package whisper_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/foyerlabs/foyer/pkg/audio"
	"github.com/foyerlabs/foyer/pkg/provider/stt/whisper"
)

func testFrame() audio.Frame {
	// 100 ms of 16 kHz mono silence.
	return audio.Frame{
		Data:       make([]byte, 16000/10*2),
		SampleRate: 16000,
		Channels:   1,
	}
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	var gotLanguage, gotModel, gotFilename string
	var gotWAVHeader []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			t.Errorf("want path /inference, got %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotLanguage = r.FormValue("language")
		gotModel = r.FormValue("model")

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			gotFilename = header.Filename
			gotWAVHeader = make([]byte, 4)
			file.Read(gotWAVHeader)
			file.Close()
		}

		json.NewEncoder(w).Encode(map[string]string{"text": "  Bonjour papa  "})
	}))
	defer srv.Close()

	p, err := whisper.New(srv.URL, whisper.WithModel("base"), whisper.WithLanguage("fr"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	transcript, err := p.Transcribe(context.Background(), testFrame())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if transcript.Text != "Bonjour papa" {
		t.Errorf("want trimmed text Bonjour papa, got %q", transcript.Text)
	}
	if gotLanguage != "fr" {
		t.Errorf("want language field fr, got %q", gotLanguage)
	}
	if gotModel != "base" {
		t.Errorf("want model field base, got %q", gotModel)
	}
	if gotFilename != "audio.wav" {
		t.Errorf("want upload filename audio.wav, got %q", gotFilename)
	}
	if string(gotWAVHeader) != "RIFF" {
		t.Errorf("want RIFF WAV upload, got header %q", gotWAVHeader)
	}
}

func TestTranscribeServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), testFrame()); err == nil {
		t.Fatal("want error on server failure, got nil")
	}
}

func TestNewRequiresServerURL(t *testing.T) {
	t.Parallel()

	if _, err := whisper.New(""); err == nil {
		t.Fatal("want error for empty serverURL, got nil")
	}
}

func TestModelID(t *testing.T) {
	t.Parallel()

	p, err := whisper.New("http://localhost:8001")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := p.ModelID(); got != "base" {
		t.Errorf("want default model base, got %q", got)
	}
}
