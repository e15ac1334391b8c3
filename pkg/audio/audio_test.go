package audio_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/foyerlabs/foyer/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestStereoToMono(t *testing.T) {
	// Two stereo frames: L=100,R=200 and L=-100,R=-200
	stereo := samplesToBytes([]int16{100, 200, -100, -200})
	mono := audio.StereoToMono(stereo)
	got := bytesToSamples(mono)
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResampleMono16_Identity(t *testing.T) {
	pcm := samplesToBytes([]int16{1, 2, 3, 4})
	got := audio.ResampleMono16(pcm, 16000, 16000)
	if !bytes.Equal(got, pcm) {
		t.Errorf("identity resample changed data: got %v, want %v", got, pcm)
	}
}

func TestResampleMono16_Halving(t *testing.T) {
	// 8 samples at 32 kHz -> 4 samples at 16 kHz.
	pcm := samplesToBytes([]int16{0, 100, 200, 300, 400, 500, 600, 700})
	got := audio.ResampleMono16(pcm, 32000, 16000)
	samples := bytesToSamples(got)
	if len(samples) != 4 {
		t.Fatalf("sample count: got %d, want 4", len(samples))
	}
	// Downsampling by 2 picks every other source position.
	want := []int16{0, 200, 400, 600}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, samples[i], want[i])
		}
	}
}

func TestFloat32RoundTrip(t *testing.T) {
	pcm := samplesToBytes([]int16{0, 16384, -16384, 32767, -32768})
	f := audio.Float32Samples(pcm)
	back := bytesToSamples(audio.FromFloat32(f))
	orig := bytesToSamples(pcm)
	for i := range orig {
		diff := int(back[i]) - int(orig[i])
		if diff < -1 || diff > 1 {
			t.Errorf("sample %d: got %d, want %d (±1)", i, back[i], orig[i])
		}
	}
}

func TestFrameDuration(t *testing.T) {
	f := audio.Frame{Data: make([]byte, 32000), SampleRate: 16000, Channels: 1}
	if got := f.Duration(); got != time.Second {
		t.Errorf("duration: got %v, want %v", got, time.Second)
	}
	stereo := audio.Frame{Data: make([]byte, 64000), SampleRate: 16000, Channels: 2}
	if got := stereo.Duration(); got != time.Second {
		t.Errorf("stereo duration: got %v, want %v", got, time.Second)
	}
}

func TestEncodeDecodeWAV(t *testing.T) {
	orig := audio.Frame{
		Data:       samplesToBytes([]int16{0, 1000, -1000, 32767, -32768}),
		SampleRate: 16000,
		Channels:   1,
	}

	var buf bytes.Buffer
	if err := audio.EncodeWAV(&buf, orig); err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := audio.DecodeWAV(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SampleRate != orig.SampleRate {
		t.Errorf("sample rate: got %d, want %d", got.SampleRate, orig.SampleRate)
	}
	if got.Channels != orig.Channels {
		t.Errorf("channels: got %d, want %d", got.Channels, orig.Channels)
	}
	if !bytes.Equal(got.Data, orig.Data) {
		t.Errorf("data mismatch: got %v, want %v", bytesToSamples(got.Data), bytesToSamples(orig.Data))
	}
}

func TestDecodeWAV_Float32(t *testing.T) {
	// Hand-build a float32 WAV with two samples: 0.5 and -0.5.
	var data bytes.Buffer
	binary.Write(&data, binary.LittleEndian, float32(0.5))
	binary.Write(&data, binary.LittleEndian, float32(-0.5))

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(3)) // IEEE float
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(16000))
	binary.Write(&buf, binary.LittleEndian, uint32(16000*4))
	binary.Write(&buf, binary.LittleEndian, uint16(4))
	binary.Write(&buf, binary.LittleEndian, uint16(32))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())

	got, err := audio.DecodeWAV(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	samples := bytesToSamples(got.Data)
	if len(samples) != 2 {
		t.Fatalf("sample count: got %d, want 2", len(samples))
	}
	wantHigh := int16(math.Round(0.5 * 32767))
	if samples[0] != wantHigh || samples[1] != -wantHigh {
		t.Errorf("samples: got %v, want [%d %d]", samples, wantHigh, -wantHigh)
	}
}

func TestDecodeWAV_SkipsUnknownChunks(t *testing.T) {
	pcm := samplesToBytes([]int16{42, -42})

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // size unused by the decoder
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(8000))
	binary.Write(&buf, binary.LittleEndian, uint32(16000))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	// A LIST chunk with an odd payload size exercises the padding rule.
	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(3))
	buf.Write([]byte{1, 2, 3, 0})
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	got, err := audio.DecodeWAV(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SampleRate != 8000 {
		t.Errorf("sample rate: got %d, want 8000", got.SampleRate)
	}
	if !bytes.Equal(got.Data, pcm) {
		t.Errorf("data mismatch after skipping LIST chunk")
	}
}

func TestDecodeWAV_RejectsNonWAV(t *testing.T) {
	_, err := audio.DecodeWAV(bytes.NewReader([]byte("OggS this is not a wav file at all")))
	if !errors.Is(err, audio.ErrNotWAV) {
		t.Errorf("error: got %v, want ErrNotWAV", err)
	}
}

func TestToMono16k(t *testing.T) {
	// Stereo 32 kHz input: downmix then halve the rate.
	stereo := samplesToBytes([]int16{100, 200, 300, 400, 500, 600, 700, 800})
	f := audio.Frame{Data: stereo, SampleRate: 32000, Channels: 2}
	got := audio.ToMono16k(f)
	if got.SampleRate != 16000 || got.Channels != 1 {
		t.Fatalf("format: got %d/%dch, want 16000/1ch", got.SampleRate, got.Channels)
	}
	if got.Samples() != 2 {
		t.Errorf("samples: got %d, want 2", got.Samples())
	}
}
