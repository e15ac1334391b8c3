package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// WAV format codes from the RIFF specification.
const (
	wavFormatPCM   = 1
	wavFormatFloat = 3

	bitsPerSample = 16
)

// ErrNotWAV is returned by DecodeWAV when the input does not start with a
// RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE stream")

// DecodeWAV parses a RIFF/WAVE stream and returns its audio payload as a
// 16-bit PCM Frame. Accepted encodings are integer PCM (8- or 16-bit) and
// IEEE float32; 8-bit and float input is converted to 16-bit. Unknown chunks
// (LIST, fact, ...) are skipped. Mono and stereo streams of any sample rate
// are accepted; use StereoToMono and ResampleMono16 to normalize afterwards.
func DecodeWAV(r io.Reader) (Frame, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Frame{}, fmt.Errorf("audio: read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Frame{}, ErrNotWAV
	}

	var (
		format     uint16
		channels   uint16
		sampleRate uint32
		bits       uint16
		haveFmt    bool
	)

	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r, chunkHeader[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Frame{}, errors.New("audio: wav stream has no data chunk")
			}
			return Frame{}, fmt.Errorf("audio: read chunk header: %w", err)
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return Frame{}, fmt.Errorf("audio: fmt chunk too small (%d bytes)", chunkSize)
			}
			fmtData := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, fmtData); err != nil {
				return Frame{}, fmt.Errorf("audio: read fmt chunk: %w", err)
			}
			format = binary.LittleEndian.Uint16(fmtData[0:2])
			channels = binary.LittleEndian.Uint16(fmtData[2:4])
			sampleRate = binary.LittleEndian.Uint32(fmtData[4:8])
			bits = binary.LittleEndian.Uint16(fmtData[14:16])
			haveFmt = true
			if chunkSize%2 == 1 {
				if err := skipBytes(r, 1); err != nil {
					return Frame{}, err
				}
			}

		case "data":
			if !haveFmt {
				return Frame{}, errors.New("audio: data chunk before fmt chunk")
			}
			if channels != 1 && channels != 2 {
				return Frame{}, fmt.Errorf("audio: unsupported channel count %d", channels)
			}
			raw := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, raw); err != nil {
				return Frame{}, fmt.Errorf("audio: read data chunk: %w", err)
			}
			pcm, err := toPCM16(raw, format, bits)
			if err != nil {
				return Frame{}, err
			}
			return Frame{
				Data:       pcm,
				SampleRate: int(sampleRate),
				Channels:   int(channels),
			}, nil

		default:
			// Skip unknown chunks, honoring RIFF word alignment.
			skip := int64(chunkSize)
			if chunkSize%2 == 1 {
				skip++
			}
			if err := skipBytes(r, skip); err != nil {
				return Frame{}, err
			}
		}
	}
}

// toPCM16 converts a raw data chunk payload into 16-bit LE PCM.
func toPCM16(raw []byte, format, bits uint16) ([]byte, error) {
	switch {
	case format == wavFormatPCM && bits == 16:
		return raw, nil

	case format == wavFormatPCM && bits == 8:
		// 8-bit WAV samples are unsigned, centered at 128.
		out := make([]byte, len(raw)*2)
		for i, b := range raw {
			s := (int16(b) - 128) << 8
			out[i*2] = byte(s)
			out[i*2+1] = byte(s >> 8)
		}
		return out, nil

	case format == wavFormatFloat && bits == 32:
		samples := len(raw) / 4
		out := make([]byte, samples*2)
		for i := range samples {
			f := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4 : i*4+4]))
			s := clampToInt16(float64(f) * 32767)
			out[i*2] = byte(s)
			out[i*2+1] = byte(s >> 8)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("audio: unsupported wav encoding (format=%d, bits=%d)", format, bits)
	}
}

// EncodeWAV wraps a 16-bit PCM frame in a standard 44-byte RIFF/WAV
// container and writes it to w.
func EncodeWAV(w io.Writer, f Frame) error {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return fmt.Errorf("audio: invalid frame format (rate=%d, channels=%d)", f.SampleRate, f.Channels)
	}
	byteRate := f.SampleRate * f.Channels * bitsPerSample / 8
	blockAlign := f.Channels * bitsPerSample / 8
	dataSize := len(f.Data)

	buf := make([]byte, 44)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("audio: write wav header: %w", err)
	}
	if _, err := w.Write(f.Data); err != nil {
		return fmt.Errorf("audio: write wav data: %w", err)
	}
	return nil
}

func skipBytes(r io.Reader, n int64) error {
	if _, err := io.CopyN(io.Discard, r, n); err != nil {
		return fmt.Errorf("audio: skip chunk: %w", err)
	}
	return nil
}

func clampToInt16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
