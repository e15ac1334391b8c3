// Package npy reads and writes one-dimensional float vectors in the NumPy
// .npy format (version 1.0), the artifact format used for voice fingerprints.
//
// Only the subset needed for fingerprint files is implemented: little-endian
// float32 or float64 arrays, C order, one dimension. Anything else is
// rejected with a descriptive error so that a malformed enrollment artifact
// surfaces as a load failure rather than silent garbage.
package npy

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var magic = []byte("\x93NUMPY")

// ReadVector decodes a 1-D float32/float64 .npy stream into float32 values.
func ReadVector(r io.Reader) ([]float32, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("npy: read magic: %w", err)
	}
	if string(header[:6]) != string(magic) {
		return nil, fmt.Errorf("npy: bad magic %q", header[:6])
	}
	major := header[6]

	var headerLen int
	switch major {
	case 1:
		var l uint16
		if err := binary.Read(r, binary.LittleEndian, &l); err != nil {
			return nil, fmt.Errorf("npy: read header length: %w", err)
		}
		headerLen = int(l)
	case 2, 3:
		var l uint32
		if err := binary.Read(r, binary.LittleEndian, &l); err != nil {
			return nil, fmt.Errorf("npy: read header length: %w", err)
		}
		headerLen = int(l)
	default:
		return nil, fmt.Errorf("npy: unsupported format version %d", major)
	}

	dictBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(r, dictBytes); err != nil {
		return nil, fmt.Errorf("npy: read header dict: %w", err)
	}
	descr, fortran, count, err := parseHeader(string(dictBytes))
	if err != nil {
		return nil, err
	}
	if fortran {
		return nil, fmt.Errorf("npy: fortran order arrays are not supported")
	}

	switch descr {
	case "<f4":
		raw := make([]byte, count*4)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("npy: read %d float32 values: %w", count, err)
		}
		out := make([]float32, count)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4 : i*4+4]))
		}
		return out, nil

	case "<f8":
		raw := make([]byte, count*8)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("npy: read %d float64 values: %w", count, err)
		}
		out := make([]float32, count)
		for i := range out {
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8 : i*8+8])))
		}
		return out, nil

	default:
		return nil, fmt.Errorf("npy: unsupported dtype %q (want <f4 or <f8)", descr)
	}
}

// WriteVector encodes the vector as a version 1.0 .npy stream with dtype <f4.
func WriteVector(w io.Writer, vec []float32) error {
	dict := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d,), }", len(vec))
	// Total header (magic + version + length field + dict + padding + '\n')
	// must be a multiple of 64 bytes.
	unpadded := len(magic) + 2 + 2 + len(dict) + 1
	pad := (64 - unpadded%64) % 64
	dict = dict + strings.Repeat(" ", pad) + "\n"

	if _, err := w.Write(magic); err != nil {
		return fmt.Errorf("npy: write magic: %w", err)
	}
	if _, err := w.Write([]byte{1, 0}); err != nil {
		return fmt.Errorf("npy: write version: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(dict))); err != nil {
		return fmt.Errorf("npy: write header length: %w", err)
	}
	if _, err := io.WriteString(w, dict); err != nil {
		return fmt.Errorf("npy: write header dict: %w", err)
	}

	raw := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(raw[i*4:i*4+4], math.Float32bits(v))
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("npy: write data: %w", err)
	}
	return nil
}

// parseHeader extracts descr, fortran_order and the 1-D element count from
// the python-dict header literal.
func parseHeader(dict string) (descr string, fortran bool, count int, err error) {
	descr, err = extractQuoted(dict, "descr")
	if err != nil {
		return "", false, 0, err
	}

	switch {
	case strings.Contains(dict, "'fortran_order': False"):
		fortran = false
	case strings.Contains(dict, "'fortran_order': True"):
		fortran = true
	default:
		return "", false, 0, fmt.Errorf("npy: header missing fortran_order: %q", dict)
	}

	shapeStart := strings.Index(dict, "'shape':")
	if shapeStart < 0 {
		return "", false, 0, fmt.Errorf("npy: header missing shape: %q", dict)
	}
	open := strings.Index(dict[shapeStart:], "(")
	closing := strings.Index(dict[shapeStart:], ")")
	if open < 0 || closing < 0 || closing < open {
		return "", false, 0, fmt.Errorf("npy: malformed shape in header: %q", dict)
	}
	shape := dict[shapeStart+open+1 : shapeStart+closing]
	dims := 0
	for _, part := range strings.Split(shape, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, convErr := strconv.Atoi(part)
		if convErr != nil {
			return "", false, 0, fmt.Errorf("npy: bad shape dimension %q", part)
		}
		dims++
		count = n
	}
	if dims != 1 {
		return "", false, 0, fmt.Errorf("npy: want a 1-D array, got %d dimensions", dims)
	}
	return descr, fortran, count, nil
}

func extractQuoted(dict, key string) (string, error) {
	idx := strings.Index(dict, "'"+key+"':")
	if idx < 0 {
		return "", fmt.Errorf("npy: header missing %s: %q", key, dict)
	}
	rest := dict[idx+len(key)+3:]
	first := strings.Index(rest, "'")
	if first < 0 {
		return "", fmt.Errorf("npy: malformed %s in header", key)
	}
	second := strings.Index(rest[first+1:], "'")
	if second < 0 {
		return "", fmt.Errorf("npy: malformed %s in header", key)
	}
	return rest[first+1 : first+1+second], nil
}
