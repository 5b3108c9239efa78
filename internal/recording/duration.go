package recording

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"time"
)

// BytesPerSecond is the fixed PCM rate assumed when a file carries no
// usable header: 8 kHz, 16-bit, mono.
const BytesPerSecond = 16000

const wavHeaderSize = 44

// EstimateDuration converts a raw byte count at BytesPerSecond to a duration.
func EstimateDuration(size int64) time.Duration {
	if size <= 0 {
		return 0
	}
	return time.Duration(size) * time.Second / BytesPerSecond
}

// Measure returns the size of the file at path and its playing time. A RIFF
// header supplies the byte rate and data length when present.
func Measure(path string) (int64, time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return 0, 0, err
	}
	size := fi.Size()
	if rate, data, err := readWAVHeader(f); err == nil && rate > 0 {
		n := int64(data)
		// Streamed files may leave the data length unset.
		if n == 0 || n > size {
			n = max(size-wavHeaderSize, 0)
		}
		return size, time.Duration(n) * time.Second / time.Duration(rate), nil
	}
	return size, EstimateDuration(size), nil
}

var errNotWAV = errors.New("recording: not a RIFF/WAVE file")

// maxFmtChunk bounds the fmt chunk; WAVE_FORMAT_EXTENSIBLE needs 40 bytes.
const maxFmtChunk = 64

// readWAVHeader walks RIFF chunks until it has the fmt byte rate and the
// data chunk length.
func readWAVHeader(r io.Reader) (byteRate uint32, dataLen uint32, err error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return 0, 0, err
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return 0, 0, errNotWAV
	}
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return 0, 0, err
		}
		id := string(hdr[0:4])
		n := binary.LittleEndian.Uint32(hdr[4:8])
		switch id {
		case "fmt ":
			if n < 16 || n > maxFmtChunk {
				return 0, 0, errNotWAV
			}
			var body [16]byte
			if _, err := io.ReadFull(r, body[:]); err != nil {
				return 0, 0, err
			}
			byteRate = binary.LittleEndian.Uint32(body[8:12])
			if _, err := io.CopyN(io.Discard, r, int64(n)-16); err != nil {
				return 0, 0, err
			}
		case "data":
			if byteRate == 0 {
				return 0, 0, errNotWAV
			}
			return byteRate, n, nil
		default:
			if _, err := io.CopyN(io.Discard, r, int64(n)+int64(n&1)); err != nil {
				return 0, 0, err
			}
		}
		if id == "fmt " && n&1 == 1 {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil {
				return 0, 0, err
			}
		}
	}
}
