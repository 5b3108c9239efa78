// Package tts renders prompt text to audio files through hosted speech
// synthesis services.
package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
)

// DefaultSampleRate matches telephone-band PCM.
const DefaultSampleRate = 8000

// WriteWAV writes 16-bit mono PCM with a canonical 44-byte RIFF header.
func WriteWAV(w io.Writer, pcm []byte, sampleRate int) error {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	var hdr bytes.Buffer
	hdr.WriteString("RIFF")
	_ = binary.Write(&hdr, binary.LittleEndian, uint32(36+len(pcm)))
	hdr.WriteString("WAVE")
	hdr.WriteString("fmt ")
	_ = binary.Write(&hdr, binary.LittleEndian, uint32(16))
	_ = binary.Write(&hdr, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&hdr, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&hdr, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&hdr, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&hdr, binary.LittleEndian, uint16(channels*bitsPerSample/8))
	_ = binary.Write(&hdr, binary.LittleEndian, uint16(bitsPerSample))
	hdr.WriteString("data")
	_ = binary.Write(&hdr, binary.LittleEndian, uint32(len(pcm)))
	if _, err := w.Write(hdr.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}

// streamFunc yields PCM chunks for text and closes both channels when done.
type streamFunc func(ctx context.Context, text string) (<-chan []byte, <-chan error)

// renderStream drains a PCM stream and writes it out as WAV.
func renderStream(ctx context.Context, stream streamFunc, sampleRate int, text string, w io.Writer) error {
	pcmCh, errCh := stream(ctx, text)
	var pcm bytes.Buffer
	for chunk := range pcmCh {
		pcm.Write(chunk)
	}
	if err := <-errCh; err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if pcm.Len() == 0 {
		return fmt.Errorf("tts: no audio produced")
	}
	return WriteWAV(w, pcm.Bytes(), sampleRate)
}

// send delivers a chunk unless ctx is done.
func send(ctx context.Context, ch chan<- []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	case <-ctx.Done():
		return false
	}
}
