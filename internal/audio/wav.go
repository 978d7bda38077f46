// Package audio captures agent audio frames from a call into WAV files.
package audio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

const defaultSampleRate = 16000

// wavHeader is the 44-byte canonical header for mono PCM16LE.
type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

func newWAVHeader(dataSize, sampleRate int) wavHeader {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	const channels, bits = 1, 16
	return wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + dataSize),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * bits / 8),
		BlockAlign:    channels * bits / 8,
		BitsPerSample: bits,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(dataSize),
	}
}

// WriteWAV writes raw PCM16LE mono audio to out as a WAV stream.
func WriteWAV(out io.Writer, pcm []byte, sampleRate int) error {
	w := bufio.NewWriter(out)
	if err := binary.Write(w, binary.LittleEndian, newWAVHeader(len(pcm), sampleRate)); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return w.Flush()
}

// Recorder accumulates PCM frames in memory and flushes them as one WAV
// file. Append is safe to call from the SDK's event goroutine.
type Recorder struct {
	mu         sync.Mutex
	sampleRate int
	pcm        []byte
}

func NewRecorder(sampleRate int) *Recorder {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	return &Recorder{sampleRate: sampleRate}
}

func (r *Recorder) Append(frame []byte) {
	if len(frame) == 0 {
		return
	}
	r.mu.Lock()
	r.pcm = append(r.pcm, frame...)
	r.mu.Unlock()
}

// Duration in milliseconds of what has been captured so far.
func (r *Recorder) DurationMS() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.pcm)/2) * 1000 / int64(r.sampleRate)
}

func (r *Recorder) WriteTo(out io.Writer) (int64, error) {
	r.mu.Lock()
	pcm := append([]byte(nil), r.pcm...)
	rate := r.sampleRate
	r.mu.Unlock()

	if err := WriteWAV(out, pcm, rate); err != nil {
		return 0, err
	}
	return int64(44 + len(pcm)), nil
}

// WriteFile writes the captured audio to path, replacing it.
func (r *Recorder) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := r.WriteTo(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
