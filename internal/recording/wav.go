package recording

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	bitDepth      = 16
	wavFormatPCM  = 1
	bytesPerInt16 = 2
)

// Format describes the PCM layout handed to WriteWAVFile.
type Format struct {
	SampleRate int
	Channels   int
}

func (c Config) WAVFormat() Format {
	return Format{SampleRate: c.SampleRate, Channels: c.Channels}
}

// WriteWAVFile wraps little-endian signed 16-bit PCM in a WAV container.
func WriteWAVFile(path string, pcm []byte, format Format) error {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return fmt.Errorf("invalid wav format: %+v", format)
	}
	if len(pcm)%bytesPerInt16 != 0 {
		return fmt.Errorf("pcm length %d is not a multiple of %d", len(pcm), bytesPerInt16)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create audio directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}
	defer f.Close()

	data := make([]int, len(pcm)/bytesPerInt16)
	for i := range data {
		data[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	enc := wav.NewEncoder(f, format.SampleRate, bitDepth, format.Channels, wavFormatPCM)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: format.Channels,
			SampleRate:  format.SampleRate,
		},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}
