package transcode

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// Format identifies a container/codec pair
type Format string

const (
	FormatWAV     Format = "wav"
	FormatAIFF    Format = "aiff"
	FormatMP3     Format = "mp3"
	FormatOgg     Format = "ogg"
	FormatUnknown Format = "unknown"
)

// DetectFormat sniffs the leading bytes of data
func DetectFormat(data []byte) Format {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("FORM")) &&
		(bytes.Equal(data[8:12], []byte("AIFF")) || bytes.Equal(data[8:12], []byte("AIFC"))):
		return FormatAIFF
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("OggS")):
		return FormatOgg
	case len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// MPEG audio frame sync
		return FormatMP3
	default:
		return FormatUnknown
	}
}

// decodeWAV reads integer PCM WAV through go-audio/wav
func decodeWAV(r io.ReadSeeker) (*AudioData, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV file")
	}
	// PCM, or WAVE_FORMAT_EXTENSIBLE carrying PCM
	if dec.WavAudioFormat != 1 && dec.WavAudioFormat != 0xFFFE {
		return nil, fmt.Errorf("only integer PCM WAV is supported, got format tag %d", dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, err
	}

	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)

	// 8-bit WAV samples are unsigned
	offset := 0
	if bitDepth == 8 {
		offset = 128
	}

	pcm, err := intsToMono(buf.Data, channels, bitDepth, offset)
	if err != nil {
		return nil, err
	}

	return &AudioData{
		PCM:        pcm,
		SampleRate: int(dec.SampleRate),
		Channels:   channels,
		BitDepth:   bitDepth,
	}, nil
}

// decodeAIFF reads AIFF through go-audio/aiff in fixed-size chunks
func decodeAIFF(r io.ReadSeeker) (*AudioData, error) {
	dec := aiff.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid AIFF file")
	}
	dec.ReadInfo()

	format := dec.Format()
	if format == nil {
		return nil, fmt.Errorf("AIFF file has no format information")
	}

	chunk := &audio.IntBuffer{
		Data:   make([]int, 4096*max(1, format.NumChannels)),
		Format: format,
	}

	var samples []int
	for {
		n, err := dec.PCMBuffer(chunk)
		if n > 0 {
			samples = append(samples, chunk.Data[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if n == 0 {
			break
		}
	}

	bitDepth := int(dec.BitDepth)
	pcm, err := intsToMono(samples, format.NumChannels, bitDepth, 0)
	if err != nil {
		return nil, err
	}

	return &AudioData{
		PCM:        pcm,
		SampleRate: format.SampleRate,
		Channels:   format.NumChannels,
		BitDepth:   bitDepth,
	}, nil
}

// decodeMP3 reads MP3 through go-mp3, which always produces 16-bit
// little-endian stereo
func decodeMP3(r io.Reader) (*AudioData, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}

	const channels = 2
	frames := len(raw) / (2 * channels)
	pcm := make([]float64, frames)
	for i := range frames {
		base := i * 2 * channels
		left := int16(uint16(raw[base]) | uint16(raw[base+1])<<8)
		right := int16(uint16(raw[base+2]) | uint16(raw[base+3])<<8)
		pcm[i] = (float64(left) + float64(right)) / (2 * 32768.0)
	}

	return &AudioData{
		PCM:        pcm,
		SampleRate: dec.SampleRate(),
		Channels:   channels,
		BitDepth:   16,
	}, nil
}

// decodeOgg reads Ogg Vorbis through jfreymuth/oggvorbis
func decodeOgg(r io.Reader) (*AudioData, error) {
	data, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}

	channels := max(1, format.Channels)
	frames := len(data) / channels
	pcm := make([]float64, frames)
	for i := range frames {
		sum := 0.0
		for c := range channels {
			sum += float64(data[i*channels+c])
		}
		pcm[i] = sum / float64(channels)
	}

	return &AudioData{
		PCM:        pcm,
		SampleRate: format.SampleRate,
		Channels:   channels,
	}, nil
}

// intsToMono scales interleaved integer samples to [-1, 1] and averages the
// channels of every frame. A trailing partial frame is dropped.
func intsToMono(data []int, channels, bitDepth, offset int) ([]float64, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}

	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	frames := len(data) / channels

	pcm := make([]float64, frames)
	for i := range frames {
		sum := 0
		for c := range channels {
			sum += data[i*channels+c] - offset
		}
		pcm[i] = float64(sum) * scale / float64(channels)
	}

	return pcm, nil
}
