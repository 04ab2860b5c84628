package main

import (
	"encoding/binary"
	"io"
	"os"

	apperrors "github.com/cliplab/autoframe/internal/errors"
)

// readWAV loads a PCM WAV file into mono float32 samples in [-1,1].
// Supports 16-bit PCM, mono or stereo (downmixed by averaging).
func readWAV(path string) (samples []float32, sampleRate int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.CodeDecodeFailure, "opening wav")
	}
	defer f.Close()

	var riff [12]byte
	if _, err := io.ReadFull(f, riff[:]); err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.CodeDecodeFailure, "reading wav header")
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, 0, apperrors.New(apperrors.CodeDecodeFailure, "not a wav file")
	}

	var (
		channels      int
		bitsPerSample int
		data          []byte
	)
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(f, hdr[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, 0, apperrors.Wrap(err, apperrors.CodeDecodeFailure, "reading wav chunk header")
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(f, body); err != nil {
				return nil, 0, apperrors.Wrap(err, apperrors.CodeDecodeFailure, "reading wav fmt chunk")
			}
			if format := binary.LittleEndian.Uint16(body[0:2]); format != 1 {
				return nil, 0, apperrors.Newf(apperrors.CodeDecodeFailure, "unsupported wav format %d, want PCM", format)
			}
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
		case "data":
			data = make([]byte, size)
			if _, err := io.ReadFull(f, data); err != nil {
				return nil, 0, apperrors.Wrap(err, apperrors.CodeDecodeFailure, "reading wav data chunk")
			}
		default:
			if _, err := f.Seek(size, io.SeekCurrent); err != nil {
				return nil, 0, apperrors.Wrap(err, apperrors.CodeDecodeFailure, "skipping wav chunk")
			}
		}
		// Chunks are word aligned; an odd size carries a pad byte.
		if size%2 == 1 {
			if _, err := f.Seek(1, io.SeekCurrent); err != nil {
				return nil, 0, apperrors.Wrap(err, apperrors.CodeDecodeFailure, "skipping wav chunk pad")
			}
		}
		if channels > 0 && data != nil {
			break
		}
	}

	if sampleRate <= 0 || channels <= 0 || data == nil {
		return nil, 0, apperrors.New(apperrors.CodeDecodeFailure, "wav missing fmt or data chunk")
	}
	if bitsPerSample != 16 {
		return nil, 0, apperrors.Newf(apperrors.CodeDecodeFailure, "unsupported wav bit depth %d, want 16", bitsPerSample)
	}
	if channels > 2 {
		return nil, 0, apperrors.Newf(apperrors.CodeDecodeFailure, "unsupported wav channel count %d", channels)
	}

	frames := len(data) / (2 * channels)
	samples = make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			sum += float64(int16(binary.LittleEndian.Uint16(data[off : off+2])))
		}
		samples[i] = float32(sum / float64(channels) / 32768.0)
	}
	return samples, sampleRate, nil
}
