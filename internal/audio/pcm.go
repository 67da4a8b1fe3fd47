package audio

import (
	"encoding/binary"

	"github.com/ivlev/scene2video/internal/errs"
)

// DefaultDecoderQueue is the input capacity of PCMDecoder.
const DefaultDecoderQueue = 4

// PCMDecoder converts raw PCM samples to OutputFormat. It widens 8-bit
// samples and duplicates mono into both channels; the sample rate must
// already match.
type PCMDecoder struct {
	in        Format
	queue     []Sample
	capacity  int
	eosQueued bool
	closed    bool
}

func NewPCMDecoder(capacity int) *PCMDecoder {
	if capacity <= 0 {
		capacity = DefaultDecoderQueue
	}
	return &PCMDecoder{capacity: capacity}
}

// Supported reports whether PCMDecoder can take f without resampling.
func Supported(f Format) bool {
	if f.SampleRate != OutputFormat.SampleRate {
		return false
	}
	if f.Channels != 1 && f.Channels != 2 {
		return false
	}
	switch f.Codec {
	case "pcm_u8":
		return f.BitsPerSample == 8
	case "pcm_s16le":
		return f.BitsPerSample == 16
	}
	return false
}

func (d *PCMDecoder) Configure(f Format) error {
	if !Supported(f) {
		return errs.Errorf(errs.Codec, "audio.PCMDecoder", "unsupported input %s", f)
	}
	d.in = f
	return nil
}

func (d *PCMDecoder) CanQueueInput() bool {
	return !d.closed && !d.eosQueued && len(d.queue) < d.capacity
}

func (d *PCMDecoder) QueueInput(s Sample) error {
	if d.eosQueued {
		return errs.Errorf(errs.Codec, "audio.PCMDecoder", "input after end of stream")
	}
	if !d.CanQueueInput() {
		return ErrInputFull
	}
	d.queue = append(d.queue, s)
	return nil
}

func (d *PCMDecoder) QueueEndOfStream() error {
	d.eosQueued = true
	return nil
}

func (d *PCMDecoder) DequeueOutput() (Chunk, bool, error) {
	if d.closed {
		return Chunk{}, false, errs.Errorf(errs.Codec, "audio.PCMDecoder", "decoder closed")
	}
	if len(d.queue) == 0 {
		if d.eosQueued {
			return Chunk{}, false, ErrEndOfStream
		}
		return Chunk{}, false, nil
	}
	s := d.queue[0]
	d.queue[0] = Sample{}
	d.queue = d.queue[1:]

	data := d.convert(s.Data)
	return Chunk{Data: data, Size: len(data), PTS: s.PTS}, true, nil
}

// convert drops a trailing partial frame.
func (d *PCMDecoder) convert(src []byte) []byte {
	inFrame := d.in.BytesPerFrame()
	frames := len(src) / inFrame
	if d.in == OutputFormat {
		out := make([]byte, frames*inFrame)
		copy(out, src)
		return out
	}

	out := make([]byte, frames*OutputFormat.BytesPerFrame())
	for i := 0; i < frames; i++ {
		var l, r int16
		frame := src[i*inFrame : (i+1)*inFrame]
		switch d.in.BitsPerSample {
		case 8:
			l = int16(int(frame[0])-128) << 8
			r = l
			if d.in.Channels == 2 {
				r = int16(int(frame[1])-128) << 8
			}
		default:
			l = int16(binary.LittleEndian.Uint16(frame))
			r = l
			if d.in.Channels == 2 {
				r = int16(binary.LittleEndian.Uint16(frame[2:]))
			}
		}
		binary.LittleEndian.PutUint16(out[i*4:], uint16(l))
		binary.LittleEndian.PutUint16(out[i*4+2:], uint16(r))
	}
	return out
}

func (d *PCMDecoder) Close() error {
	d.closed = true
	d.queue = nil
	return nil
}
