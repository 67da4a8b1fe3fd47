// Package audio decodes the soundtrack into timestamped PCM chunks.
//
// A Demuxer hands out compressed samples of one audio track, a Decoder turns
// them into PCM, and ChunkSource pumps both with a bounded look-ahead.
// Every chunk leaving this package is interleaved s16le stereo at 44100 Hz.
package audio

import (
	"errors"
	"fmt"
)

// ErrEndOfStream is returned by ChunkSource.Next and Decoder.DequeueOutput
// once every decoded chunk has been handed out.
var ErrEndOfStream = errors.New("audio: end of stream")

// ErrInputFull is returned by Decoder.QueueInput when the input queue has no
// free slot.
var ErrInputFull = errors.New("audio: decoder input queue is full")

// Format describes a PCM track.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Codec         string
}

// OutputFormat is what the encoder expects on its audio input.
var OutputFormat = Format{SampleRate: 44100, Channels: 2, BitsPerSample: 16, Codec: "pcm_s16le"}

func (f Format) String() string {
	return fmt.Sprintf("%s %dHz %dch %dbit", f.Codec, f.SampleRate, f.Channels, f.BitsPerSample)
}

// BytesPerFrame is the size of one sample across all channels.
func (f Format) BytesPerFrame() int {
	return f.Channels * f.BitsPerSample / 8
}

// DurationUs converts a byte count of this format into microseconds.
func (f Format) DurationUs(n int) int64 {
	bpf := f.BytesPerFrame()
	if bpf == 0 || f.SampleRate == 0 {
		return 0
	}
	return int64(n/bpf) * 1_000_000 / int64(f.SampleRate)
}

// Sample is one unit read from a demuxer.
type Sample struct {
	Data []byte
	PTS  int64
}

// Chunk is decoded PCM in OutputFormat. The consumer owns Data.
type Chunk struct {
	Data []byte
	Size int
	PTS  int64
}

// Demuxer selects the audio track of a container and reads its samples.
type Demuxer interface {
	// SelectAudioTrack is idempotent. It fails with a TrackNotFound error
	// when the source has no audio.
	SelectAudioTrack() (Format, error)
	// ReadSample returns io.EOF after the last sample.
	ReadSample() (Sample, error)
	Close() error
}

// Decoder is a push/pull codec with a bounded input queue.
type Decoder interface {
	Configure(Format) error
	CanQueueInput() bool
	QueueInput(Sample) error
	QueueEndOfStream() error
	// DequeueOutput returns ready=false when nothing is decoded yet and
	// ErrEndOfStream after the end of stream has been drained.
	DequeueOutput() (c Chunk, ready bool, err error)
	Close() error
}
