package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivlev/scene2video/internal/errs"
)

func wavBytes(rate, channels, bits, frames int) []byte {
	block := channels * bits / 8
	data := make([]byte, frames*block)
	for i := range data {
		data[i] = byte(i)
	}

	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(4+8+16+8+8+len(data)))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, wavFmt{
		AudioFormat:   wavFormatPCM,
		Channels:      uint16(channels),
		SampleRate:    uint32(rate),
		ByteRate:      uint32(rate * block),
		BlockAlign:    uint16(block),
		BitsPerSample: uint16(bits),
	})
	// unknown chunk with odd size and a pad byte
	b.WriteString("LIST")
	binary.Write(&b, binary.LittleEndian, uint32(3))
	b.Write([]byte{1, 2, 3, 0})
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(len(data)))
	b.Write(data)
	return b.Bytes()
}

func drainAll(t *testing.T, s *ChunkSource) []Chunk {
	t.Helper()
	var out []Chunk
	for {
		c, err := s.Next(context.Background())
		if errors.Is(err, ErrEndOfStream) {
			return out
		}
		require.NoError(t, err)
		out = append(out, c)
	}
}

func TestChunkSourceWAV(t *testing.T) {
	s, err := NewChunkSource(NewWAVDemuxer(bytes.NewReader(wavBytes(44100, 2, 16, 3000))), NewPCMDecoder(2))
	require.NoError(t, err)
	defer s.Release()

	chunks := drainAll(t, s)
	require.Len(t, chunks, 3)

	total := 0
	last := int64(-1)
	for _, c := range chunks {
		assert.GreaterOrEqual(t, c.PTS, last)
		assert.Equal(t, len(c.Data), c.Size)
		last = c.PTS
		total += c.Size
	}
	assert.Equal(t, 3000*4, total)
	assert.EqualValues(t, 0, chunks[0].PTS)
	assert.EqualValues(t, 23219, chunks[1].PTS)

	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, ErrEndOfStream, "end of stream is sticky")
}

func TestPCMDecoderWidensMono(t *testing.T) {
	d := NewPCMDecoder(1)
	require.NoError(t, d.Configure(Format{SampleRate: 44100, Channels: 1, BitsPerSample: 8, Codec: "pcm_u8"}))

	require.True(t, d.CanQueueInput())
	require.NoError(t, d.QueueInput(Sample{Data: []byte{129, 127, 128}, PTS: 7}))
	assert.False(t, d.CanQueueInput())
	assert.ErrorIs(t, d.QueueInput(Sample{}), ErrInputFull)

	c, ready, err := d.DequeueOutput()
	require.NoError(t, err)
	require.True(t, ready)
	assert.EqualValues(t, 7, c.PTS)
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x01, 0x00, 0xff, 0x00, 0xff, 0, 0, 0, 0}, c.Data)

	_, ready, err = d.DequeueOutput()
	assert.NoError(t, err)
	assert.False(t, ready)

	require.NoError(t, d.QueueEndOfStream())
	_, _, err = d.DequeueOutput()
	assert.ErrorIs(t, err, ErrEndOfStream)
}

func TestPCMDecoderRejectsOtherRates(t *testing.T) {
	err := NewPCMDecoder(0).Configure(Format{SampleRate: 48000, Channels: 2, BitsPerSample: 16, Codec: "pcm_s16le"})
	assert.True(t, errs.Is(err, errs.Codec))
}

type fakeDemuxer struct {
	selectErr error
	samples   int
	read      int
	closed    int
}

func (f *fakeDemuxer) SelectAudioTrack() (Format, error) { return OutputFormat, f.selectErr }

func (f *fakeDemuxer) ReadSample() (Sample, error) {
	if f.read >= f.samples {
		return Sample{}, io.EOF
	}
	f.read++
	return Sample{Data: make([]byte, 16), PTS: int64(f.read) * 100}, nil
}

func (f *fakeDemuxer) Close() error { f.closed++; return nil }

type fakeDecoder struct {
	PCMDecoder
	configureErr error
	ptsOverride  []int64
	stalled      bool
	closed       int
}

func (f *fakeDecoder) Configure(fm Format) error {
	if f.configureErr != nil {
		return f.configureErr
	}
	return f.PCMDecoder.Configure(fm)
}

func (f *fakeDecoder) CanQueueInput() bool {
	return !f.stalled && f.PCMDecoder.CanQueueInput()
}

func (f *fakeDecoder) DequeueOutput() (Chunk, bool, error) {
	if f.stalled {
		return Chunk{}, false, nil
	}
	c, ready, err := f.PCMDecoder.DequeueOutput()
	if ready && len(f.ptsOverride) > 0 {
		c.PTS, f.ptsOverride = f.ptsOverride[0], f.ptsOverride[1:]
	}
	return c, ready, err
}

func (f *fakeDecoder) Close() error { f.closed++; return f.PCMDecoder.Close() }

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{PCMDecoder: *NewPCMDecoder(2)}
}

func TestChunkSourceTrackNotFoundReleases(t *testing.T) {
	demux := &fakeDemuxer{selectErr: errors.New("no audio")}
	dec := newFakeDecoder()

	_, err := NewChunkSource(demux, dec)
	assert.True(t, errs.Is(err, errs.TrackNotFound))
	assert.Equal(t, 1, demux.closed)
	assert.Equal(t, 1, dec.closed)
}

func TestChunkSourceConfigureFailure(t *testing.T) {
	demux := &fakeDemuxer{}
	dec := newFakeDecoder()
	dec.configureErr = errors.New("bad codec")

	_, err := NewChunkSource(demux, dec)
	assert.True(t, errs.Is(err, errs.Codec))
	assert.Equal(t, 1, demux.closed)
	assert.Equal(t, 1, dec.closed)
}

func TestChunkSourcePrefetchDepth(t *testing.T) {
	demux := &fakeDemuxer{samples: 20}
	s, err := NewChunkSource(demux, newFakeDecoder(), WithPrefetchDepth(3))
	require.NoError(t, err)

	_, err = s.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, s.fifo, 2, "one chunk handed out, the rest stays decoded ahead")
	assert.LessOrEqual(t, demux.read, 3+2, "input is bounded by depth plus decoder queue")

	assert.Len(t, drainAll(t, s), 19)

	require.NoError(t, s.Release())
	require.NoError(t, s.Release())
	assert.Equal(t, 1, demux.closed)
}

func TestChunkSourceBackwardsTimestamp(t *testing.T) {
	dec := newFakeDecoder()
	dec.ptsOverride = []int64{100, 50}
	s, err := NewChunkSource(&fakeDemuxer{samples: 5}, dec)
	require.NoError(t, err)
	defer s.Release()

	_, err = s.Next(context.Background())
	assert.True(t, errs.Is(err, errs.Codec))
}

func TestChunkSourceCancelled(t *testing.T) {
	dec := newFakeDecoder()
	dec.stalled = true
	s, err := NewChunkSource(&fakeDemuxer{samples: 5}, dec)
	require.NoError(t, err)
	defer s.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Next(ctx)
	assert.True(t, errs.Is(err, errs.Cancelled))
}

func TestChunkSourceStalledDecoder(t *testing.T) {
	dec := newFakeDecoder()
	dec.stalled = true
	demux := &fakeDemuxer{samples: 5}
	s, err := NewChunkSource(demux, dec, withStallRounds(3))
	require.NoError(t, err)

	start := time.Now()
	_, err = s.Next(context.Background())
	assert.True(t, errs.Is(err, errs.Codec), "got %v", err)
	assert.Contains(t, err.Error(), "stalled after 0 chunks")
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, demux.read)

	require.NoError(t, s.Release())
	assert.Equal(t, 1, demux.closed)
	assert.Equal(t, 1, dec.closed)
}

func TestChunkSourceStallAfterOutput(t *testing.T) {
	dec := newFakeDecoder()
	s, err := NewChunkSource(&fakeDemuxer{samples: 5}, dec, WithPrefetchDepth(1), withStallRounds(2))
	require.NoError(t, err)
	defer s.Release()

	_, err = s.Next(context.Background())
	require.NoError(t, err)

	dec.stalled = true
	_, err = s.Next(context.Background())
	assert.True(t, errs.Is(err, errs.Codec), "got %v", err)
	assert.Contains(t, err.Error(), "stalled after 1 chunks")
}

func TestSilence(t *testing.T) {
	s, err := NewChunkSource(NewSilenceDemuxer(100_000), NewPCMDecoder(0))
	require.NoError(t, err)
	defer s.Release()

	total := 0
	for _, c := range drainAll(t, s) {
		total += c.Size
		assert.Equal(t, make([]byte, c.Size), c.Data)
	}
	assert.Equal(t, 4410*4, total)
}

func TestWAVErrors(t *testing.T) {
	_, err := NewWAVDemuxer(bytes.NewReader([]byte("ID3 not a wave file"))).SelectAudioTrack()
	assert.True(t, errs.Is(err, errs.Asset))

	full := wavBytes(44100, 2, 16, 10)
	noData := full[:len(full)-40-8]
	_, err = NewWAVDemuxer(bytes.NewReader(noData)).SelectAudioTrack()
	assert.True(t, errs.Is(err, errs.TrackNotFound))
}

func TestOpen(t *testing.T) {
	fsys := fstest.MapFS{
		"music/track.wav": {Data: wavBytes(44100, 1, 16, 2048)},
	}

	s, err := Open(context.Background(), Input{Path: "music/track.wav", FS: fsys})
	require.NoError(t, err)
	total := 0
	for _, c := range drainAll(t, s) {
		total += c.Size
	}
	assert.Equal(t, 2048*4, total, "mono is duplicated into stereo")
	require.NoError(t, s.Release())

	_, err = Open(context.Background(), Input{Path: "music/missing.mp3", FS: fsys})
	assert.True(t, errs.Is(err, errs.Asset))

	silent, err := Open(context.Background(), Input{SilenceUs: 1_000_000})
	require.NoError(t, err)
	defer silent.Release()
	assert.Equal(t, OutputFormat, silent.Format())
}

func TestOpenResamplesThroughFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found")
	}

	path := filepath.Join(t.TempDir(), "low.wav")
	require.NoError(t, os.WriteFile(path, wavBytes(22050, 2, 16, 22050), 0644))

	s, err := Open(context.Background(), Input{Path: path})
	require.NoError(t, err)
	defer s.Release()

	total := 0
	for _, c := range drainAll(t, s) {
		total += c.Size
	}
	// one second at 44100 Hz, give or take the resampler's edge frames
	assert.InDelta(t, 44100*4, total, 2048)
}
