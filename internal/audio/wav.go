package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ivlev/scene2video/internal/errs"
)

// framesPerSample is how many PCM frames one WAV sample carries.
const framesPerSample = 1024

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

type wavFmt struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// WAVDemuxer reads uncompressed RIFF/WAVE files.
type WAVDemuxer struct {
	r io.ReadSeeker

	parsed bool
	format Format
	block  int

	dataLeft int64
	frames   int64
}

func NewWAVDemuxer(r io.ReadSeeker) *WAVDemuxer {
	return &WAVDemuxer{r: r}
}

func (w *WAVDemuxer) SelectAudioTrack() (Format, error) {
	if w.parsed {
		return w.format, nil
	}
	if err := w.parse(); err != nil {
		return Format{}, err
	}
	w.parsed = true
	return w.format, nil
}

func (w *WAVDemuxer) parse() error {
	const op = "audio.WAVDemuxer"

	var hdr [12]byte
	if _, err := io.ReadFull(w.r, hdr[:]); err != nil {
		return errs.E(errs.Asset, op, fmt.Errorf("read header: %w", err))
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return errs.Errorf(errs.Asset, op, "not a RIFF/WAVE file")
	}

	var (
		fmtChunk wavFmt
		haveFmt  bool
	)
	for {
		var id [4]byte
		var size uint32
		if _, err := io.ReadFull(w.r, id[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return errs.Errorf(errs.TrackNotFound, op, "no data chunk")
			}
			return errs.E(errs.Asset, op, err)
		}
		if err := binary.Read(w.r, binary.LittleEndian, &size); err != nil {
			return errs.E(errs.Asset, op, err)
		}

		switch string(id[:]) {
		case "fmt ":
			if size < 16 {
				return errs.Errorf(errs.Asset, op, "fmt chunk too short: %d", size)
			}
			if err := binary.Read(w.r, binary.LittleEndian, &fmtChunk); err != nil {
				return errs.E(errs.Asset, op, err)
			}
			if err := w.skip(int64(size) - 16 + int64(size&1)); err != nil {
				return err
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return errs.Errorf(errs.TrackNotFound, op, "data chunk before fmt chunk")
			}
			return w.accept(fmtChunk, int64(size))
		default:
			if err := w.skip(int64(size) + int64(size&1)); err != nil {
				return err
			}
		}
	}
}

func (w *WAVDemuxer) accept(f wavFmt, dataSize int64) error {
	if f.AudioFormat != wavFormatPCM && f.AudioFormat != wavFormatExtensible {
		return errs.Errorf(errs.Codec, "audio.WAVDemuxer", "unsupported encoding 0x%04x", f.AudioFormat)
	}
	if f.Channels == 0 || f.BlockAlign == 0 || f.SampleRate == 0 {
		return errs.Errorf(errs.Asset, "audio.WAVDemuxer", "corrupt fmt chunk")
	}
	codec := "pcm_s16le"
	switch f.BitsPerSample {
	case 8:
		codec = "pcm_u8"
	case 16:
	default:
		codec = fmt.Sprintf("pcm_s%dle", f.BitsPerSample)
	}
	w.format = Format{
		SampleRate:    int(f.SampleRate),
		Channels:      int(f.Channels),
		BitsPerSample: int(f.BitsPerSample),
		Codec:         codec,
	}
	w.block = int(f.BlockAlign)
	w.dataLeft = dataSize
	return nil
}

func (w *WAVDemuxer) skip(n int64) error {
	if n <= 0 {
		return nil
	}
	if _, err := w.r.Seek(n, io.SeekCurrent); err != nil {
		return errs.E(errs.Asset, "audio.WAVDemuxer", err)
	}
	return nil
}

func (w *WAVDemuxer) ReadSample() (Sample, error) {
	if !w.parsed {
		if _, err := w.SelectAudioTrack(); err != nil {
			return Sample{}, err
		}
	}
	if w.dataLeft <= 0 {
		return Sample{}, io.EOF
	}

	n := min(int64(framesPerSample*w.block), w.dataLeft)
	buf := make([]byte, n)
	read, err := io.ReadFull(w.r, buf)
	if read == 0 {
		if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			// truncated file, data chunk claimed more than was written
			w.dataLeft = 0
			return Sample{}, io.EOF
		}
		return Sample{}, errs.E(errs.Asset, "audio.WAVDemuxer", err)
	}
	if err != nil {
		w.dataLeft = 0
	} else {
		w.dataLeft -= int64(read)
	}

	pts := w.frames * 1_000_000 / int64(w.format.SampleRate)
	w.frames += int64(read / w.block)
	return Sample{Data: buf[:read], PTS: pts}, nil
}

func (w *WAVDemuxer) Close() error {
	if c, ok := w.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
