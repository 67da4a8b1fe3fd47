package audio

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ivlev/scene2video/internal/errs"
)

// Input names the soundtrack of a recording.
type Input struct {
	// Path is a file path, or a name inside FS when FS is set. Empty means
	// silence.
	Path string
	FS   fs.FS
	// SilenceUs is the silence length used when Path is empty.
	SilenceUs int64
}

// Open builds a ChunkSource for in. WAV files the PCM decoder can take
// as-is are read directly; anything else goes through ffmpeg.
func Open(ctx context.Context, in Input, opts ...Option) (*ChunkSource, error) {
	o := buildOptions(opts)

	if in.Path == "" {
		o.log.Infow("no soundtrack, using silence", "duration_us", in.SilenceUs)
		return NewChunkSource(NewSilenceDemuxer(in.SilenceUs), NewPCMDecoder(0), opts...)
	}

	if strings.EqualFold(filepath.Ext(in.Path), ".wav") {
		demux, err := openWAV(in)
		if err != nil {
			return nil, err
		}
		f, err := demux.SelectAudioTrack()
		if err == nil && Supported(f) {
			o.log.Debugw("reading wav directly", "path", in.Path, "format", f.String())
			return NewChunkSource(demux, NewPCMDecoder(0), opts...)
		}
		demux.Close()
		if errs.Is(err, errs.Asset) {
			return nil, err
		}
		o.log.Debugw("wav needs conversion, falling back to ffmpeg", "path", in.Path, "format", f.String())
	}

	var data []byte
	if in.FS != nil {
		b, err := fs.ReadFile(in.FS, in.Path)
		if err != nil {
			return nil, errs.E(errs.Asset, "audio.Open", err)
		}
		data = b
	} else if _, err := os.Stat(in.Path); err != nil {
		return nil, errs.E(errs.Asset, "audio.Open", err)
	}
	return NewChunkSource(NewFFmpegDemuxer(ctx, in.Path, data, opts...), NewPCMDecoder(0), opts...)
}

func openWAV(in Input) (*WAVDemuxer, error) {
	if in.FS == nil {
		f, err := os.Open(in.Path)
		if err != nil {
			return nil, errs.E(errs.Asset, "audio.Open", err)
		}
		return NewWAVDemuxer(f), nil
	}

	f, err := in.FS.Open(in.Path)
	if err != nil {
		return nil, errs.E(errs.Asset, "audio.Open", err)
	}
	if rs, ok := f.(io.ReadSeeker); ok {
		return NewWAVDemuxer(readSeekCloser{rs, f}), nil
	}
	b, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return nil, errs.E(errs.Asset, "audio.Open", err)
	}
	return NewWAVDemuxer(bytes.NewReader(b)), nil
}

type readSeekCloser struct {
	io.ReadSeeker
	io.Closer
}
