package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/ivlev/scene2video/internal/errs"
	"github.com/ivlev/scene2video/internal/system"
)

// ffmpegSampleSize is the read size of one decoded sample, 1024 stereo frames.
const ffmpegSampleSize = 4096

// FFmpegDemuxer decodes any container ffmpeg understands into OutputFormat
// and hands out the PCM as samples. Paired with PCMDecoder it is a
// passthrough.
type FFmpegDemuxer struct {
	ctx     context.Context
	path    string
	data    []byte // in-memory input, piped to stdin
	ffmpeg  string
	ffprobe string
	log     *zap.SugaredLogger

	selected bool
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	stderr   *system.TailBuffer
	read     int64
	done     bool

	waitOnce sync.Once
	waitErr  error
}

// NewFFmpegDemuxer decodes path, or data when it is not nil. path is then
// only used in messages.
func NewFFmpegDemuxer(ctx context.Context, path string, data []byte, opts ...Option) *FFmpegDemuxer {
	o := buildOptions(opts)
	return &FFmpegDemuxer{
		ctx:     ctx,
		path:    path,
		data:    data,
		ffmpeg:  o.ffmpeg,
		ffprobe: o.ffprobe,
		log:     o.log,
		stderr:  system.NewTailBuffer(2048),
	}
}

type probeStream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
}

func (d *FFmpegDemuxer) input() string {
	if d.data != nil {
		return "pipe:0"
	}
	return d.path
}

func (d *FFmpegDemuxer) probe() (probeStream, error) {
	const op = "audio.ffprobe"
	cmd := exec.CommandContext(d.ctx, d.ffprobe,
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=index,codec_name,sample_rate,channels",
		"-of", "json",
		d.input(),
	)
	if d.data != nil {
		cmd.Stdin = bytes.NewReader(d.data)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := errs.FromContext(op, d.ctx); ctxErr != nil {
			return probeStream{}, ctxErr
		}
		return probeStream{}, errs.E(errs.Asset, op, fmt.Errorf("%s: %w: %s", d.path, err, bytes.TrimSpace(stderr.Bytes())))
	}

	var res probeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return probeStream{}, errs.E(errs.Codec, op, err)
	}
	if len(res.Streams) == 0 {
		return probeStream{}, errs.Errorf(errs.TrackNotFound, op, "%s: no audio stream", d.path)
	}
	return res.Streams[0], nil
}

func (d *FFmpegDemuxer) SelectAudioTrack() (Format, error) {
	if d.selected {
		return OutputFormat, nil
	}
	track, err := d.probe()
	if err != nil {
		return Format{}, err
	}
	rate, _ := strconv.Atoi(track.SampleRate)
	d.log.Debugw("ffprobe audio stream", "path", d.path, "codec", track.CodecName, "sample_rate", rate, "channels", track.Channels)

	cmd := exec.CommandContext(d.ctx, d.ffmpeg,
		"-v", "error",
		"-i", d.input(),
		"-map", "0:a:0",
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", strconv.Itoa(OutputFormat.Channels),
		"-ar", strconv.Itoa(OutputFormat.SampleRate),
		"pipe:1",
	)
	if d.data != nil {
		cmd.Stdin = bytes.NewReader(d.data)
	}
	cmd.Stderr = d.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Format{}, errs.E(errs.Codec, "audio.ffmpeg", fmt.Errorf("stdout pipe error: %w", err))
	}
	if err := cmd.Start(); err != nil {
		return Format{}, errs.E(errs.Codec, "audio.ffmpeg", fmt.Errorf("ffmpeg start error: %w", err))
	}

	d.cmd, d.stdout, d.selected = cmd, stdout, true
	return OutputFormat, nil
}

func (d *FFmpegDemuxer) ReadSample() (Sample, error) {
	if !d.selected {
		return Sample{}, errs.Errorf(errs.Codec, "audio.ffmpeg", "track not selected")
	}
	if d.done {
		return Sample{}, io.EOF
	}

	buf := make([]byte, ffmpegSampleSize)
	n, err := io.ReadFull(d.stdout, buf)
	if n > 0 {
		pts := OutputFormat.DurationUs(int(d.read))
		d.read += int64(n)
		if err != nil {
			d.done = true
			if werr := d.wait(); werr != nil {
				return Sample{}, werr
			}
		}
		return Sample{Data: buf[:n], PTS: pts}, nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		d.done = true
		if werr := d.wait(); werr != nil {
			return Sample{}, werr
		}
		return Sample{}, io.EOF
	}
	return Sample{}, errs.E(errs.Codec, "audio.ffmpeg", err)
}

func (d *FFmpegDemuxer) wait() error {
	d.waitOnce.Do(func() {
		if d.cmd == nil {
			return
		}
		if err := d.cmd.Wait(); err != nil {
			if ctxErr := errs.FromContext("audio.ffmpeg", d.ctx); ctxErr != nil {
				d.waitErr = ctxErr
				return
			}
			d.waitErr = errs.E(errs.Codec, "audio.ffmpeg", fmt.Errorf("%s: %w: %s", d.path, err, d.stderr.String()))
		}
	})
	return d.waitErr
}

// Close stops ffmpeg if it is still decoding.
func (d *FFmpegDemuxer) Close() error {
	if d.cmd == nil {
		return nil
	}
	if !d.done && d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
	err := d.wait()
	if !d.done {
		// killed on purpose
		return nil
	}
	return err
}
