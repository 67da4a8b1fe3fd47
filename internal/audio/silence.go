package audio

import "io"

// SilenceDemuxer yields zero PCM in OutputFormat for a fixed duration. It
// stands in for the soundtrack when a project has none.
type SilenceDemuxer struct {
	total   int64 // frames
	written int64
}

func NewSilenceDemuxer(durationUs int64) *SilenceDemuxer {
	return &SilenceDemuxer{total: durationUs * int64(OutputFormat.SampleRate) / 1_000_000}
}

func (s *SilenceDemuxer) SelectAudioTrack() (Format, error) {
	return OutputFormat, nil
}

func (s *SilenceDemuxer) ReadSample() (Sample, error) {
	if s.written >= s.total {
		return Sample{}, io.EOF
	}
	n := min(int64(framesPerSample), s.total-s.written)
	pts := s.written * 1_000_000 / int64(OutputFormat.SampleRate)
	s.written += n
	return Sample{Data: make([]byte, n*int64(OutputFormat.BytesPerFrame())), PTS: pts}, nil
}

func (s *SilenceDemuxer) Close() error { return nil }
