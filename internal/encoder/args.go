package encoder

import (
	"strconv"

	"remux/internal/media"
	"remux/internal/services"
)

// BuildArgs plans the ffmpeg argument list for one format. Three shapes
// exist: the GPU path trusts the format's codec and rate-control fields, the
// CPU video path pins encoder speed and quality, and the audio-only path
// drops the video flags entirely.
func BuildArgs(input, output string, format media.FormatSpec, flags media.Flags) ([]string, error) {
	switch {
	case format.UseGPU(flags):
		return gpuArgs(input, output, format), nil
	case format.HasVideo():
		return cpuVideoArgs(input, output, format), nil
	case format.HasAudio():
		return audioArgs(input, output, format), nil
	default:
		return nil, services.Wrap(services.ErrInvalidRequest, "encoder", "plan", "no codec specified", nil)
	}
}

func gpuArgs(input, output string, format media.FormatSpec) []string {
	args := []string{"-i", input}
	args = appendOpt(args, "-c:v", format.VideoCodec)
	args = appendOpt(args, "-b:v", format.Bitrate)
	args = append(args, "-c:a", "libopus", "-b:a", "192k")
	args = appendChannels(args, format.Channels)
	args = appendOpt(args, "-ar", format.SampleRate)
	args = appendOpt(args, "-vf", format.VideoFilter)
	args = appendOpt(args, "-minrate", format.MinRate)
	args = appendOpt(args, "-maxrate", format.MaxRate)
	args = appendOpt(args, "-bufsize", format.BufSize)
	return append(args, "-y", output)
}

func cpuVideoArgs(input, output string, format media.FormatSpec) []string {
	args := []string{"-i", input}
	args = appendOpt(args, "-c:v", format.VideoCodec)
	// Speed 4 of 0-8 and CRF 30 of 0-63 trade throughput against quality
	// the same way for every software encode.
	args = append(args, "-cpu-used", "4")
	args = appendOpt(args, "-b:v", format.Bitrate)
	args = append(args, "-crf", "30")
	args = append(args, "-c:a", "libopus", "-b:a", "192k")
	args = appendChannels(args, format.Channels)
	args = appendOpt(args, "-vf", format.VideoFilter)
	return append(args, "-y", output)
}

func audioArgs(input, output string, format media.FormatSpec) []string {
	args := []string{"-i", input}
	args = appendOpt(args, "-acodec", format.AudioCodec)
	args = appendChannels(args, format.Channels)
	args = appendOpt(args, "-ar", format.SampleRate)
	if format.CompressionLevel != nil {
		args = append(args, "-compression_level", strconv.Itoa(int(*format.CompressionLevel)))
	}
	return append(args, "-y", output)
}

func appendOpt(args []string, flag string, value *string) []string {
	if value == nil || *value == "" {
		return args
	}
	return append(args, flag, *value)
}

func appendChannels(args []string, channels *uint8) []string {
	if channels == nil {
		return args
	}
	return append(args, "-ac", strconv.Itoa(int(*channels)))
}
