//go:build windows

package audio

// buildFFmpegCaptureArgs constructs FFmpeg arguments for raw PCM capture on
// Windows. -nostdin is omitted so the process can be stopped via 'q'.
func buildFFmpegCaptureArgs(inputFormat, device string) []string {
	return []string{
		"-f", inputFormat,
		"-i", device,
		"-hide_banner",
		"-loglevel", "warning",
		"-vn",
		"-f", "s16le",
		"-ac", "2",
		"-ar", "48000",
		"pipe:1",
	}
}
