//go:build linux

package audio

import "regexp"

func getPlatformConfig() CaptureConfig {
	return CaptureConfig{
		// The monitor source of the default sink carries the system's
		// playback audio, which is what a memo of "what the machine is
		// playing" wants.
		DefaultDevice: "default.monitor",
		BuildArgs:     buildLinuxArgs,
	}
}

func buildLinuxArgs(device string) []string {
	return buildFFmpegCaptureArgs("pulse", device)
}

func (cfg *CaptureConfig) Devices() []Device {
	return parseDeviceList(DeviceListConfig{
		Command:       []string{"pactl", "list", "short", "sources"},
		DevicePattern: regexp.MustCompile(`^\d+\s+(\S+)`),
		ParseDevice: func(matches []string) *Device {
			if len(matches) < 2 {
				return nil
			}
			return &Device{
				ID:   matches[1],
				Name: matches[1],
			}
		},
		FallbackDevices: []Device{
			{ID: "default.monitor", Name: "Default output (monitor)"},
		},
	})
}
