package system

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/host"
)

// HostInfo is the subset of host facts shown by the status command.
type HostInfo struct {
	Hostname        string
	OS              string
	Platform        string
	PlatformVersion string
	KernelVersion   string
	Uptime          time.Duration
}

func (h HostInfo) String() string {
	platform := h.Platform
	if h.PlatformVersion != "" {
		platform += " " + h.PlatformVersion
	}
	return fmt.Sprintf("%s (%s, kernel %s, up %s)", h.Hostname, platform, h.KernelVersion, h.Uptime)
}

// GetHostInfo queries the running host.
func GetHostInfo() (HostInfo, error) {
	info, err := host.Info()
	if err != nil {
		return HostInfo{}, fmt.Errorf("read host info: %w", err)
	}
	return fromStat(info), nil
}

func fromStat(info *host.InfoStat) HostInfo {
	return HostInfo{
		Hostname:        info.Hostname,
		OS:              info.OS,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelVersion:   info.KernelVersion,
		Uptime:          time.Duration(info.Uptime) * time.Second,
	}
}
