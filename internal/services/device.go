package services

import (
	"strings"

	"github.com/mssola/useragent"
	"github.com/mto-maintenance/apiserver/types"
)

const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// ClassifyDevice labels a client from its User-Agent header. The result is
// for display only.
func ClassifyDevice(userAgent, ip string) types.DeviceInfo {
	info := types.DeviceInfo{
		UserAgent:  userAgent,
		IP:         ip,
		DeviceType: DeviceUnknown,
		Browser:    DeviceUnknown,
	}
	if strings.TrimSpace(userAgent) == "" {
		return info
	}

	ua := useragent.New(userAgent)
	if name, _ := ua.Browser(); name != "" {
		info.Browser = name
	}

	lower := strings.ToLower(userAgent)
	switch {
	case ua.Bot():
		info.DeviceType = DeviceBot
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet"):
		info.DeviceType = DeviceTablet
	case ua.Mobile():
		info.DeviceType = DeviceMobile
	case ua.OS() != "":
		info.DeviceType = DeviceDesktop
	}
	return info
}
