package model

import "runtime"

// EngineVersion is reported to the validation server as part of the device
// metadata attached to every request.
const EngineVersion = "purchase-engine/1.0.0"

// DeviceInfo is the device metadata injected into validation request bodies.
type DeviceInfo struct {
	Plugin     string `json:"plugin,omitempty"`
	Platform   string `json:"platform,omitempty"`
	Model      string `json:"model,omitempty"`
	Version    string `json:"version,omitempty"`
	AppID      string `json:"appId,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`
}

// DefaultDeviceInfo describes the running process. Applications embedding the
// engine typically override AppID and AppVersion.
func DefaultDeviceInfo() *DeviceInfo {
	return &DeviceInfo{
		Plugin:   EngineVersion,
		Platform: runtime.GOOS,
	}
}
