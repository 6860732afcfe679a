package risk

import (
	"fmt"
	"strings"
)

// Fingerprint is the client environment report.
type Fingerprint struct {
	UserAgent           string   `json:"userAgent" validate:"max=1024"`
	Platform            string   `json:"platform" validate:"max=256"`
	WebDriver           bool     `json:"webdriver"`
	ScreenWidth         int      `json:"screenWidth" validate:"gte=0"`
	ScreenHeight        int      `json:"screenHeight" validate:"gte=0"`
	HardwareConcurrency int      `json:"hardwareConcurrency" validate:"gte=0"`
	WebGLVendor         string   `json:"webglVendor" validate:"max=256"`
	WebGLRenderer       string   `json:"webglRenderer" validate:"max=256"`
	Timezone            string   `json:"timezone" validate:"max=128"`
	Plugins             []string `json:"plugins" validate:"max=64"`
}

// Details is the opaque detection detail attached to a verdict.
type Details struct {
	UserAgent          string   `json:"userAgent"`
	Platform           string   `json:"platform"`
	WebDriver          bool     `json:"webdriver"`
	RemoteDesktop      bool     `json:"remoteDesktop"`
	VirtualEnvironment bool     `json:"virtualEnvironment"`
	ScreenResolution   string   `json:"screenResolution"`
	Timezone           string   `json:"timezone"`
	Plugins            []string `json:"plugins"`
	WebGL              string   `json:"webgl"`
}

var remoteAgents = []string{
	"rdp", "remote desktop", "teamviewer", "anydesk", "vnc",
	"chrome remote desktop", "screenshare", "screen share",
}

var vmAgents = []string{
	"virtualbox", "vmware", "qemu", "kvm", "xen", "hyper-v", "parallels",
}

var vmResolutions = [][2]int{
	{800, 600}, {1024, 768}, {1280, 800}, {1440, 900}, {1920, 1200},
}

// Evaluate applies the remote-access and virtualization heuristics.
func Evaluate(fp Fingerprint) Verdict {
	remote := detectRemoteDesktop(fp)
	vm := detectVirtualMachine(fp)
	return Verdict{
		IsRemoteAccess:   remote || fp.WebDriver,
		IsVirtualMachine: vm,
		Details: Details{
			UserAgent:          fp.UserAgent,
			Platform:           fp.Platform,
			WebDriver:          fp.WebDriver,
			RemoteDesktop:      remote,
			VirtualEnvironment: vm,
			ScreenResolution:   fmt.Sprintf("%dx%d", fp.ScreenWidth, fp.ScreenHeight),
			Timezone:           fp.Timezone,
			Plugins:            fp.Plugins,
			WebGL:              strings.TrimSpace(fp.WebGLVendor + " " + fp.WebGLRenderer),
		},
	}
}

func detectRemoteDesktop(fp Fingerprint) bool {
	return containsAny(strings.ToLower(fp.UserAgent), remoteAgents)
}

func detectVirtualMachine(fp Fingerprint) bool {
	ua := strings.ToLower(fp.UserAgent)
	if containsAny(ua, vmAgents) {
		return true
	}
	platform := strings.ToLower(fp.Platform)
	if strings.Contains(platform, "vm") || strings.Contains(platform, "virtual") {
		return true
	}
	gl := strings.ToLower(fp.WebGLVendor + " " + fp.WebGLRenderer)
	if strings.Contains(gl, "virtualbox") || strings.Contains(gl, "vmware") {
		return true
	}
	if fp.HardwareConcurrency > 0 && fp.HardwareConcurrency <= 2 {
		for _, r := range vmResolutions {
			if fp.ScreenWidth == r[0] && fp.ScreenHeight == r[1] {
				return true
			}
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
