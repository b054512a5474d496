// Package hwprobe defines shared types describing a host's transcoding
// hardware: encoder/decoder availability, hardware-acceleration methods, and
// system load. No other package in this module imports it; -hwaccel
// selection is done by internal/ffmpeg's HWAccelDetector.
//
// Core types:
//   - Capabilities: hardware and software transcode capabilities of this host
//   - SystemStats: system metrics used for concurrency sizing
package hwprobe

// Version is the hwprobe package version.
const Version = "1.0.0"
