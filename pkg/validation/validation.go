package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ScaleRegex validates WxH scale transforms like 1280x720
	ScaleRegex = regexp.MustCompile(`^[1-9][0-9]{1,4}x[1-9][0-9]{1,4}$`)

	// PresetRegex validates encoder preset names
	PresetRegex = regexp.MustCompile(`^[a-z]+$`)
)

// ValidateStreamURL validates a camera stream URL
func ValidateStreamURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("stream URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid stream URL format: %w", err)
	}
	if u.Scheme != "rtsp" && u.Scheme != "rtsps" && u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid stream URL scheme (must be rtsp, rtsps, http, or https)")
	}
	if u.Host == "" {
		return fmt.Errorf("stream URL must have a host")
	}
	return nil
}

// ValidateTransport validates the RTSP transport hint
func ValidateTransport(transport string) error {
	if transport != "tcp" && transport != "udp" {
		return fmt.Errorf("invalid transport (must be tcp or udp)")
	}
	return nil
}

// ValidateFrameRate validates the preview extraction rate
func ValidateFrameRate(rate int) error {
	if rate < 1 {
		return fmt.Errorf("frame rate must be at least 1 fps")
	}
	if rate > 60 {
		return fmt.Errorf("frame rate is too high (max 60 fps)")
	}
	return nil
}

// ValidateJPEGQuality validates JPEG compression quality
func ValidateJPEGQuality(quality int) error {
	if quality < 1 || quality > 100 {
		return fmt.Errorf("jpeg quality must be in 1..100")
	}
	return nil
}

// ValidateRotateSize validates the recording rotation threshold
func ValidateRotateSize(size int64) error {
	if size < 1024*1024 {
		return fmt.Errorf("rotation size must be at least 1 MiB")
	}
	if size > 32*1024*1024*1024 {
		return fmt.Errorf("rotation size is too high (max 32 GiB)")
	}
	return nil
}

// ValidateScale validates an optional WxH scaling transform
func ValidateScale(scale string) error {
	if scale == "" {
		return nil
	}
	if !ScaleRegex.MatchString(scale) {
		return fmt.Errorf("invalid scale (must be WxH, e.g. 1280x720)")
	}
	return nil
}

// ValidatePreset validates an encoder preset name
func ValidatePreset(preset string) error {
	if preset == "" {
		return fmt.Errorf("preset is required")
	}
	if !PresetRegex.MatchString(preset) {
		return fmt.Errorf("invalid preset name")
	}
	return nil
}

// ValidateUsername validates an API username
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if len(username) < 3 {
		return fmt.Errorf("username must be at least 3 characters")
	}
	if len(username) > 50 {
		return fmt.Errorf("username is too long (max 50 characters)")
	}
	if !regexp.MustCompile(`^[a-zA-Z0-9_-]+$`).MatchString(username) {
		return fmt.Errorf("username contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidatePassword validates an API password
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password is required")
	}
	if len(password) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	if len(password) > 128 {
		return fmt.Errorf("password is too long (max 128 characters)")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}
