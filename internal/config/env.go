// Package config provides environment helpers for go-cloak commands.
package config

import (
	"os"
	"strconv"
)

// Defaults used when the environment is silent.
const (
	DefaultWebPort       = 8090
	DefaultScreenshotDir = "screenshots"
	DefaultColor         = "red"
)

// CameraDevice returns the capture device index from CLOAK_CAMERA.
// Falls back to the provided default if unset or not a number.
func CameraDevice(defaultID int) int {
	return intEnv("CLOAK_CAMERA", defaultID)
}

// WebPort returns the preview server port from CLOAK_PORT.
// A value of 0 disables the server.
func WebPort() int {
	return intEnv("CLOAK_PORT", DefaultWebPort)
}

// ScreenshotDir returns the screenshot directory from CLOAK_SCREENSHOT_DIR.
func ScreenshotDir() string {
	return stringEnv("CLOAK_SCREENSHOT_DIR", DefaultScreenshotDir)
}

// Color returns the cloak colour name (or menu number) from CLOAK_COLOR.
func Color() string {
	return stringEnv("CLOAK_COLOR", DefaultColor)
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
