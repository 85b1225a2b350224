package v4l2

import (
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCategory buckets pipeline errors so logs stay actionable. Only
// device errors imply the camera went away; everything else points at
// configuration or the stack itself.
type ErrorCategory int

const (
	ErrCategoryUnknown ErrorCategory = iota
	ErrCategoryDevice
	ErrCategoryFormat
	ErrCategoryPermission
)

func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryFormat:
		return "format"
	case ErrCategoryPermission:
		return "permission"
	default:
		return "unknown"
	}
}

// ClassifyGStreamerError inspects a pipeline error message and its
// debug string and assigns a category.
func ClassifyGStreamerError(gerr *gst.GError) ErrorCategory {
	if gerr == nil {
		return ErrCategoryUnknown
	}
	return classifyMessage(gerr.Error(), gerr.DebugString())
}

// classifyMessage is the string-level classifier. Permission wins over
// format, format over device, so the most specific diagnosis is kept
// when keywords overlap.
func classifyMessage(errMsg, debugStr string) ErrorCategory {
	combined := strings.ToLower(errMsg + " " + debugStr)

	switch {
	case isPermissionError(combined):
		return ErrCategoryPermission
	case isFormatError(combined):
		return ErrCategoryFormat
	case isDeviceError(combined):
		return ErrCategoryDevice
	default:
		return ErrCategoryUnknown
	}
}

func isPermissionError(s string) bool {
	keywords := []string{
		"permission",
		"denied",
		"not authorized",
		"busy",
		"in use",
	}
	return containsAny(s, keywords)
}

func isFormatError(s string) bool {
	keywords := []string{
		"negotiat",
		"caps",
		"format",
		"jpeg",
		"encode",
		"colorspace",
		"not supported",
		"cannot capture at",
		"invalid dimensions",
	}
	return containsAny(s, keywords)
}

func isDeviceError(s string) bool {
	keywords := []string{
		"no such device",
		"device",
		"v4l2",
		"vidioc",
		"ioctl",
		"usb",
		"unplugged",
		"disconnected",
		"removed",
		"input/output error",
		"could not read from resource",
	}
	return containsAny(s, keywords)
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
