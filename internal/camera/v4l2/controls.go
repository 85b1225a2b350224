package v4l2

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/jaysettle/Bird-Bath-Photography-sub000/internal/camera"
)

// controlFields maps an abstract control to its v4l2 control fields.
// The matching auto-mode toggle rides along so the driver honors the
// absolute value.
func controlFields(name string, value int) ([]string, error) {
	switch name {
	case camera.ControlFocus:
		return []string{
			"focus_auto=0",
			fmt.Sprintf("focus_absolute=%d", value),
		}, nil
	case camera.ControlWhiteBalance:
		return []string{
			"white_balance_temperature_auto=0",
			fmt.Sprintf("white_balance_temperature=%d", value),
		}, nil
	case camera.ControlISO:
		return []string{
			"iso_sensitivity_auto=0",
			fmt.Sprintf("iso_sensitivity=%d", value),
		}, nil
	case camera.ControlExposure:
		// exposure_absolute is in 100us units; the config value is ms.
		return []string{
			"exposure_auto=1",
			fmt.Sprintf("exposure_absolute=%d", value*10),
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", camera.ErrUnknownControl, name)
}

// renderControls flattens the control map into the serialized structure
// body v4l2src expects, in deterministic order.
func renderControls(controls map[string]int) string {
	if len(controls) == 0 {
		return ""
	}

	names := make([]string, 0, len(controls))
	for name := range controls {
		names = append(names, name)
	}
	sort.Strings(names)

	var fields []string
	for _, name := range names {
		fs, err := controlFields(name, controls[name])
		if err != nil {
			continue
		}
		fields = append(fields, fs...)
	}
	if len(fields) == 0 {
		return ""
	}
	return "controls," + strings.Join(fields, ",")
}

// controlsStructure builds the GstStructure for the v4l2src
// extra-controls property.
func controlsStructure(controls map[string]int) *gst.Structure {
	body := renderControls(controls)
	if body == "" {
		return nil
	}
	return gst.NewStructureFromString(body)
}
