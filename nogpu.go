//go:build nogpu

package sandbox

import (
	"errors"
	"log/slog"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/sandbox/compute"
)

var errGPUDisabled = errors.New("sandbox: built with -tags nogpu")

func openGPU(*options) (compute.Device, string, error) {
	return nil, "", errGPUDisabled
}

func openProvider(gpucontext.DeviceProvider) (compute.Device, string, error) {
	return nil, "", errGPUDisabled
}

func setGPULogger(*slog.Logger) {}
