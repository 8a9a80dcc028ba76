package descry

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

// hostID returns a best-effort stable id of the machine the scanners are
// attached to, used to tell audit rows from several hosts apart. On macOS it
// uses `system_profiler`; on Linux it prefers /etc/machine-id then falls back
// to /sys/class/dmi/id/product_uuid. The hostname is the last resort.
var hostID = sync.OnceValue(func() string {
	if id := hardwareUUID(); id != "" {
		return id
	}
	name, _ := os.Hostname()
	return name
})

func hardwareUUID() string {
	switch runtime.GOOS {
	case "darwin":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		cmd := exec.CommandContext(ctx, "bash", "-c", "system_profiler SPHardwareDataType | awk '/Hardware UUID/ {print $3}'")
		out, err := cmd.Output()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(out))
	case "linux":
		for _, path := range []string{"/etc/machine-id", "/sys/class/dmi/id/product_uuid"} {
			if id := readSystemFile(path); id != "" {
				return id
			}
		}
	}
	return ""
}

func readSystemFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
