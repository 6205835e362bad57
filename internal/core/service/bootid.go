package service

import (
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const kernelBootIDPath = "/proc/sys/kernel/random/boot_id"

var (
	bootIDOnce sync.Once
	bootID     string
)

// CurrentBootID identifies this boot. The kernel's boot_id is stable for
// the lifetime of a boot and changes on every reboot; when it is
// unreadable (non-Linux test hosts) a per-process random id stands in.
func CurrentBootID() string {
	bootIDOnce.Do(func() {
		if data, err := os.ReadFile(kernelBootIDPath); err == nil {
			if id := strings.TrimSpace(string(data)); id != "" {
				bootID = id
				return
			}
		}
		bootID = uuid.NewString()
	})
	return bootID
}
