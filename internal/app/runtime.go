package app

import (
	"os"
	"sync"
)

const testModeEnv = "RETHREAD_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// InTestMode reports whether the process should skip runtime startup.
// CI smoke checks set RETHREAD_TEST_MODE=1 to exercise wiring without
// opening sockets or connecting to backing services.
func InTestMode() bool {
	return testMode()
}
