// Package guard switches the binaries into test mode when imported by a
// test, so main() returns before dialing Postgres or Redis.
package guard

import (
	"os"
	"sync"
)

const envKey = "MARGINBOARD_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(envKey) == "" {
			_ = os.Setenv(envKey, "1")
		}
	})
}
