package lib

import (
	"os"
	"sync"
	"time"
)

var (
	norecover = false

	timers = &sync.Pool{
		New: func() any {
			return time.NewTimer(time.Second * 5)
		},
	}
)

func init() {
	if os.Getenv("VESSEL_NORECOVER") != "" {
		norecover = true
	}
}

// Recover reports whether panics in guest callbacks should be recovered and
// turned into abnormal terminations. Disable with VESSEL_NORECOVER to get
// original stack traces during debugging.
func Recover() bool {
	return norecover == false
}

// TakeTimer borrows a timer from the pool. The timer is not stopped.
func TakeTimer() *time.Timer {
	return timers.Get().(*time.Timer)
}

// ReleaseTimer stops the timer, drains its channel and puts it back.
func ReleaseTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timers.Put(t)
}
