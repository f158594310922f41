package session

import (
	"fmt"
	"time"
)

// ZeroElapsed is the timer text outside a recording.
const ZeroElapsed = "00:00:00"

// FormatElapsed renders d as zero-padded HH:MM:SS. Hours are unbounded.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

// ticker calls fn every interval until stop is called.
type ticker struct {
	done chan struct{}
}

func startTicker(interval time.Duration, fn func()) *ticker {
	t := &ticker{done: make(chan struct{})}
	go func() {
		tk := time.NewTicker(interval)
		defer tk.Stop()
		for {
			select {
			case <-t.done:
				return
			case <-tk.C:
				fn()
			}
		}
	}()
	return t
}

func (t *ticker) stop() {
	if t == nil {
		return
	}
	select {
	case <-t.done:
	default:
		close(t.done)
	}
}
