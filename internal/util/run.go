package util

import "sync"

type fnWithErrorResult func() error

// IgnoreError calls the passed fn and ignores the error it returns.
// Example `defer util.IgnoreError(file.Close)`
func IgnoreError(fn fnWithErrorResult) {
	_ = fn()
}

// GoWithWaitGroup runs fn in a goroutine with an optional
// *sync.WaitGroup to track when fn finishes executing.
func GoWithWaitGroup(wg *sync.WaitGroup, fn func()) {
	if wg != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	} else {
		go fn()
	}
}
