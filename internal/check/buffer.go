package check

import "iter"

// Buffered maintains a FIFO window of up to size checks between the
// producer and the consumer. Ready instances typically hold a running
// external process, so the window is what lets those processes overlap:
// up to size of them run while the consumer drains the oldest one.
//
// A nil check from the source is a not-ready marker: it is never passed
// on, but it pops the oldest buffered check anyway, so a producer
// waiting for an earlier check to complete makes progress by yielding
// nil until the consumer catches up. The window only delays, it never
// reorders. Errors pass through immediately and end the stream.
func Buffered(src iter.Seq2[Check, error], size int) iter.Seq2[Check, error] {
	return func(yield func(Check, error) bool) {
		var window []Check
		for c, err := range src {
			if err != nil {
				yield(nil, err)
				return
			}
			if c != nil {
				window = append(window, c)
				if len(window) < size {
					continue
				}
			}
			if len(window) == 0 {
				continue
			}
			oldest := window[0]
			window = window[1:]
			if !yield(oldest, nil) {
				return
			}
		}
		for _, c := range window {
			if !yield(c, nil) {
				return
			}
		}
	}
}
