package auth

// unbounded connects a send side that never blocks for long to a receive side
// that yields values in order. When in is closed, buffered values are still
// delivered before out is closed. Closing stop abandons anything undelivered.
func unbounded[T any](stop <-chan struct{}) (chan<- T, <-chan T) {
	in := make(chan T)
	out := make(chan T)
	go func() {
		defer close(out)
		var queue []T
		for in != nil || len(queue) > 0 {
			var send chan<- T
			var next T
			if len(queue) > 0 {
				send = out
				next = queue[0]
			}
			select {
			case v, ok := <-in:
				if !ok {
					in = nil
					continue
				}
				queue = append(queue, v)
			case send <- next:
				var zero T
				queue[0] = zero
				queue = queue[1:]
			case <-stop:
				return
			}
		}
	}()
	return in, out
}
