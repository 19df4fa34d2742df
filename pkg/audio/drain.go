package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use it when abandoning a synthesis stream early so the producing goroutine
// is not left blocked on a send.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
