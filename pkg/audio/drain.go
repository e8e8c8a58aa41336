package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use it when a producer must be allowed to finish (e.g., a cancelled
// synthesis stream) but its output is no longer wanted.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
