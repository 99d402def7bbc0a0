package pipeline

import "context"

// Merge interleaves two streams in arrival order. Neither side can block the
// other: whichever has a value ready is forwarded. The output closes after
// both inputs have closed, so background output still pending when
// upstream finishes is delivered before end of stream. If ctx is done the
// merge stops early and closes the output.
func Merge[T any](ctx context.Context, upstream, background <-chan T) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		a, b := upstream, background
		for a != nil || b != nil {
			var (
				v  T
				ok bool
			)
			select {
			case <-ctx.Done():
				return
			case v, ok = <-a:
				if !ok {
					a = nil
					continue
				}
			case v, ok = <-b:
				if !ok {
					b = nil
					continue
				}
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
