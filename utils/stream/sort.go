package stream

import "github.com/jrife/kvbackend/utils/sortedwindow"

// Sort drains its source on the first Next and yields the
// values in ascending compare order. A positive window keeps
// only the window lowest values, so sorting for a page of n
// costs memory for n values instead of the whole source.
func Sort(compare func(a interface{}, b interface{}) int, window int) Processor {
	return func(source Stream) Stream {
		return &sortedStream{
			Stream: source,
			window: sortedwindow.New(compare, sortedwindow.WithLimit(window)),
		}
	}
}

type sortedStream struct {
	Stream
	window  *sortedwindow.SortedMinWindow
	sorted  *sortedwindow.Iterator
	drained bool
}

func (stream *sortedStream) drain() bool {
	stream.drained = true

	for stream.Stream.Next() {
		stream.window.Insert(stream.Stream.Value())
	}

	if stream.Stream.Error() != nil {
		return false
	}

	stream.sorted = stream.window.Iterator()

	return true
}

func (stream *sortedStream) Next() bool {
	if !stream.drained && !stream.drain() {
		return false
	}

	return stream.sorted != nil && stream.sorted.Next()
}

func (stream *sortedStream) Value() interface{} {
	if stream.sorted == nil {
		return nil
	}

	return stream.sorted.Value()
}
