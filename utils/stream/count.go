package stream

// Count increments n for every element that passes through
func Count(n *int) Processor {
	return func(stream Stream) Stream {
		return &countedStream{stream, n}
	}
}

type countedStream struct {
	Stream
	n *int
}

func (stream *countedStream) Next() bool {
	if !stream.Stream.Next() {
		return false
	}

	*stream.n++

	return true
}
