package stream

// Predicate reports whether a value is kept
type Predicate func(value interface{}) bool

// Filter keeps the values matching keep
func Filter(keep Predicate) Processor {
	return func(source Stream) Stream {
		return &filteredStream{Stream: source, keep: keep}
	}
}

type filteredStream struct {
	Stream
	keep Predicate
}

func (stream *filteredStream) Next() bool {
	for stream.Stream.Next() {
		if stream.keep(stream.Stream.Value()) {
			return true
		}
	}

	return false
}
