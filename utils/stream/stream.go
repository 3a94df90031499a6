// Package stream composes lazy processing steps over a
// sequence of values. Query paths build a source with Slice,
// chain processors with Pipeline and drain it with Collect.
package stream

// Stream iterates over values. Next must be called before the
// first Value. Once Next returns false, Error reports whether
// the stream ended early.
type Stream interface {
	Next() bool
	// Value is nil before the first Next and after the last one.
	Value() interface{}
	Error() error
}

// Processor derives a stream from its source
type Processor func(Stream) Stream

// Pipeline applies processors to source in order. Nil
// processors are skipped so optional steps can be passed
// inline.
func Pipeline(source Stream, processors ...Processor) Stream {
	result := source

	for _, processor := range processors {
		if processor != nil {
			result = processor(result)
		}
	}

	return result
}
