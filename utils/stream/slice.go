package stream

// Slice streams the elements of values in order
func Slice(values []interface{}) Stream {
	return &sliceStream{values: values, position: -1}
}

type sliceStream struct {
	values   []interface{}
	position int
}

func (stream *sliceStream) Next() bool {
	if stream.position >= len(stream.values) {
		return false
	}

	stream.position++

	return stream.position < len(stream.values)
}

func (stream *sliceStream) Value() interface{} {
	if stream.position < 0 || stream.position >= len(stream.values) {
		return nil
	}

	return stream.values[stream.position]
}

func (stream *sliceStream) Error() error {
	return nil
}

// Collect drains stream into a slice
func Collect(stream Stream) ([]interface{}, error) {
	values := []interface{}{}

	for stream.Next() {
		values = append(values, stream.Value())
	}

	if err := stream.Error(); err != nil {
		return nil, err
	}

	return values, nil
}
