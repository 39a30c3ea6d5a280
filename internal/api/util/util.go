package util

// ApplyConversion applies a converter function to each of the models
// provided to this function. The returned value is a slice which
// has been converted to the new values based on the returned value
// from the converter.
func ApplyConversion[T any, K any](models []T, converter func(T) K) []K {
	dtos := make([]K, 0, len(models))
	for _, v := range models {
		dtos = append(dtos, converter(v))
	}

	return dtos
}

// EmptyIfNil returns an empty, non-nil slice in place of a nil one so
// that it is marshalled as [] rather than null.
func EmptyIfNil[T any](models []T) []T {
	if models == nil {
		return []T{}
	}

	return models
}
