package extract

// Strategy is one attempt at resolving a field. It reports false when the
// page does not carry the signal it looks for.
type Strategy[T any] func(src *Source) (T, bool)

// First runs strategies in order and returns the first hit. A strategy that
// panics on unexpected markup counts as a miss.
func First[T any](src *Source, strategies ...Strategy[T]) (T, bool) {
	for _, s := range strategies {
		if v, ok := try(src, s); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// Or resolves a field with a chain and falls back to def.
func Or[T any](src *Source, def T, strategies ...Strategy[T]) T {
	if v, ok := First(src, strategies...); ok {
		return v
	}
	return def
}

func try[T any](src *Source, s Strategy[T]) (v T, ok bool) {
	defer func() {
		if recover() != nil {
			var zero T
			v, ok = zero, false
		}
	}()
	return s(src)
}
