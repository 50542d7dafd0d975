package optional

// Optional is a value which may or may not be set.
type Optional[T any] struct {
	value T
	isSet bool
}

// Set stores a value in the optional.
func (o *Optional[T]) Set(val T) {
	o.value = val
	o.isSet = true
}

// Get returns the stored value. It panics if no value has been set so always
// check with HasValue first.
func (o *Optional[T]) Get() T {
	if !o.isSet {
		panic("getting the value of an empty optional")
	}
	return o.value
}

// HasValue returns true if a value has been stored in the optional.
func (o *Optional[T]) HasValue() bool {
	return o.isSet
}
