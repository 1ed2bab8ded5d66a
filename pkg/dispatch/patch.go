package dispatch

// Patch is a partial update to an optional field. The zero value leaves the field untouched, Clear removes the value and Set
// assigns it.
type Patch[T any] struct {
	set   bool
	value *T
}

func Set[T any](v T) Patch[T] {
	return Patch[T]{set: true, value: &v}
}

func Clear[T any]() Patch[T] {
	return Patch[T]{set: true}
}

func (p Patch[T]) IsSet() bool {
	return p.set
}

// Value returns the assigned value, or nil when the patch clears the field or is unset.
func (p Patch[T]) Value() *T {
	return p.value
}

func (p Patch[T]) apply(dst **T) {
	if !p.set {
		return
	}
	if p.value == nil {
		*dst = nil
		return
	}
	v := *p.value
	*dst = &v
}
