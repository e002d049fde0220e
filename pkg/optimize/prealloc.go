package optimize

// PreAllocateSlice pre-allocates a slice with known capacity
func PreAllocateSlice[T any](length, capacity int) []T {
	if capacity < length {
		capacity = length
	}
	return make([]T, length, capacity)
}
