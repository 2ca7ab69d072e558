package batch

// Partition deals items round-robin into n shards, preserving their order
// within each shard.
func Partition[T any](items []T, n int) [][]T {
	if n < 1 {
		n = 1
	}
	shards := make([][]T, n)
	for i, item := range items {
		shards[i%n] = append(shards[i%n], item)
	}
	return shards
}

// Distribution returns the size of every shard.
func Distribution[T any](shards [][]T) []int {
	out := make([]int, len(shards))
	for i, s := range shards {
		out[i] = len(s)
	}
	return out
}
