package sync

import "github.com/google/uuid"

// MergeResult describes the outcome of merging a remote snapshot into local data.
type MergeResult[T any] struct {
	Items []T
	// Changes holds the added and updated items, the only ones that need to
	// be written back.
	Changes []T
	// Replaced is set when local was empty and the remote set was taken whole.
	Replaced bool
	Added    int
	Updated  int
	// Retained counts local-only items kept because the remote never has
	// authority to delete.
	Retained int
}

// Changed reports whether the merged set differs from local.
func (r MergeResult[T]) Changed() bool {
	return r.Replaced || r.Added > 0 || r.Updated > 0
}

// Merge folds remote into local by ID. Remote wins on conflict, local-only
// items are kept, and an empty remote set leaves local untouched. Local order
// is preserved; remote-only items follow in remote order.
func Merge[T any](local, remote []T, key func(T) uuid.UUID, equal func(a, b T) bool) MergeResult[T] {
	if len(remote) == 0 {
		return MergeResult[T]{Items: local, Retained: len(local)}
	}
	if len(local) == 0 {
		items := make([]T, len(remote))
		copy(items, remote)
		return MergeResult[T]{Items: items, Changes: items, Replaced: true, Added: len(remote)}
	}

	byID := make(map[uuid.UUID]T, len(remote))
	order := make([]uuid.UUID, 0, len(remote))
	for _, r := range remote {
		id := key(r)
		if _, dup := byID[id]; !dup {
			order = append(order, id)
		}
		byID[id] = r
	}

	res := MergeResult[T]{Items: make([]T, 0, len(local)+len(remote))}
	seen := make(map[uuid.UUID]bool, len(local))
	for _, l := range local {
		id := key(l)
		seen[id] = true
		r, ok := byID[id]
		switch {
		case !ok:
			res.Items = append(res.Items, l)
			res.Retained++
		case equal(l, r):
			res.Items = append(res.Items, l)
		default:
			res.Items = append(res.Items, r)
			res.Changes = append(res.Changes, r)
			res.Updated++
		}
	}
	for _, id := range order {
		if seen[id] {
			continue
		}
		res.Items = append(res.Items, byID[id])
		res.Changes = append(res.Changes, byID[id])
		res.Added++
	}
	return res
}
