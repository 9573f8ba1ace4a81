package server

// gatherValues reads a projection of each target session without racing
// against the loops that own them. Targets are partitioned by owning loop, the
// projection runs on each owning loop (observing a quiescent view of that
// session), and the concatenated results are handed to yield exactly once on
// the requester's own loop.
//
// No ordering holds across partitions; within a partition, results follow
// input order. Sessions that were never activated (no loop yet) are skipped.
// The projection must be side-effect-free: this is the only sanctioned way to
// read state owned by another session's loop.
func gatherValues[T any](requester *Session, targets []*Session, project func(*Session) T, yield func([]T)) {
	home := requester.loop
	if home == nil {
		errorLog.Printf("Session %d: gather requested before activation", requester.id)
		return
	}

	// Partition by owning loop, keeping first-seen loop order.
	var order []*eventLoop
	partitions := make(map[*eventLoop][]*Session)
	for _, target := range targets {
		l := target.loop
		if l == nil {
			continue // not yet activated, accepted behavior
		}
		if _, seen := partitions[l]; !seen {
			order = append(order, l)
		}
		partitions[l] = append(partitions[l], target)
	}

	if len(order) == 0 {
		home.Execute(func() { yield(nil) })
		return
	}

	results := make(chan []T, len(order))
	for _, l := range order {
		sessions := partitions[l]
		l.Execute(func() {
			values := make([]T, 0, len(sessions))
			for _, sess := range sessions {
				values = append(values, project(sess))
			}
			results <- values
		})
	}

	expected := len(order)
	go func() {
		var combined []T
		for i := 0; i < expected; i++ {
			combined = append(combined, <-results...)
		}
		home.Execute(func() { yield(combined) })
	}()
}
