package registry

// A Cursor is a resumable position in a thread's portion of
// a three-level record collection: the owning thread, a
// group within the thread (the synapse type for
// connectivity traversal, the lag for spike traversal), and
// an index into the group's entry list.
//
// A Cursor whose fields are -1 means "no more data".
type Cursor struct {
	Thread int
	Group  int
	Index  int
}

// NoCursor returns the exhausted cursor.
func NoCursor() Cursor {
	return Cursor{Thread: -1, Group: -1, Index: -1}
}

// Valid reports whether the cursor points at data.
func (c Cursor) Valid() bool {
	return c.Thread >= 0
}

// A checkpoint holds a thread's traversal state: the
// position where emission will resume, and a saved position
// taken when a round's buffer overflowed mid-thread.
//
// The saved position is only meaningful while the pending
// flag is set.
type checkpoint struct {
	current Cursor
	saved   Cursor
	pending bool
}

// save checkpoints the current position. Saving on top of
// an unconsumed checkpoint would silently discard it, so
// doing that is treated as a protocol violation.
func (c *checkpoint) save() {
	if c.pending {
		panic("registry: checkpoint already pending")
	}
	c.saved = c.current
	c.pending = true
}

// restore resumes from the saved position, if any. Calling
// restore with no pending checkpoint is a no-op: a thread
// that finished its previous round cleanly has nothing to
// resume.
func (c *checkpoint) restore() {
	if c.pending {
		c.current = c.saved
		c.pending = false
	}
}

// reset moves both positions to start and clears any
// pending checkpoint.
func (c *checkpoint) reset(start Cursor) {
	c.current = start
	c.saved = start
	c.pending = false
}
