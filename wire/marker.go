package wire

// The marker helpers below operate on raw uint64 buffer
// words. The fill/drain driver works on whole buffers
// without caring whether a word is a connectivity or a
// spike record; both formats keep the marker field in the
// same bits.

// MarkerComplete returns a bare continuation-complete
// marker word.
func MarkerComplete() uint64 {
	return slotComplete << slotShift
}

// MarkerEnd returns a bare stream-end marker word.
func MarkerEnd() uint64 {
	return slotEnd << slotShift
}

// IsComplete reports whether a buffer word is a
// continuation-complete marker.
func IsComplete(word uint64) bool {
	return word>>slotShift&slotMask == slotComplete
}

// IsEnd reports whether a buffer word is a stream-end
// marker.
func IsEnd(word uint64) bool {
	return word>>slotShift&slotMask == slotEnd
}

// IsMarker reports whether a buffer word is either marker.
func IsMarker(word uint64) bool {
	return IsComplete(word) || IsEnd(word)
}

// OwnerThread returns the owning-thread field of a buffer
// word. Both record formats keep it in the same bits.
func OwnerThread(word uint64) int {
	return int(word>>threadShift) & threadMask
}
