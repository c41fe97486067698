package task

// NewStub returns a Handle to a sentinel task that is never polled,
// woken, or joined: a placeholder node for a collaborator that needs a
// non-nil task reference to splice into an intrusive structure (e.g. a
// queue's sentinel node), per spec.md §3/§9.
func NewStub() *Handle {
	h := &header{
		state: newStubState(),
		id:    StubID,
	}
	h.vtable = stubVTable
	return &Handle{hdr: h}
}
