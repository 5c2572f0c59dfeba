// Package sched is an optional thread-naming hook: a callback the host
// application supplies so it can size each logical worker (stack
// hint, priority, core affinity) by name. Go's runtime doesn't expose
// per-goroutine stacks or priorities, so Hint is advisory: callers
// resolve it by name, and no field of it (Core included) is applied
// to the goroutine.
package sched

// Recognized logical thread names.
const (
	PCTask  = "pc_task"
	PCSend  = "pc_send"
	AEnc    = "aenc"
	VEnc    = "venc"
	ADec    = "adec"
	VDec    = "vdec"
	ARender = "arender"
	VRender = "vrender"
	SrcRead = "SrcRead"
	BufferIn = "buffer_in"
)

// Hint is what a NameHook returns for a given logical thread name.
type Hint struct {
	StackBytes int
	Priority   int
	Core       int // -1 means "no affinity preference"
}

// DefaultHint is returned when no NameHook is configured.
var DefaultHint = Hint{StackBytes: 0, Priority: 0, Core: -1}

// NameHook lets a host app size/place a named logical thread.
type NameHook func(name string) Hint

// Resolve calls hook if non-nil, else returns DefaultHint.
func Resolve(hook NameHook, name string) Hint {
	if hook == nil {
		return DefaultHint
	}
	return hook(name)
}
