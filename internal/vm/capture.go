package vm

// Capture is a variable shared between a frame and the closures created in it.
// While open it aliases an absolute stack slot; once baked it owns the value.
type Capture struct {
	vm    *VM
	index int
	open  bool
	value Value
}

// ClosedCapture creates a capture that already owns v.
func ClosedCapture(v Value) *Capture {
	return &Capture{value: v}
}

func (c *Capture) Get() Value {
	if c == nil {
		return Null()
	}
	if c.open {
		return c.vm.stack[c.index]
	}
	return c.value
}

func (c *Capture) Set(v Value) {
	if c == nil {
		return
	}
	if c.open {
		c.vm.stack[c.index] = v
		return
	}
	c.value = v
}

// IsOpen reports whether the capture still refers to a live frame slot.
func (c *Capture) IsOpen() bool { return c != nil && c.open }

func (c *Capture) bake() {
	if c.open {
		c.value = c.vm.stack[c.index]
		c.open = false
		c.vm = nil
	}
}

// captureAt returns the open capture of an absolute slot, creating it once.
func (vm *VM) captureAt(index int) *Capture {
	for _, c := range vm.openCaptures {
		if c.index == index {
			return c
		}
	}
	c := &Capture{vm: vm, index: index, open: true}
	vm.openCaptures = append(vm.openCaptures, c)
	return c
}

// closeCaptures bakes every open capture at or above from.
func (vm *VM) closeCaptures(from int) {
	kept := vm.openCaptures[:0]
	for _, c := range vm.openCaptures {
		if c.index >= from {
			c.bake()
			continue
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(vm.openCaptures); i++ {
		vm.openCaptures[i] = nil
	}
	vm.openCaptures = kept
}
