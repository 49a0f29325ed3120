package vm

// Duplicate returns a new VM with a deep copy of the root table and the same
// configuration. Shared structure and cycles are preserved; prototypes and natives
// are shared. Execution state (stack, frames) is not copied.
func (vm *VM) Duplicate() *VM {
	if vm == nil {
		return nil
	}
	dup := New(vm.cfg)
	dup.traceHook = vm.traceHook

	clone := newCloneState(vm, dup)
	vm.root.Range(func(k, v Value) bool {
		dup.root.Set(clone.cloneValue(k), clone.cloneValue(v))
		return true
	})
	return dup
}

type cloneState struct {
	from, to  *VM
	tables    map[*Table]*Table
	arrays    map[*Array]*Array
	closures  map[*Closure]*Closure
	captures  map[*Capture]*Capture
	userdata  map[*UserData]*UserData
	iterators map[*iterator]*iterator
}

func newCloneState(from, to *VM) *cloneState {
	return &cloneState{
		from:      from,
		to:        to,
		tables:    make(map[*Table]*Table),
		arrays:    make(map[*Array]*Array),
		closures:  make(map[*Closure]*Closure),
		captures:  make(map[*Capture]*Capture),
		userdata:  make(map[*UserData]*UserData),
		iterators: make(map[*iterator]*iterator),
	}
}

func (cs *cloneState) cloneValue(v Value) Value {
	switch v.Kind {
	case KindTable:
		return TableValue(cs.cloneTable(v.Table()))
	case KindArray:
		return ArrayValue(cs.cloneArray(v.Array()))
	case KindClosure:
		return ClosureValue(cs.cloneClosure(v.Closure()))
	case KindNative:
		n := v.Native()
		if !n.Bound {
			return v
		}
		out := *n
		out.This = cs.cloneValue(n.This)
		return NativeValue(&out)
	case KindUserData:
		u := v.UserData()
		if out, ok := cs.userdata[u]; ok {
			return UserDataValue(out)
		}
		out := &UserData{Data: u.Data}
		cs.userdata[u] = out
		out.Delegate = cs.cloneValue(u.Delegate)
		return UserDataValue(out)
	case KindWeakRef:
		target := v.WeakRef().Deref()
		if target.IsNull() {
			return WeakRefValue(NewWeakRef(Null()))
		}
		return WeakRefValue(NewWeakRef(cs.cloneValue(target)))
	case KindIterator:
		it := v.iterator()
		if out, ok := cs.iterators[it]; ok {
			return iteratorValue(out)
		}
		out := &iterator{pos: it.pos}
		cs.iterators[it] = out
		out.src = cs.cloneValue(it.src)
		return iteratorValue(out)
	default:
		return v
	}
}

// cloneTable maps the source VM's default delegates onto the duplicate's own.
func (cs *cloneState) cloneTable(t *Table) *Table {
	switch t {
	case cs.from.root:
		return cs.to.root
	case cs.from.tableDelegate:
		return cs.to.tableDelegate
	case cs.from.arrayDelegate:
		return cs.to.arrayDelegate
	case cs.from.strDelegate:
		return cs.to.strDelegate
	}
	if out, ok := cs.tables[t]; ok {
		return out
	}
	out := NewTable()
	cs.tables[t] = out
	out.Delegate = cs.cloneValue(t.Delegate)
	out.schema, out.instance = t.schema, t.instance
	out.sealed, out.frozen = t.sealed, t.frozen
	t.Range(func(k, v Value) bool {
		out.Set(cs.cloneValue(k), cs.cloneValue(v))
		return true
	})
	return out
}

func (cs *cloneState) cloneArray(a *Array) *Array {
	if out, ok := cs.arrays[a]; ok {
		return out
	}
	out := &Array{Items: make([]Value, len(a.Items))}
	cs.arrays[a] = out
	out.Delegate = cs.cloneValue(a.Delegate)
	for i := range a.Items {
		out.Items[i] = cs.cloneValue(a.Items[i])
	}
	return out
}

func (cs *cloneState) cloneClosure(cl *Closure) *Closure {
	if out, ok := cs.closures[cl]; ok {
		return out
	}
	out := &Closure{Proto: cl.Proto, Bound: cl.Bound}
	cs.closures[cl] = out
	out.This = cs.cloneValue(cl.This)
	if cl.Captures != nil {
		out.Captures = make([]*Capture, len(cl.Captures))
		for i, c := range cl.Captures {
			out.Captures[i] = cs.cloneCapture(c)
		}
	}
	if cl.Defaults != nil {
		out.Defaults = make([]Value, len(cl.Defaults))
		for i, d := range cl.Defaults {
			out.Defaults[i] = cs.cloneValue(d)
		}
	}
	return out
}

// cloneCapture bakes into the copy: the duplicate has no live frames to alias.
func (cs *cloneState) cloneCapture(c *Capture) *Capture {
	if out, ok := cs.captures[c]; ok {
		return out
	}
	out := &Capture{}
	cs.captures[c] = out
	out.value = cs.cloneValue(c.Get())
	return out
}
