package vm

import "github.com/xirelogy/go-zscript/internal/errs"

// iterator walks an array, table or string for foreach loops.
// Tables are visited in insertion order; entries appended during the loop are visited too.
type iterator struct {
	src Value
	pos int
}

func newIterator(src Value) (*iterator, error) {
	switch src.Kind {
	case KindArray, KindTable, KindString:
		return &iterator{src: src}, nil
	}
	return nil, errs.InvalidType.New("cannot iterate over %s", typeName(src))
}

// next returns the next key/value pair, or false once exhausted.
func (it *iterator) next() (Value, Value, bool) {
	i := it.pos
	switch it.src.Kind {
	case KindArray:
		items := it.src.Array().Items
		if i >= len(items) {
			return Null(), Null(), false
		}
		it.pos++
		return Int(int64(i)), items[i], true
	case KindTable:
		t := it.src.Table()
		if i >= t.Len() {
			return Null(), Null(), false
		}
		it.pos++
		k, v := t.Entry(i)
		return k, v, true
	case KindString:
		s := it.src.Str
		if i >= len(s) {
			return Null(), Null(), false
		}
		it.pos++
		return Int(int64(i)), Int(int64(s[i])), true
	}
	return Null(), Null(), false
}
