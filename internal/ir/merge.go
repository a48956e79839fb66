package ir

// DeepCopy returns a copy of v that shares no mutable structure with it.
func DeepCopy(v IRValue) IRValue {
	switch val := v.(type) {
	case IRObject:
		return val.Clone()
	case IRArray:
		if val == nil {
			return IRArray(nil)
		}
		out := make(IRArray, len(val))
		for i, elem := range val {
			out[i] = DeepCopy(elem)
		}
		return out
	default:
		return v
	}
}

// Clone returns a deep copy of the object. Cloning nil yields an empty object.
func (obj IRObject) Clone() IRObject {
	out := make(IRObject, len(obj))
	for k, v := range obj {
		out[k] = DeepCopy(v)
	}
	return out
}

// Merge deep-merges patch into dst in place. Nested objects are merged key by
// key; any other value, including arrays, replaces what dst holds, and so
// does an object patched onto a nil object. Values taken from patch are
// copied so dst never aliases it.
func Merge(dst, patch IRObject) {
	for k, pv := range patch {
		if pObj, ok := pv.(IRObject); ok {
			if dObj, ok := dst[k].(IRObject); ok && dObj != nil {
				Merge(dObj, pObj)
				continue
			}
		}
		dst[k] = DeepCopy(pv)
	}
}

// Equal reports whether two values are structurally equal.
func Equal(a, b IRValue) bool {
	switch av := a.(type) {
	case IRObject:
		bv, ok := b.(IRObject)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, ok := bv[k]
			if !ok || !Equal(v, other) {
				return false
			}
		}
		return true
	case IRArray:
		bv, ok := b.(IRArray)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
