package bytecode

// Heap allocates every runtime object and interns every string. The VM
// and the compiler share one heap, so string constants created at
// compile time satisfy the same interning invariant as strings built at
// runtime.
//
// There is no garbage collector. Objects are chained onto an intrusive
// list as they are allocated and released in bulk by Free.
type Heap struct {
	// objects is the head of the intrusive list of every live object.
	objects Obj
	// strings maps string contents to their one canonical ObjString.
	// Values stored for interned keys are a nil sentinel.
	strings *Table
}

// NewHeap returns an empty heap with an empty interning table.
func NewHeap() *Heap {
	return &Heap{
		strings: NewTable(),
	}
}

// track links obj onto the heap's object list.
func (h *Heap) track(obj Obj) {
	obj.setNext(h.objects)
	h.objects = obj
}

// allocString creates a fresh string object and interns it. Callers
// must have checked the interning table first.
func (h *Heap) allocString(chars string, hash uint32) *ObjString {
	str := &ObjString{Chars: chars, Hash: hash}
	h.track(str)
	h.strings.Set(str, NilVal())
	return str
}

// CopyString interns the given bytes: if an equal string already lives
// on the heap the existing object is returned, otherwise a new one is
// allocated and recorded.
func (h *Heap) CopyString(chars string) *ObjString {
	hash := hashString(chars)
	if interned := h.strings.FindString(chars, hash); interned != nil {
		return interned
	}
	return h.allocString(chars, hash)
}

// Concatenate builds the string a+b and interns the result.
func (h *Heap) Concatenate(a, b *ObjString) *ObjString {
	return h.CopyString(a.Chars + b.Chars)
}

// NewFunction allocates an empty function with a fresh chunk. The name
// stays nil for the implicit top-level function.
func (h *Heap) NewFunction() *ObjFunction {
	fn := &ObjFunction{Chunk: NewChunk()}
	h.track(fn)
	return fn
}

// Strings exposes the interning table; the VM tears it down before the
// object list so table buckets never outlive their keys.
func (h *Heap) Strings() *Table {
	return h.strings
}

// Free releases everything the heap owns. The interning table goes
// first, then the object list is unlinked.
func (h *Heap) Free() {
	h.strings.Reset()

	obj := h.objects
	for obj != nil {
		next := obj.next()
		obj.setNext(nil)
		obj = next
	}
	h.objects = nil
}
