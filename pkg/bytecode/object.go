package bytecode

// ObjKind tags the concrete type of a heap object.
type ObjKind int

const (
	ObjKindString ObjKind = iota
	ObjKindFunction
)

// Obj is a heap-allocated runtime object. Every object carries a link
// to the object allocated before it, forming the heap's intrusive list;
// the list exists only so the heap can release everything in one walk
// at teardown.
type Obj interface {
	Kind() ObjKind
	String() string
	next() Obj
	setNext(Obj)
}

// objHeader supplies the intrusive link. Concrete objects embed it.
type objHeader struct {
	nextObj Obj
}

func (h *objHeader) next() Obj     { return h.nextObj }
func (h *objHeader) setNext(o Obj) { h.nextObj = o }

// ObjString is an interned string. Chars holds the bytes and Hash the
// precomputed 32-bit FNV-1a of those bytes, cached for table probes.
//
// ObjStrings are only created through a Heap, which guarantees that two
// ObjStrings with equal contents are the same object.
type ObjString struct {
	objHeader
	Chars string
	Hash  uint32
}

func (s *ObjString) Kind() ObjKind { return ObjKindString }

// String returns the raw bytes; print shows strings unquoted.
func (s *ObjString) String() string { return s.Chars }

// ObjFunction is a compiled function: its arity, the chunk holding its
// body, and its name. Name is nil for the implicit top-level function.
type ObjFunction struct {
	objHeader
	Arity int
	Chunk *Chunk
	Name  *ObjString
}

func (f *ObjFunction) Kind() ObjKind { return ObjKindFunction }

func (f *ObjFunction) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return "<fn " + f.Name.Chars + ">"
}

// hashString is 32-bit FNV-1a. The hash is part of the interning
// contract: FindString compares stored hashes before bytes.
func hashString(s string) uint32 {
	var hash uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}
