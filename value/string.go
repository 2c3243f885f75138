package value

// String is the heap-allocated backing for TagStr values. Two Values may
// point at the same String (refcounted sharing); Data is immutable once
// constructed — string ops build a new String rather than mutate in
// place, matching the source language's value semantics for strings.
type String struct {
	hdr  Header
	Data string
}

func NewString(owner Owner, data string) *String {
	return &String{hdr: NewHeader(owner), Data: data}
}

func (s *String) Header() *Header { return &s.hdr }
func (s *String) Len() int32      { return int32(len(s.Data)) }
