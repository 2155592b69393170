// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tag

import "fmt"

// Reader is a cursor over an encoded service payload. It never reads past
// its slice. A failed read leaves the cursor where it was.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a Reader over b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Len returns the number of unread octets.
func (r *Reader) Len() int { return len(r.buf) - r.off }

// Offset returns the number of octets consumed.
func (r *Reader) Offset() int { return r.off }

// Empty reports whether everything has been consumed.
func (r *Reader) Empty() bool { return r.off >= len(r.buf) }

// Remaining returns the unread octets without consuming them.
func (r *Reader) Remaining() []byte { return r.buf[r.off:] }

// Peek decodes the next tag header without consuming it.
func (r *Reader) Peek() (Tag, error) {
	t, _, err := DecodeTag(r.buf[r.off:])
	return t, err
}

// IsContext reports whether the next tag is primitive context tag n.
func (r *Reader) IsContext(n uint8) bool {
	t, err := r.Peek()
	return err == nil && t.IsContext(n)
}

// IsOpening reports whether the next tag opens context n.
func (r *Reader) IsOpening(n uint8) bool {
	t, err := r.Peek()
	return err == nil && t.IsOpening(n)
}

// IsClosing reports whether the next tag closes context n.
func (r *Reader) IsClosing(n uint8) bool {
	t, err := r.Peek()
	return err == nil && t.IsClosing(n)
}

// IsApplication reports whether the next tag is application tag a.
func (r *Reader) IsApplication(a ApplicationTag) bool {
	t, err := r.Peek()
	return err == nil && t.IsApplication(a)
}

// Opening consumes the opening tag of context n.
func (r *Reader) Opening(n uint8) error {
	t, hl, err := DecodeTag(r.buf[r.off:])
	if err != nil {
		return err
	}
	if !t.IsOpening(n) {
		return fmt.Errorf("%w: expected opening[%d], got %s", ErrStructureMismatch, n, t)
	}
	r.off += hl
	return nil
}

// Closing consumes the closing tag of context n.
func (r *Reader) Closing(n uint8) error {
	t, hl, err := DecodeTag(r.buf[r.off:])
	if err != nil {
		return err
	}
	if !t.IsClosing(n) {
		return fmt.Errorf("%w: expected closing[%d], got %s", ErrStructureMismatch, n, t)
	}
	r.off += hl
	return nil
}

// Enclosed consumes opening tag n, everything up to the matching closing
// tag, and the closing tag. It returns the octets in between.
func (r *Reader) Enclosed(n uint8) ([]byte, error) {
	start := r.off
	if err := r.Opening(n); err != nil {
		return nil, err
	}
	inner := r.off
	var open []uint8
	for {
		t, hl, err := DecodeTag(r.buf[r.off:])
		if err != nil {
			r.off = start
			return nil, err
		}
		switch {
		case t.Opening:
			open = append(open, t.Number)
		case t.Closing && len(open) == 0:
			if t.Number != n {
				r.off = start
				return nil, fmt.Errorf("%w: expected closing[%d], got %s", ErrStructureMismatch, n, t)
			}
			body := r.buf[inner:r.off]
			r.off += hl
			return body, nil
		case t.Closing:
			if want := open[len(open)-1]; t.Number != want {
				r.off = start
				return nil, fmt.Errorf("%w: expected closing[%d], got %s", ErrStructureMismatch, want, t)
			}
			open = open[:len(open)-1]
		}
		if uint64(r.Len()) < uint64(hl)+uint64(t.ContentLength()) {
			r.off = start
			return nil, ErrTruncated
		}
		r.off += hl + int(t.ContentLength())
	}
}

// Skip consumes the next element, a primitive or a whole constructed
// context.
func (r *Reader) Skip() error {
	t, hl, err := DecodeTag(r.buf[r.off:])
	if err != nil {
		return err
	}
	if t.Opening {
		_, err := r.Enclosed(t.Number)
		return err
	}
	if t.Closing {
		return fmt.Errorf("%w: unexpected %s", ErrStructureMismatch, t)
	}
	if uint64(r.Len()) < uint64(hl)+uint64(t.ContentLength()) {
		return ErrTruncated
	}
	r.off += hl + int(t.ContentLength())
	return nil
}

// Application consumes one application tagged value.
func (r *Reader) Application() (Value, error) {
	v, n, err := DecodeApplication(r.buf[r.off:])
	if err != nil {
		return Value{}, err
	}
	r.off += n
	return v, nil
}

// applicationAs consumes an application value that must be of type a.
func (r *Reader) applicationAs(a ApplicationTag) (Value, error) {
	t, err := r.Peek()
	if err != nil {
		return Value{}, err
	}
	if !t.IsApplication(a) {
		return Value{}, fmt.Errorf("%w: expected %s, got %s", ErrMalformedTag, a, t)
	}
	return r.Application()
}

// context consumes primitive context tag n and decodes it as type a.
func (r *Reader) context(n uint8, a ApplicationTag) (Value, error) {
	t, hl, err := DecodeTag(r.buf[r.off:])
	if err != nil {
		return Value{}, err
	}
	if !t.IsContext(n) {
		return Value{}, fmt.Errorf("%w: expected context[%d], got %s", ErrMalformedTag, n, t)
	}
	v, m, err := decodeContent(a, t, r.buf[r.off+hl:])
	if err != nil {
		return Value{}, err
	}
	r.off += hl + m
	return v, nil
}

// Boolean consumes an application boolean.
func (r *Reader) Boolean() (bool, error) {
	v, err := r.applicationAs(AppBoolean)
	return v.Boolean, err
}

// Unsigned consumes an application unsigned integer.
func (r *Reader) Unsigned() (uint32, error) {
	v, err := r.applicationAs(AppUnsigned)
	return v.Unsigned, err
}

// Signed consumes an application signed integer.
func (r *Reader) Signed() (int32, error) {
	v, err := r.applicationAs(AppSigned)
	return v.Signed, err
}

// Real consumes an application real.
func (r *Reader) Real() (float32, error) {
	v, err := r.applicationAs(AppReal)
	return v.Real, err
}

// Enumerated consumes an application enumerated value.
func (r *Reader) Enumerated() (uint32, error) {
	v, err := r.applicationAs(AppEnumerated)
	return v.Enumerated, err
}

// CharString consumes an application character string.
func (r *Reader) CharString() (CharString, error) {
	v, err := r.applicationAs(AppCharacterString)
	return v.String, err
}

// ObjectID consumes an application object identifier.
func (r *Reader) ObjectID() (ObjectID, error) {
	v, err := r.applicationAs(AppObjectID)
	return v.ObjectID, err
}

// ContextBoolean consumes context boolean n.
func (r *Reader) ContextBoolean(n uint8) (bool, error) {
	v, err := r.context(n, AppBoolean)
	return v.Boolean, err
}

// ContextUnsigned consumes context unsigned n.
func (r *Reader) ContextUnsigned(n uint8) (uint32, error) {
	v, err := r.context(n, AppUnsigned)
	return v.Unsigned, err
}

// ContextSigned consumes context signed n.
func (r *Reader) ContextSigned(n uint8) (int32, error) {
	v, err := r.context(n, AppSigned)
	return v.Signed, err
}

// ContextReal consumes context real n.
func (r *Reader) ContextReal(n uint8) (float32, error) {
	v, err := r.context(n, AppReal)
	return v.Real, err
}

// ContextEnumerated consumes context enumerated n.
func (r *Reader) ContextEnumerated(n uint8) (uint32, error) {
	v, err := r.context(n, AppEnumerated)
	return v.Enumerated, err
}

// ContextOctetString consumes context octet string n.
func (r *Reader) ContextOctetString(n uint8) ([]byte, error) {
	v, err := r.context(n, AppOctetString)
	return v.Octets, err
}

// ContextCharString consumes context character string n.
func (r *Reader) ContextCharString(n uint8) (CharString, error) {
	v, err := r.context(n, AppCharacterString)
	return v.String, err
}

// ContextBitString consumes context bit string n.
func (r *Reader) ContextBitString(n uint8) (BitString, error) {
	v, err := r.context(n, AppBitString)
	return v.Bits, err
}

// ContextObjectID consumes context object identifier n.
func (r *Reader) ContextObjectID(n uint8) (ObjectID, error) {
	v, err := r.context(n, AppObjectID)
	return v.ObjectID, err
}

// ContextDate consumes context date n.
func (r *Reader) ContextDate(n uint8) (Date, error) {
	v, err := r.context(n, AppDate)
	return v.Date, err
}

// ContextTime consumes context time n.
func (r *Reader) ContextTime(n uint8) (Time, error) {
	v, err := r.context(n, AppTime)
	return v.Time, err
}
