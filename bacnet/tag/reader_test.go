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

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReaderEnclosedNesting(t *testing.T) {
	w := NewBuffer(32)
	w.OpeningTag(3)
	w.Real(1)
	w.OpeningTag(0)
	w.Unsigned(4)
	w.ClosingTag(0)
	w.Boolean(true)
	w.ClosingTag(3)
	w.ContextUnsigned(4, 9)

	r := NewReader(w.Bytes())
	body, err := r.Enclosed(3)
	if err != nil {
		t.Fatalf("Enclosed: %v", err)
	}

	inner := NewBuffer(16)
	inner.Real(1)
	inner.OpeningTag(0)
	inner.Unsigned(4)
	inner.ClosingTag(0)
	inner.Boolean(true)
	if diff := cmp.Diff(inner.Bytes(), body); diff != "" {
		t.Errorf("enclosed body mismatch (-want +got):\n%s", diff)
	}

	if v, err := r.ContextUnsigned(4); err != nil || v != 9 {
		t.Errorf("after enclosed: ContextUnsigned = %d, %v", v, err)
	}
}

func TestReaderStructureMismatch(t *testing.T) {
	t.Run("closing number", func(t *testing.T) {
		r := NewReader([]byte{0x3E, 0x21, 0x01, 0x4F})
		if err := r.Opening(3); err != nil {
			t.Fatal(err)
		}
		if _, err := r.Unsigned(); err != nil {
			t.Fatal(err)
		}
		if err := r.Closing(3); !errors.Is(err, ErrStructureMismatch) {
			t.Errorf("Closing: err = %v, want ErrStructureMismatch", err)
		}
	})

	t.Run("enclosed wrong closing", func(t *testing.T) {
		r := NewReader([]byte{0x3E, 0x21, 0x01, 0x4F})
		if _, err := r.Enclosed(3); !errors.Is(err, ErrStructureMismatch) {
			t.Errorf("Enclosed: err = %v, want ErrStructureMismatch", err)
		}
		if r.Offset() != 0 {
			t.Errorf("cursor moved to %d after failure", r.Offset())
		}
	})

	t.Run("enclosed inner closing number", func(t *testing.T) {
		// opening[3] opening[1] closing[2] closing[3]
		r := NewReader([]byte{0x3E, 0x1E, 0x2F, 0x3F})
		if _, err := r.Enclosed(3); !errors.Is(err, ErrStructureMismatch) {
			t.Errorf("Enclosed: err = %v, want ErrStructureMismatch", err)
		}
		if r.Offset() != 0 {
			t.Errorf("cursor moved to %d after failure", r.Offset())
		}
		if err := NewReader([]byte{0x3E, 0x1E, 0x2F, 0x3F}).Skip(); !errors.Is(err, ErrStructureMismatch) {
			t.Errorf("Skip: err = %v, want ErrStructureMismatch", err)
		}
	})

	t.Run("enclosed unterminated", func(t *testing.T) {
		r := NewReader([]byte{0x3E, 0x21, 0x01})
		if _, err := r.Enclosed(3); !errors.Is(err, ErrTruncated) {
			t.Errorf("Enclosed: err = %v, want ErrTruncated", err)
		}
	})

	t.Run("opening expected", func(t *testing.T) {
		r := NewReader([]byte{0x21, 0x01})
		if err := r.Opening(0); !errors.Is(err, ErrStructureMismatch) {
			t.Errorf("Opening: err = %v, want ErrStructureMismatch", err)
		}
	})
}

func TestReaderUnexpectedTag(t *testing.T) {
	r := NewReader([]byte{0x19, 0x55})
	if _, err := r.ContextUnsigned(0); !errors.Is(err, ErrMalformedTag) {
		t.Errorf("ContextUnsigned(0) on context 1: err = %v, want ErrMalformedTag", err)
	}
	if r.Offset() != 0 {
		t.Errorf("cursor moved to %d after failure", r.Offset())
	}
	if !r.IsContext(1) {
		t.Error("IsContext(1) = false")
	}
	if _, err := r.Real(); !errors.Is(err, ErrMalformedTag) {
		t.Errorf("Real on context tag: err = %v, want ErrMalformedTag", err)
	}
}

func TestReaderSkip(t *testing.T) {
	w := NewBuffer(32)
	w.ContextUnsigned(0, 1)
	w.OpeningTag(1)
	w.Text("skip me")
	w.ClosingTag(1)
	w.Enumerated(2)

	r := NewReader(w.Bytes())
	for i := 0; i < 2; i++ {
		if err := r.Skip(); err != nil {
			t.Fatalf("Skip %d: %v", i, err)
		}
	}
	if v, err := r.Enumerated(); err != nil || v != 2 {
		t.Errorf("Enumerated = %d, %v", v, err)
	}
}

func TestDecodeApplicationValues(t *testing.T) {
	w := NewBuffer(16)
	w.Real(72.5)
	w.Unsigned(3)
	w.Null()

	got, err := DecodeApplicationValues(w.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	want := []Value{RealValue(72.5), UnsignedValue(3), NullValue()}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}

	if _, err := DecodeApplicationValues(w.Bytes()[:w.Len()-2]); !errors.Is(err, ErrTruncated) {
		t.Errorf("truncated run: err = %v, want ErrTruncated", err)
	}
}
