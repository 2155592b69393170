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

package mstp

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCRC(t *testing.T) {
	if got := HeaderCRC([]byte{0x00, 0x10, 0x05, 0x00, 0x00}); got != 0x8C {
		t.Errorf("HeaderCRC(token 5->16) = 0x%02X, want 0x8C", got)
	}
	if got := DataCRC([]byte{0x01, 0x22, 0x30}); got != 0xBD10 {
		t.Errorf("DataCRC = 0x%04X, want 0xBD10", got)
	}
	if got := DataCRC([]byte("123456789")); got != 0x906E {
		t.Errorf("DataCRC(check) = 0x%04X, want 0x906E", got)
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  []byte
	}{
		{
			name:  "token",
			frame: Frame{Type: FrameToken, Dest: 0x10, Src: 0x05},
			want:  []byte{0x55, 0xFF, 0x00, 0x10, 0x05, 0x00, 0x00, 0x8C},
		},
		{
			name:  "data",
			frame: Frame{Type: FrameDataNotExpectingReply, Dest: 0x0A, Src: 0x05, Data: []byte{0x01, 0x22, 0x30}},
			want:  []byte{0x55, 0xFF, 0x06, 0x0A, 0x05, 0x00, 0x03, 0x41, 0x01, 0x22, 0x30, 0x10, 0xBD},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.frame.Encode()
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Encode = % X\nwant     % X", got, tt.want)
			}
		})
	}

	if _, err := (Frame{Data: make([]byte, MaxData+1)}).Encode(); !errors.Is(err, ErrFrameTooLong) {
		t.Errorf("oversized frame: err = %v, want ErrFrameTooLong", err)
	}
}

func TestReadFrame(t *testing.T) {
	token := []byte{0x55, 0xFF, 0x00, 0x10, 0x05, 0x00, 0x00, 0x8C}
	data := []byte{0x55, 0xFF, 0x06, 0x0A, 0x05, 0x00, 0x03, 0x41, 0x01, 0x22, 0x30, 0x10, 0xBD}
	badHeader := []byte{0x55, 0xFF, 0x00, 0x10, 0x05, 0x00, 0x00, 0x8D}
	badData := []byte{0x55, 0xFF, 0x06, 0x0A, 0x05, 0x00, 0x03, 0x41, 0x01, 0x22, 0x31, 0x10, 0xBD}

	var stream []byte
	stream = append(stream, 0x00, 0x55, 0x13) // line noise
	stream = append(stream, token...)
	stream = append(stream, badHeader...)
	stream = append(stream, badData...)
	stream = append(stream, 0xFF) // pad
	stream = append(stream, data...)

	r := NewReader(bytes.NewReader(stream))
	steps := []struct {
		want    Frame
		wantErr error
	}{
		{want: Frame{Type: FrameToken, Dest: 0x10, Src: 0x05}},
		{wantErr: ErrHeaderCRC},
		{wantErr: ErrDataCRC},
		{want: Frame{Type: FrameDataNotExpectingReply, Dest: 0x0A, Src: 0x05, Data: []byte{0x01, 0x22, 0x30}}},
		{wantErr: io.EOF},
	}
	for i, step := range steps {
		got, err := r.ReadFrame()
		if step.wantErr != nil {
			if !errors.Is(err, step.wantErr) {
				t.Fatalf("frame %d: err = %v, want %v", i, err, step.wantErr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if diff := cmp.Diff(step.want, got); diff != "" {
			t.Errorf("frame %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestReadFrameTruncated(t *testing.T) {
	data := []byte{0x55, 0xFF, 0x06, 0x0A, 0x05, 0x00, 0x03, 0x41, 0x01, 0x22}
	_, err := NewReader(bytes.NewReader(data)).ReadFrame()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("err = %v, want unexpected EOF", err)
	}
}
