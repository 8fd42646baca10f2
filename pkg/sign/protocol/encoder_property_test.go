// YHS Sign
// Copyright (c) 2025 The YHS Sign Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of YHS Sign.
//
// YHS Sign is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// YHS Sign is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with YHS Sign.  If not, see <http://www.gnu.org/licenses/>.

package protocol

import (
	"bytes"
	"testing"

	"pgregory.net/rapid"
)

var printable = rapid.StringMatching(`[ -~]{0,250}`)

func labelGen() *rapid.Generator[byte] {
	return rapid.Custom(func(t *rapid.T) byte {
		b := rapid.ByteRange(0x20, 0x7E).Draw(t, "label")
		if b == '?' {
			return 'A'
		}
		return b
	})
}

// TestPropertyEncodeDeterministic verifies the same command always yields
// the same frames.
func TestPropertyEncodeDeterministic(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(1, 128).Draw(t, "frameSize")
		enc, err := NewEncoder(Options{FrameSize: size, Transliterate: true})
		if err != nil {
			t.Fatal(err)
		}
		cmd := NewWriteText(labelGen().Draw(t, "label"), printable.Draw(t, "text"))

		a, errA := enc.Encode(cmd)
		b, errB := enc.Encode(cmd)
		if errA != nil || errB != nil {
			t.Fatalf("unexpected errors: %v, %v", errA, errB)
		}
		if len(a) != len(b) {
			t.Fatalf("frame counts differ: %d vs %d", len(a), len(b))
		}
		for i := range a {
			if !bytes.Equal(a[i], b[i]) {
				t.Fatalf("frame %d differs: %s vs %s", i, a[i], b[i])
			}
		}
	})
}

// TestPropertySplitRoundTrip verifies decoding the joined frames gives
// back the label and text, and no frame exceeds the frame size.
func TestPropertySplitRoundTrip(t *testing.T) {
	t.Parallel()
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(1, 128).Draw(t, "frameSize")
		enc, err := NewEncoder(Options{FrameSize: size})
		if err != nil {
			t.Fatal(err)
		}
		label := labelGen().Draw(t, "label")
		text := printable.Draw(t, "text")

		frames, err := enc.Encode(NewWriteText(label, text))
		if err != nil {
			t.Fatalf("encode failed: %v", err)
		}
		for i, f := range frames {
			if len(f) == 0 || len(f) > size {
				t.Fatalf("frame %d has size %d, limit %d", i, len(f), size)
			}
		}

		pkt, err := Decode(frames)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if len(pkt.Commands) != 1 {
			t.Fatalf("expected 1 command, got %d", len(pkt.Commands))
		}
		w, ok := pkt.Commands[0].WriteText()
		if !ok {
			t.Fatal("command is not a text write")
		}
		if w.Label != label || w.Text != text {
			t.Fatalf("round trip mismatch: got %c %q, want %c %q", w.Label, w.Text, label, text)
		}
	})
}

// TestPropertyPrepareTextAlwaysASCII verifies accepted text is always
// printable ASCII, whatever went in.
func TestPropertyPrepareTextAlwaysASCII(t *testing.T) {
	t.Parallel()
	enc, err := NewEncoder(Options{Transliterate: true, MaxTextLength: 1000})
	if err != nil {
		t.Fatal(err)
	}
	rapid.Check(t, func(t *rapid.T) {
		in := rapid.String().Draw(t, "text")
		out, err := enc.PrepareText(in)
		if err != nil {
			return
		}
		for i := 0; i < len(out); i++ {
			if out[i] < 0x20 || out[i] > 0x7E {
				t.Fatalf("byte %#x at %d escaped validation for input %q", out[i], i, in)
			}
		}
	})
}
