package protocol

import "testing"

func TestSamplesRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 1000, -1000, 32767, -32768}
	frame := AudioFrame{PCM: EncodeSamples(in)}

	out := frame.Samples()
	if len(out) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("sample %d: expected %d, got %d", i, in[i], out[i])
		}
	}
}

func TestSamplesOddByteCountIgnoresTrailingByte(t *testing.T) {
	frame := AudioFrame{PCM: []byte{0x01, 0x02, 0x03}}
	out := frame.Samples()
	if len(out) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(out))
	}
	if out[0] != 0x0201 {
		t.Fatalf("expected little-endian decode, got %d", out[0])
	}
}

func TestEncodeSamplesEmpty(t *testing.T) {
	if pcm := EncodeSamples(nil); len(pcm) != 0 {
		t.Fatalf("expected empty payload, got %d bytes", len(pcm))
	}
}
