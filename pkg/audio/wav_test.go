package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestBuildWAV_Header(t *testing.T) {
	pcm := make([]byte, 1600)
	wav := BuildWAV(pcm, 8000)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("expected %d bytes, got %d", 44+len(pcm), len(wav))
	}
	if !bytes.Equal(wav[0:4], []byte("RIFF")) {
		t.Errorf("expected RIFF magic, got %q", wav[0:4])
	}
	if !bytes.Equal(wav[8:12], []byte("WAVE")) {
		t.Errorf("expected WAVE magic, got %q", wav[8:12])
	}
	if !bytes.Equal(wav[36:40], []byte("data")) {
		t.Errorf("expected data chunk id, got %q", wav[36:40])
	}

	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 8000 {
		t.Errorf("sample rate = %d, want 8000", rate)
	}
	if ch := binary.LittleEndian.Uint16(wav[22:24]); ch != 1 {
		t.Errorf("channels = %d, want 1", ch)
	}
	if bits := binary.LittleEndian.Uint16(wav[34:36]); bits != 16 {
		t.Errorf("bits per sample = %d, want 16", bits)
	}
}

func TestBuildWAV_DataSizeMatchesPayload(t *testing.T) {
	for _, n := range []int{0, 1, 2, 159, 320, 16000} {
		pcm := make([]byte, n)
		wav := BuildWAV(pcm, 16000)

		dataSize := binary.LittleEndian.Uint32(wav[40:44])
		if int(dataSize) != n {
			t.Errorf("payload %d: declared data size %d", n, dataSize)
		}
		riffSize := binary.LittleEndian.Uint32(wav[4:8])
		if int(riffSize) != 36+n {
			t.Errorf("payload %d: declared RIFF size %d, want %d", n, riffSize, 36+n)
		}
	}
}

func TestBuildWAV_PreservesPayload(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	wav := BuildWAV(pcm, 8000)
	if !bytes.Equal(wav[44:], pcm) {
		t.Error("payload bytes altered by header framing")
	}
}
