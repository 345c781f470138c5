package audio

import (
	"bytes"
	"testing"
)

func TestEncodeParseWAV(t *testing.T) {
	pcm := Int16ToBytes([]int16{0, 1000, -1000, 32767, -32768})
	wav := EncodeWAV(pcm, 16000, 1)

	if !IsWAV(wav) {
		t.Fatal("encoded data is not recognized as WAV")
	}
	info, got, err := ParseWAV(wav)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Fatalf("unexpected info %+v", info)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatalf("pcm mismatch: %v vs %v", got, pcm)
	}
}

func TestParseWAVErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"too short", []byte("RIFF")},
		{"not riff", bytes.Repeat([]byte{0}, 64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseWAV(tt.data); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSniff(t *testing.T) {
	wav := EncodeWAV(make([]byte, 4), 24000, 1)
	tests := []struct {
		name string
		data []byte
		ct   string
		want Format
	}{
		{"wav magic", wav, "", FormatWAV},
		{"id3 tag", []byte("ID3\x04rest"), "", FormatMP3},
		{"mp3 frame sync", []byte{0xFF, 0xFB, 0x90, 0x00}, "", FormatMP3},
		{"mime mpeg", []byte{1, 2, 3, 4}, "audio/mpeg", FormatMP3},
		{"raw", []byte{1, 2, 3, 4}, "audio/l16", FormatRaw},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sniff(tt.data, tt.ct); got != tt.want {
				t.Fatalf("Sniff = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDecodePassThroughAndResample(t *testing.T) {
	pcm := Int16ToBytes(make([]int16, 2400))

	got, err := Decode(EncodeWAV(pcm, 24000, 1), "audio/wav", 24000, 24000)
	if err != nil {
		t.Fatalf("decode wav: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatal("matching wav should pass through untouched")
	}

	got, err = Decode(pcm, "audio/l16", 24000, 48000)
	if err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	// 2400 samples at 48 kHz is 50 ms, about 1200 samples at 24 kHz.
	if n := len(got) / 2; n < 1100 || n > 1300 {
		t.Fatalf("resampled length = %d samples, want about 1200", n)
	}

	if _, err := Decode([]byte{1, 2, 3}, "", 24000, 24000); err == nil {
		t.Fatal("expected error for odd-length raw pcm")
	}
}
