package synthesis

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/starford/galdr/internal/apperr"
)

// Tone is a deterministic local Synthesizer for development. It renders the
// note text as a short PCM tone sequence in a WAV container, pitched from the
// text content so different notes sound different. Not a speech encoder.
type Tone struct {
	sampleRate int
}

// NewTone creates the local tone synthesizer.
func NewTone() *Tone {
	return &Tone{sampleRate: 8000}
}

// Synthesize produces WAV bytes derived from text. voice is ignored.
func (t *Tone) Synthesize(ctx context.Context, text, _ string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Transient("synthesis cancelled", err)
	}

	// One 100 ms tone per 8 runes, capped at 2 s of audio.
	runes := []rune(text)
	segments := len(runes)/8 + 1
	if segments > 20 {
		segments = 20
	}
	samplesPerSeg := t.sampleRate / 10

	pcm := make([]int16, 0, segments*samplesPerSeg)
	for seg := 0; seg < segments; seg++ {
		freq := 220.0 + float64(pitch(runes, seg))*20.0
		for i := 0; i < samplesPerSeg; i++ {
			v := math.Sin(2 * math.Pi * freq * float64(i) / float64(t.sampleRate))
			pcm = append(pcm, int16(v*8191))
		}
	}
	return t.wav(pcm), nil
}

// pitch buckets the runes of a segment into 0..15.
func pitch(runes []rune, seg int) int {
	sum := seg
	for i := seg * 8; i < len(runes) && i < (seg+1)*8; i++ {
		sum += int(runes[i])
	}
	return sum % 16
}

// wav wraps 16-bit mono PCM samples in a minimal RIFF/WAVE container.
func (t *Tone) wav(pcm []int16) []byte {
	dataLen := len(pcm) * 2
	buf := make([]byte, 0, 44+dataLen)

	u32 := func(v uint32) []byte {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		return b[:]
	}
	u16 := func(v uint16) []byte {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], v)
		return b[:]
	}

	buf = append(buf, []byte("RIFF")...)
	buf = append(buf, u32(uint32(36+dataLen))...)
	buf = append(buf, []byte("WAVEfmt ")...)
	buf = append(buf, u32(16)...)                        // fmt chunk size
	buf = append(buf, u16(1)...)                         // PCM
	buf = append(buf, u16(1)...)                         // mono
	buf = append(buf, u32(uint32(t.sampleRate))...)      // sample rate
	buf = append(buf, u32(uint32(t.sampleRate*2))...)    // byte rate
	buf = append(buf, u16(2)...)                         // block align
	buf = append(buf, u16(16)...)                        // bits per sample
	buf = append(buf, []byte("data")...)
	buf = append(buf, u32(uint32(dataLen))...)
	for _, s := range pcm {
		buf = append(buf, u16(uint16(s))...)
	}
	return buf
}
