package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Drain reads from ch until the channel is closed, discarding all values.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}

// RMS returns the root-mean-square amplitude of little-endian 16-bit PCM.
// A trailing odd byte is ignored.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// Duration returns the playback length of mono 16-bit PCM at sampleRate.
func Duration(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := len(pcm) / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// Samples converts int16 samples to little-endian PCM bytes.
func Samples(s []int16) []byte {
	buf := make([]byte, len(s)*2)
	for i, v := range s {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// Tone returns n samples of a constant-amplitude square wave, useful as a
// loud, deterministic stand-in for speech.
func Tone(n int, amplitude int16) []byte {
	s := make([]int16, n)
	for i := range s {
		if (i/8)%2 == 0 {
			s[i] = amplitude
		} else {
			s[i] = -amplitude
		}
	}
	return Samples(s)
}
