package audio

import (
	"encoding/binary"
	"math"
)

// BytesToInt16 decodes little-endian 16-bit PCM into samples.
// A trailing odd byte is ignored.
func BytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

// Int16ToBytes encodes samples as little-endian 16-bit PCM.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// ToFloat32 decodes little-endian 16-bit PCM into samples normalised to
// [-1, 1).
func ToFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(b[i*2:]))) / 32768
	}
	return out
}

// StereoToMono averages each interleaved L/R pair into a single sample.
func StereoToMono(stereo []byte) []byte {
	in := BytesToInt16(stereo)
	out := make([]int16, len(in)/2)
	for i := range out {
		out[i] = int16((int32(in[i*2]) + int32(in[i*2+1])) / 2)
	}
	return Int16ToBytes(out)
}

// Resample converts mono PCM from one sample rate to another using linear
// interpolation. It returns the input unchanged when the rates match.
func Resample(mono []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 || len(mono) < 2 {
		return mono
	}
	in := BytesToInt16(mono)
	n := int(math.Round(float64(len(in)) * float64(to) / float64(from)))
	if n == 0 {
		return nil
	}
	out := make([]int16, n)
	ratio := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = int16(math.Round(float64(in[idx])*(1-frac) + float64(in[idx+1])*frac))
	}
	return Int16ToBytes(out)
}

// Normalize converts f to mono at the target sample rate. Frames that
// already match are returned as-is.
func Normalize(f Frame, sampleRate int) Frame {
	if f.Channels == 1 && f.SampleRate == sampleRate {
		return f
	}
	data := f.Data
	if f.Channels == 2 {
		data = StereoToMono(data)
	}
	data = Resample(data, f.SampleRate, sampleRate)
	return Frame{Data: data, SampleRate: sampleRate, Channels: 1, Timestamp: f.Timestamp}
}
