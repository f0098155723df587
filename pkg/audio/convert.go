package audio

import "encoding/binary"

// Normalize converts 16-bit PCM in any channel layout and rate to mono at
// dstRate. Recognisers that expect 16 kHz mono call this before upload so a
// capture device configured differently still works.
func Normalize(pcm []byte, sampleRate, channels, dstRate int) []byte {
	if channels == 2 {
		pcm = StereoToMono(pcm)
	}
	return ResampleMono16(pcm, sampleRate, dstRate)
}

// StereoToMono averages L+R per interleaved stereo frame.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(binary.LittleEndian.Uint16(pcm[i*4:])))
		r := int32(int16(binary.LittleEndian.Uint16(pcm[i*4+2:])))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16((l+r)/2)))
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. The input is returned unchanged when the rates match
// or either rate is invalid.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	n := len(pcm) / 2
	dst := int(int64(n) * int64(dstRate) / int64(srcRate))
	if dst == 0 {
		return nil
	}

	sample := func(i int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	out := make([]byte, dst*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dst {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		s0 := sample(idx)
		s1 := s0
		if idx+1 < n {
			s1 = sample(idx + 1)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s0*(1-frac)+s1*frac)))
	}
	return out
}
