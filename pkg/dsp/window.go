package dsp

import "math"

// HanningInit fills dst with the periodic Hanning window of len(dst) points.
func HanningInit(dst []float32) {
	l := float32(len(dst))
	for i := range dst {
		dst[i] = hann(i, l)
	}
}

func hann(i int, l float32) float32 {
	return float32(0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(l))))
}

// Hanning multiplies channel c of the interleaved data by coef, one
// coefficient per sample. Samples beyond len(coef) are left untouched. An
// invalid channel is a no-op.
func Hanning[T Number](coef []float32, data []T, channels, c int) {
	if channels <= 0 || c < 0 || c >= channels {
		return
	}
	samples := min(len(data)/channels, len(coef))
	for s := 0; s < samples; s++ {
		i := s*channels + c
		data[i] = T(float32(data[i]) * coef[s])
	}
}

// HanningDirect is Hanning with the coefficients computed on the fly for the
// full channel length.
func HanningDirect[T Number](data []T, channels, c int) {
	if channels <= 0 || c < 0 || c >= channels {
		return
	}
	samples := len(data) / channels
	l := float32(samples)
	for s := 0; s < samples; s++ {
		i := s*channels + c
		data[i] = T(float32(data[i]) * hann(s, l))
	}
}
