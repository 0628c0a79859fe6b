package acq

// SinePeak returns the sample index of the first turning point of channel c.
//
// Forward search starts at sample 0 with the direction of x[1]-x[0] and
// returns the first index where the direction changes. Reverse search starts
// at S-1 with the direction of x[S-1]-x[S-2] and walks backwards. When no
// turning point exists the starting boundary (0 or S-1) is returned.
func (f Frame[T]) SinePeak(c int, reverse bool) int {
	if !f.valid(c) || f.samples < 2 {
		return 0
	}
	x := func(s int) T { return f.data[s*f.channels+c] }

	if !reverse {
		rising := x(1) > x(0)
		for s := 1; s < f.samples-1; s++ {
			if (x(s+1) > x(s)) != rising {
				return s
			}
		}
		return 0
	}

	last := f.samples - 1
	rising := x(last) > x(last-1)
	for s := last - 1; s > 0; s-- {
		if (x(s) > x(s-1)) != rising {
			return s
		}
	}
	return last
}

// SineWave returns the first and last turning points of channel c, framing
// a whole number of half periods of a periodic waveform.
func (f Frame[T]) SineWave(c int) Window {
	return Window{
		Begin: f.SinePeak(c, false),
		End:   f.SinePeak(c, true),
	}
}
