package dsp

// MaxElement returns the largest element of arr.
func MaxElement[F Float](arr []F) (F, error) {
	if len(arr) == 0 {
		return 0, ErrEmpty
	}
	best := arr[0]
	for _, v := range arr[1:] {
		if v > best {
			best = v
		}
	}
	return best, nil
}

// MinElement returns the smallest element of arr.
func MinElement[F Float](arr []F) (F, error) {
	if len(arr) == 0 {
		return 0, ErrEmpty
	}
	best := arr[0]
	for _, v := range arr[1:] {
		if v < best {
			best = v
		}
	}
	return best, nil
}

// SumElement returns the sum of arr.
func SumElement[F Float](arr []F) (F, error) {
	if len(arr) == 0 {
		return 0, ErrEmpty
	}
	var sum F
	for _, v := range arr {
		sum += v
	}
	return sum, nil
}

// MeanElement returns the mean of arr.
func MeanElement[F Float](arr []F) (F, error) {
	sum, err := SumElement(arr)
	if err != nil {
		return 0, err
	}
	return sum / F(len(arr)), nil
}
