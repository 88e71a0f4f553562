package vm

// Bit returns bit n of v as 0 or 1.
func Bit(v uint64, n int) uint64 {
	return (v >> uint(n)) & 1
}

// IsBitSet reports whether bit n of v is 1.
func IsBitSet(v uint64, n int) bool {
	return Bit(v, n) == 1
}

// Bits returns the field v<hi:lo>, shifted down to bit 0.
func Bits(v uint64, hi, lo int) uint64 {
	if hi < lo {
		return 0
	}

	return (v >> uint(lo)) & mask(hi-lo+1)
}

// SetBit returns v with bit n set to b.
func SetBit(v uint64, n int, b bool) uint64 {
	if b {
		return v | (1 << uint(n))
	}

	return v &^ (1 << uint(n))
}

// IsZeroBits reports whether v<hi:lo> is all zeros. An empty range is zero.
func IsZeroBits(v uint64, hi, lo int) bool {
	return Bits(v, hi, lo) == 0
}

// IsOnesBits reports whether v<hi:lo> is all ones. An empty range is ones.
func IsOnesBits(v uint64, hi, lo int) bool {
	if hi < lo {
		return true
	}

	return Bits(v, hi, lo) == mask(hi-lo+1)
}

// AlignDown clears the low n bits of v.
func AlignDown(v uint64, n int) uint64 {
	return v &^ mask(n)
}

// LowBits returns v<n-1:0>.
func LowBits(v uint64, n int) uint64 {
	return v & mask(n)
}

func mask(width int) uint64 {
	if width <= 0 {
		return 0
	}

	if width >= 64 {
		return ^uint64(0)
	}

	return (uint64(1) << uint(width)) - 1
}

func boolToBit(b bool) uint64 {
	if b {
		return 1
	}

	return 0
}
