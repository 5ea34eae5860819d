package tensor

// promotionTable maps an ordered pair of data types to their common type.
// Keys are normalized so that key[0] <= key[1]; lookups go through PromoteTypes.
var promotionTable = buildPromotionTable()

func buildPromotionTable() map[[2]DataType]DataType {
	table := make(map[[2]DataType]DataType, len(AllDataTypes)*len(AllDataTypes))
	for _, a := range AllDataTypes {
		for _, b := range AllDataTypes {
			if a > b {
				continue
			}
			table[[2]DataType{a, b}] = promotePair(a, b)
		}
	}
	return table
}

// promotePair implements the promotion rules for a <= b in lattice order.
//
// Rules:
//   - equal types promote to themselves
//   - bool promotes to the other type
//   - signed integers widen to the larger one; uint8 with int8 becomes int16
//   - float16 with bfloat16 becomes float32, other floats widen
//   - an integer with a float keeps the float unless the integer is wider
//     than the float's exact integer range (int16 needs float32,
//     int32/int64 need float64)
func promotePair(a, b DataType) DataType {
	switch {
	case a == b:
		return a
	case a == Bool:
		return b
	case a.IsInt() && b.IsInt():
		if a == Uint8 && b == Int8 {
			return Int16
		}
		return b
	case a.IsFloat() && b.IsFloat():
		if a == Float16 && b == BFloat16 {
			return Float32
		}
		return b
	default:
		// a is an integer, b is a float.
		switch a {
		case Int16:
			if b == Float64 {
				return Float64
			}
			return Float32
		case Int32, Int64:
			return Float64
		default:
			return b
		}
	}
}

// PromoteTypes returns the common data type of a and b.
// It is commutative and PromoteTypes(d, d) == d.
func PromoteTypes(a, b DataType) DataType {
	if a > b {
		a, b = b, a
	}
	return promotionTable[[2]DataType{a, b}]
}

// ResultType returns the common data type of all dtypes. Integers and
// floats are folded apart and then promoted together, so the result does
// not depend on argument order. It panics on an empty list.
func ResultType(dtypes ...DataType) DataType {
	if len(dtypes) == 0 {
		panic("result type: at least one dtype required")
	}
	var (
		ints, floats       DataType
		hasInts, hasFloats bool
	)
	for _, dt := range dtypes {
		switch {
		case dt.IsFloat() && hasFloats:
			floats = PromoteTypes(floats, dt)
		case dt.IsFloat():
			floats, hasFloats = dt, true
		case hasInts:
			ints = PromoteTypes(ints, dt)
		default:
			ints, hasInts = dt, true
		}
	}
	switch {
	case !hasFloats:
		return ints
	case !hasInts:
		return floats
	}
	return PromoteTypes(ints, floats)
}
