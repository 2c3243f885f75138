package value

// Arithmetic and comparison on Values, per spec.md §4.1:
//   - int/int stays int (wrapping add/sub/mul; truncating div -> double;
//     int mod)
//   - double/double stays double
//   - '+' on strings concatenates
//   - equality is defined across types; other mixed-type comparisons
//     evaluate to Error
//
// Every operation returns either a Value or ErrorSentinel(); callers
// (the VM) are responsible for turning Error into a RuntimeError.

func Add(owner Owner, a, b Value) Value {
	if a.Tag == TagInt && b.Tag == TagInt {
		return Int(a.Int + b.Int) // wraps per spec
	}
	if n, ok := bothNumeric(a, b); ok {
		return Double(n[0] + n[1])
	}
	if a.Tag == TagStr && b.Tag == TagStr {
		return FromStr(NewString(owner, a.AsStr().Data+b.AsStr().Data))
	}
	return ErrorSentinel()
}

func Sub(a, b Value) Value {
	if a.Tag == TagInt && b.Tag == TagInt {
		return Int(a.Int - b.Int)
	}
	if n, ok := bothNumeric(a, b); ok {
		return Double(n[0] - n[1])
	}
	return ErrorSentinel()
}

func Mul(a, b Value) Value {
	if a.Tag == TagInt && b.Tag == TagInt {
		return Int(a.Int * b.Int)
	}
	if n, ok := bothNumeric(a, b); ok {
		return Double(n[0] * n[1])
	}
	return ErrorSentinel()
}

// Div always produces a Double for numeric operands, even int/int
// (spec.md §4.1: "truncating div ↦ double").
func Div(a, b Value) Value {
	n, ok := bothNumeric(a, b)
	if !ok {
		return ErrorSentinel()
	}
	if n[1] == 0 {
		return ErrorSentinel()
	}
	return Double(n[0] / n[1])
}

// Mod specializes on Int only; (Int, Double) or any non-int operand is
// an Error (spec.md §8 boundary behavior).
func Mod(a, b Value) Value {
	if a.Tag != TagInt || b.Tag != TagInt {
		return ErrorSentinel()
	}
	if b.Int == 0 {
		return ErrorSentinel()
	}
	return Int(a.Int % b.Int)
}

func Eq(a, b Value) Value  { return Bool_(valuesEqual(a, b)) }
func Neq(a, b Value) Value { return Bool_(!valuesEqual(a, b)) }

func Lt(a, b Value) Value  { return orderedCompare(a, b, func(x, y float64) bool { return x < y }) }
func Gt(a, b Value) Value  { return orderedCompare(a, b, func(x, y float64) bool { return x > y }) }
func Leq(a, b Value) Value { return orderedCompare(a, b, func(x, y float64) bool { return x <= y }) }
func Geq(a, b Value) Value { return orderedCompare(a, b, func(x, y float64) bool { return x >= y }) }

func orderedCompare(a, b Value, cmp func(x, y float64) bool) Value {
	if n, ok := bothNumeric(a, b); ok {
		return Bool_(cmp(n[0], n[1]))
	}
	if a.Tag == TagStr && b.Tag == TagStr {
		// lexicographic on the underlying bytes; reuse numeric cmp shape
		// by mapping strings.Compare's sign onto the float comparator.
		c := compareStrings(a.AsStr().Data, b.AsStr().Data)
		return Bool_(cmp(float64(c), 0))
	}
	return ErrorSentinel()
}

func compareStrings(a, b string) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func valuesEqual(a, b Value) bool {
	if n, ok := bothNumeric(a, b); ok {
		return n[0] == n[1]
	}
	if a.Tag != b.Tag {
		return false
	}
	switch a.Tag {
	case TagNone:
		return true
	case TagBool:
		return a.Bool == b.Bool
	case TagStr:
		as, bs := a.AsStr(), b.AsStr()
		if as == nil || bs == nil {
			return as == bs
		}
		return as.Data == bs.Data
	case TagStruct:
		return a.Ref == b.Ref
	case TagFn:
		return a.Ref == b.Ref
	default:
		return false
	}
}

// bothNumeric returns [a,b] widened to float64 when both operands are
// Int or Double (in any combination); ok is false otherwise.
func bothNumeric(a, b Value) ([2]float64, bool) {
	var out [2]float64
	av, aok := numericOf(a)
	bv, bok := numericOf(b)
	if !aok || !bok {
		return out, false
	}
	out[0], out[1] = av, bv
	return out, true
}

func numericOf(v Value) (float64, bool) {
	switch v.Tag {
	case TagInt:
		return float64(v.Int), true
	case TagDouble:
		return v.Double, true
	default:
		return 0, false
	}
}

// Not implements unary '!': truthiness-negation to a Bool.
func Not(v Value) Value {
	return Bool_(!IsTruthy(v))
}
