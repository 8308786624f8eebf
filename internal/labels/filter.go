package labels

// Filter is the label requirement of a query. A slot passes when it carries
// any of the filter's labels or the universal label. The zero Filter is
// inactive and passes every slot.
type Filter struct {
	any Set
}

// Require returns a filter for a single required label.
func Require(l Label) Filter {
	return Filter{any: Set{l}}
}

// AnyOf returns a filter passing slots that carry at least one of ls.
// With no labels the filter is inactive.
func AnyOf(ls ...Label) Filter {
	return Filter{any: NewSet(ls...)}
}

// Active reports whether the filter restricts results at all.
func (f Filter) Active() bool {
	return len(f.any) > 0
}

// Labels returns the accepted labels in ascending order.
func (f Filter) Labels() Set {
	return f.any
}
