package query

// Filter is the closed set of constraint kinds a query field can carry:
// Unset, Contains, OneOf, Bounds and Box.
type Filter interface {
	accept(f Field, t Translator)
}

// Translator receives one call per query field. Implementing every method
// is what makes a backend able to express every filter kind.
type Translator interface {
	Unset(f Field)
	Contains(f Field, substring string)
	OneOf(f Field, values []string)
	Bounds(f Field, b Bounds)
	Box(f Field, box BoundingBox)
}

// Unset contributes no constraint.
type Unset struct{}

// Contains matches records whose field contains Substring.
type Contains struct {
	Substring string
}

// OneOf matches records whose field equals one of Values.
type OneOf struct {
	Values []string
}

// Bounds is an inclusive range with optional ends. Min and Max hold int64,
// float64 or time.Time values; nil means the end is open.
type Bounds struct {
	Min any
	Max any
}

// Box matches records located inside BoundingBox.
type Box struct {
	BoundingBox
}

func (Unset) accept(f Field, t Translator)      { t.Unset(f) }
func (c Contains) accept(f Field, t Translator) { t.Contains(f, c.Substring) }
func (o OneOf) accept(f Field, t Translator)    { t.OneOf(f, o.Values) }
func (b Bounds) accept(f Field, t Translator)   { t.Bounds(f, b) }
func (b Box) accept(f Field, t Translator)      { t.Box(f, b.BoundingBox) }

// Translate feeds every field of q to t in Fields order.
func Translate(q Query, t Translator) {
	for _, f := range Fields {
		q.Filter(f).accept(f, t)
	}
}
