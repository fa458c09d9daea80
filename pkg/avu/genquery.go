package avu

import (
	"context"
	"sort"
	"strings"

	bolt "go.etcd.io/bbolt"
)

// Op is a condition operator. Values compare as byte strings.
type Op int

// Condition operators.
const (
	OpEq Op = iota
	OpLike
	OpGe
	OpLe
	OpLt
	OpIn
)

var opNames = [...]string{"=", "like", ">=", "<=", "<", "in"}

func (o Op) String() string {
	if o < 0 || int(o) >= len(opNames) {
		return "op(?)"
	}
	return opNames[o]
}

// Condition restricts results to objects whose attribute satisfies Op. An
// object without the attribute never satisfies a condition on it.
type Condition struct {
	Attribute string
	Op        Op
	Value     string
	// Values is the set for OpIn.
	Values []string
}

func (c Condition) match(value string) bool {
	switch c.Op {
	case OpEq:
		return value == c.Value
	case OpLike:
		return Like(c.Value, value)
	case OpGe:
		return value >= c.Value
	case OpLe:
		return value <= c.Value
	case OpLt:
		return value < c.Value
	case OpIn:
		for _, v := range c.Values {
			if v == value {
				return true
			}
		}
	}
	return false
}

// Order sorts results by an attribute. Objects missing the attribute sort
// after every other object in either direction, as do objects whose value
// equals Null when it is set.
type Order struct {
	Attribute string
	Desc      bool
	Null      string
}

// key returns the sort value of attrs and whether it is unset.
func (o Order) key(attrs map[string]string) (string, bool) {
	v, ok := attrs[o.Attribute]
	return v, !ok || (o.Null != "" && v == o.Null)
}

// less reports whether a sorts before b, or ok=false on a tie.
func (o Order) less(a, b map[string]string) (less, ok bool) {
	av, aNull := o.key(a)
	bv, bNull := o.key(b)
	switch {
	case aNull || bNull:
		return bNull && !aNull, aNull != bNull
	case av == bv:
		return false, false
	case o.Desc:
		return av > bv, true
	}
	return av < bv, true
}

// GenQuery selects objects under Collection by attribute conditions.
type GenQuery struct {
	// Collection limits results to paths below it. Empty means everywhere.
	Collection string
	Conditions []Condition
	// OrderBy sorts results; path order breaks ties.
	OrderBy []Order
	// Select names the attributes returned per row. Empty returns none.
	Select []string
	Offset int
	// Limit caps the rows returned. Zero means no limit.
	Limit int
}

// Row is one selected object.
type Row struct {
	Path  string
	Attrs map[string]string
}

// Select runs q in one read transaction.
func (c *Catalog) Select(ctx context.Context, q GenQuery) (rows []Row, err error) {
	for _, cond := range q.Conditions {
		if cond.Op < OpEq || cond.Op > OpIn {
			return nil, Error.New("unknown operator %d on %q", int(cond.Op), cond.Attribute)
		}
	}
	if q.Offset < 0 || q.Limit < 0 {
		return nil, Error.New("negative offset or limit")
	}
	err = c.view(ctx, func(tx *bolt.Tx) error {
		rows, err = selectRows(ctx, tx, q)
		return err
	})
	return rows, err
}

type candidate struct {
	path  string
	attrs map[string]string
}

func selectRows(ctx context.Context, tx *bolt.Tx, q GenQuery) ([]Row, error) {
	paths, err := candidatePaths(tx, q)
	if err != nil {
		return nil, err
	}

	prefix := ""
	if q.Collection != "" {
		prefix = strings.TrimSuffix(q.Collection, "/") + "/"
	}

	var matched []candidate
	for _, path := range paths {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, Error.Wrap(err)
		}
		avus, err := readAVUs(tx, path)
		if err != nil {
			return nil, err
		}
		attrs := make(map[string]string, len(avus))
		for _, a := range avus {
			attrs[a.Attribute] = a.Value
		}
		if matches(q.Conditions, attrs) {
			matched = append(matched, candidate{path: path, attrs: attrs})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		for _, o := range q.OrderBy {
			if less, ok := o.less(a.attrs, b.attrs); ok {
				return less
			}
		}
		return a.path < b.path
	})

	if q.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}

	rows := make([]Row, 0, len(matched))
	for _, m := range matched {
		row := Row{Path: m.path, Attrs: make(map[string]string, len(q.Select))}
		for _, attr := range q.Select {
			if v, ok := m.attrs[attr]; ok {
				row.Attrs[attr] = v
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func matches(conds []Condition, attrs map[string]string) bool {
	for _, cond := range conds {
		v, ok := attrs[cond.Attribute]
		if !ok || !cond.match(v) {
			return false
		}
	}
	return true
}

// candidatePaths narrows the scan through the value index when some
// condition allows it and falls back to every object otherwise. Candidates
// still have to pass every condition.
func candidatePaths(tx *bolt.Tx, q GenQuery) ([]string, error) {
	for _, cond := range q.Conditions {
		if scans := indexScans(cond); scans != nil {
			return scanIndex(tx, cond.Attribute, scans)
		}
	}

	var paths []string
	var start []byte
	if q.Collection != "" {
		start = prefixOf(nil, strings.TrimSuffix(q.Collection, "/")+"/")
	}
	err := walkKeys(tx.Bucket(objectsBucket).Cursor(), start, start, func(parts []string) (bool, error) {
		if len(parts) != 1 {
			return false, Error.New("malformed object key")
		}
		paths = append(paths, parts[0])
		return true, nil
	})
	return paths, err
}

// walkKeys decodes the keys from seek onwards while they carry prefix and fn
// asks for more.
func walkKeys(cur *bolt.Cursor, seek, prefix []byte, fn func(parts []string) (bool, error)) error {
	k, _ := cur.Seek(seek)
	for ; k != nil && hasPrefix(k, prefix); k, _ = cur.Next() {
		parts, err := decodeKey(k)
		if err != nil {
			return err
		}
		more, err := fn(parts)
		if err != nil || !more {
			return err
		}
	}
	return nil
}

// valueScan walks index values from start while keep holds.
type valueScan struct {
	start string
	keep  func(value string) bool
}

func indexScans(cond Condition) []valueScan {
	switch cond.Op {
	case OpEq:
		return []valueScan{{start: cond.Value, keep: func(v string) bool { return v == cond.Value }}}
	case OpIn:
		scans := make([]valueScan, 0, len(cond.Values))
		for _, want := range cond.Values {
			scans = append(scans, valueScan{start: want, keep: func(v string) bool { return v == want }})
		}
		return scans
	case OpGe:
		return []valueScan{{start: cond.Value, keep: func(string) bool { return true }}}
	case OpLe:
		return []valueScan{{keep: func(v string) bool { return v <= cond.Value }}}
	case OpLt:
		return []valueScan{{keep: func(v string) bool { return v < cond.Value }}}
	case OpLike:
		lit := likePrefix(cond.Value)
		if lit == "" {
			return nil
		}
		return []valueScan{{start: lit, keep: func(v string) bool { return strings.HasPrefix(v, lit) }}}
	}
	return nil
}

func scanIndex(tx *bolt.Tx, attr string, scans []valueScan) ([]string, error) {
	attrPrefix := encodeKey(attr)
	seen := map[string]bool{}
	var paths []string
	cur := tx.Bucket(indexBucket).Cursor()
	for _, scan := range scans {
		err := walkKeys(cur, prefixOf([]string{attr}, scan.start), attrPrefix, func(parts []string) (bool, error) {
			if len(parts) != 3 {
				return false, Error.New("malformed index key for %q", attr)
			}
			if !scan.keep(parts[1]) {
				return false, nil
			}
			if path := parts[2]; !seen[path] {
				seen[path] = true
				paths = append(paths, path)
			}
			return true, nil
		})
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}
