package avustore

import (
	"github.com/nainya/assetcatalog/pkg/avu"
	"github.com/nainya/assetcatalog/pkg/metadata"
	"github.com/nainya/assetcatalog/pkg/query"
)

// conditions collects the AND-ed catalog conditions of one query.
type conditions struct {
	conds []avu.Condition
	err   error
}

var _ query.Translator = (*conditions)(nil)

func (c *conditions) Unset(query.Field) {}

func (c *conditions) Contains(f query.Field, substring string) {
	c.conds = append(c.conds, avu.Condition{
		Attribute: attribute(f),
		Op:        avu.OpLike,
		Value:     codeString + "%" + avu.EscapeLike(substring) + "%",
	})
}

func (c *conditions) OneOf(f query.Field, values []string) {
	enc := make([]string, len(values))
	for i, v := range values {
		enc[i] = codeString + v
	}
	c.conds = append(c.conds, avu.Condition{Attribute: attribute(f), Op: avu.OpIn, Values: enc})
}

func (c *conditions) Bounds(f query.Field, b query.Bounds) {
	c.bounds(attribute(f), b)
}

func (c *conditions) Box(_ query.Field, box query.BoundingBox) {
	c.bounds(AttrLatitude, box.Latitude())
	c.bounds(AttrLongitude, box.Longitude())
}

// bounds always emits both ends. An open end is replaced by the edge of the
// bound's type code so that nulls and other types stay excluded.
func (c *conditions) bounds(attr string, b query.Bounds) {
	bound := b.Min
	if bound == nil {
		bound = b.Max
	}
	probe, err := Encode(bound)
	if err != nil {
		c.fail(err)
		return
	}
	code := probe[:codeLen]

	lo, hi := lowest(code), highest(code)
	if b.Min != nil {
		if lo, err = Encode(b.Min); err != nil {
			c.fail(err)
			return
		}
	}
	if b.Max != nil {
		if hi, err = Encode(b.Max); err != nil {
			c.fail(err)
			return
		}
	}
	c.conds = append(c.conds,
		avu.Condition{Attribute: attr, Op: avu.OpGe, Value: lo},
		avu.Condition{Attribute: attr, Op: avu.OpLe, Value: hi},
	)
}

func (c *conditions) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// objectTypes matches every record written by this backend.
func objectTypes() avu.Condition {
	values := make([]string, len(metadata.ObjectTypes))
	for i, t := range metadata.ObjectTypes {
		values[i] = codeString + string(t)
	}
	return avu.Condition{Attribute: AttrObjectType, Op: avu.OpIn, Values: values}
}

// genQuery translates one query and the orderings into a catalog query
// below collection. The window is left to the caller.
func genQuery(collection string, q query.Query, orderings []query.Ordering) (avu.GenQuery, error) {
	c := &conditions{conds: []avu.Condition{objectTypes()}}
	query.Translate(q, c)
	if c.err != nil {
		return avu.GenQuery{}, c.err
	}

	order := make([]avu.Order, 0, len(orderings))
	for _, o := range orderings {
		order = append(order, avu.Order{Attribute: attribute(o.Field.Field()), Desc: !o.Ascending, Null: codeNull})
	}
	return avu.GenQuery{
		Collection: collection,
		Conditions: c.conds,
		OrderBy:    order,
		Select:     []string{AttrObjectType},
	}, nil
}
