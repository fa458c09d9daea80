package sqlstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nainya/assetcatalog/pkg/metadata"
	"github.com/nainya/assetcatalog/pkg/query"
	"github.com/nainya/assetcatalog/pkg/store"
)

// column maps a scalar query field to its qualified column.
func column(f query.Field) string {
	switch f {
	case query.FieldPlatformType:
		return "a.platform_type"
	case query.FieldName:
		return "a.name"
	case query.FieldNotes:
		return "a.notes"
	case query.FieldSession:
		return "a.session_name"
	case query.FieldSequenceNumber:
		return "a.sequence_number"
	case query.FieldCaptureDate:
		return "a.capture_date"
	case query.FieldLocationDescription:
		return "a.location_description"
	case query.FieldCamera:
		return "r.camera"
	case query.FieldAltitudeMeters:
		return "r.altitude_meters"
	case query.FieldGSDCmPx:
		return "r.gsd_cm_px"
	}
	panic(fmt.Sprintf("sqlstore: no column for query field %v", f))
}

// where collects the AND-ed predicates of one query.
type where struct {
	like  string
	conds []string
	args  []any
}

var _ query.Translator = (*where)(nil)

func (w *where) Unset(query.Field) {}

func (w *where) Contains(f query.Field, substring string) {
	w.conds = append(w.conds, column(f)+" "+w.like+` ? ESCAPE '\'`)
	w.args = append(w.args, "%"+escapeLike(substring)+"%")
}

func (w *where) OneOf(f query.Field, values []string) {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	w.conds = append(w.conds, column(f)+" IN ("+marks+")")
	for _, v := range values {
		w.args = append(w.args, v)
	}
}

func (w *where) Bounds(f query.Field, b query.Bounds) {
	w.bounds(column(f), b)
}

func (w *where) Box(_ query.Field, box query.BoundingBox) {
	w.bounds("a.location_lat", box.Latitude())
	w.bounds("a.location_lon", box.Longitude())
}

func (w *where) bounds(col string, b query.Bounds) {
	if b.Min != nil {
		w.conds = append(w.conds, col+" >= ?")
		w.args = append(w.args, b.Min)
	}
	if b.Max != nil {
		w.conds = append(w.conds, col+" <= ?")
		w.args = append(w.args, b.Max)
	}
}

const objectTypeExpr = `CASE
		WHEN EXISTS (SELECT 1 FROM images i WHERE i.bucket = a.bucket AND i."key" = a."key") THEN 'image'
		WHEN EXISTS (SELECT 1 FROM videos v WHERE v.bucket = a.bucket AND v."key" = a."key") THEN 'video'
		WHEN EXISTS (SELECT 1 FROM rasters rr WHERE rr.bucket = a.bucket AND rr."key" = a."key") THEN 'raster'
		ELSE 'artifact' END`

// plan is one statement answering a whole Query call, with '?' placeholders.
// The window is appended as the last two arguments.
type plan struct {
	sql  string
	args []any
}

// buildPlan ORs queries through UNION of one sub-select each, orders the
// combined rows and leaves LIMIT/OFFSET as trailing placeholders.
func buildPlan(d Dialect, queries []query.Query, orderings []query.Ordering) plan {
	orderByCamera := false
	for _, o := range orderings {
		if o.Field.Field().RasterLevel() {
			orderByCamera = true
		}
	}

	var sortCols strings.Builder
	for i, o := range orderings {
		fmt.Fprintf(&sortCols, ", %s AS s%d", column(o.Field.Field()), i)
	}

	var p plan
	subs := make([]string, 0, len(queries))
	for _, q := range queries {
		w := &where{like: d.Like}
		query.Translate(q, w)

		var sub strings.Builder
		sub.WriteString(`SELECT a.bucket AS bucket, a."key" AS "key", ` + objectTypeExpr + ` AS object_type`)
		sub.WriteString(sortCols.String())
		sub.WriteString(` FROM artifacts a`)
		if orderByCamera || q.ReferencesRaster() {
			sub.WriteString(` LEFT JOIN rasters r ON r.bucket = a.bucket AND r."key" = a."key"`)
		}
		if len(w.conds) > 0 {
			sub.WriteString(` WHERE ` + strings.Join(w.conds, " AND "))
		}
		subs = append(subs, sub.String())
		p.args = append(p.args, w.args...)
	}

	var b strings.Builder
	b.WriteString(`SELECT bucket, "key", object_type FROM (`)
	b.WriteString(strings.Join(subs, " UNION "))
	b.WriteString(`) u ORDER BY `)
	for i, o := range orderings {
		col := "s" + strconv.Itoa(i)
		dir := ""
		if !o.Ascending {
			dir = " DESC"
		}
		fmt.Fprintf(&b, "(%s IS NULL), %s%s, ", col, col, dir)
	}
	b.WriteString(`bucket, "key" LIMIT ? OFFSET ?`)
	p.sql = d.Rebind(b.String())
	return p
}

// Query runs all queries as one statement, fetching the window a page at a
// time as the iterator is consumed.
func (s *Store) Query(ctx context.Context, queries []query.Query, opts store.Options) (store.Iterator, error) {
	queries, opts, err := store.PrepareQueries(queries, opts)
	if err != nil {
		return nil, err
	}
	p := buildPlan(s.dialect, queries, opts.Orderings)

	fetch := func(ctx context.Context, offset, limit int) (refs []metadata.TypedObjectRef, err error) {
		err = s.withSession(ctx, func() error {
			refs, err = s.fetch(ctx, p, offset, limit)
			return err
		})
		return refs, err
	}
	return store.NewPagedIterator(ctx, fetch, opts.SkipFirst, opts.MaxResults, s.pageSize), nil
}

func (s *Store) fetch(ctx context.Context, p plan, offset, limit int) (_ []metadata.TypedObjectRef, err error) {
	args := append(append([]any(nil), p.args...), limit, offset)
	rows, err := s.db.QueryContext(ctx, p.sql, args...)
	if err != nil {
		return nil, store.ErrOperation.Wrap(err)
	}
	defer func() {
		if cerr := rows.Close(); err == nil {
			err = store.ErrOperation.Wrap(cerr)
		}
	}()

	refs := make([]metadata.TypedObjectRef, 0, limit)
	for rows.Next() {
		var ref metadata.TypedObjectRef
		var kind string
		if err := rows.Scan(&ref.Bucket, &ref.Name, &kind); err != nil {
			return nil, store.ErrOperation.Wrap(err)
		}
		if ref.Type, err = metadata.ParseObjectType(kind); err != nil {
			return nil, store.ErrOperation.Wrap(err)
		}
		refs = append(refs, ref)
	}
	return refs, store.ErrOperation.Wrap(rows.Err())
}
