package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zeebo/errs"
	"gopkg.in/yaml.v3"

	"github.com/nainya/assetcatalog/pkg/metadata"
	"github.com/nainya/assetcatalog/pkg/query"
	"github.com/nainya/assetcatalog/pkg/store"
)

// querySpec is one query as written on the command line or in a queries
// file. Nil ends are open.
type querySpec struct {
	Platforms      []string   `yaml:"platforms"`
	Name           string     `yaml:"name"`
	Notes          string     `yaml:"notes"`
	Camera         string     `yaml:"camera"`
	Session        string     `yaml:"session"`
	Location       string     `yaml:"location"`
	SequenceMin    *int64     `yaml:"sequence_min"`
	SequenceMax    *int64     `yaml:"sequence_max"`
	CapturedAfter  *time.Time `yaml:"captured_after"`
	CapturedBefore *time.Time `yaml:"captured_before"`
	AltitudeMin    *float64   `yaml:"altitude_min"`
	AltitudeMax    *float64   `yaml:"altitude_max"`
	GSDMin         *float64   `yaml:"gsd_min"`
	GSDMax         *float64   `yaml:"gsd_max"`
	// BoundingBox is south-west latitude, south-west longitude, north-east
	// latitude, north-east longitude.
	BoundingBox []float64 `yaml:"bbox"`
}

func (spec querySpec) build() (query.Query, error) {
	b := query.NewBuilder().
		Name(spec.Name).
		Notes(spec.Notes).
		Camera(spec.Camera).
		Session(spec.Session).
		LocationDescription(spec.Location)
	for _, p := range spec.Platforms {
		b.PlatformTypes(metadata.PlatformType(p))
	}
	if spec.SequenceMin != nil || spec.SequenceMax != nil {
		b.SequenceNumbers(spec.SequenceMin, spec.SequenceMax)
	}
	if spec.CapturedAfter != nil || spec.CapturedBefore != nil {
		b.CaptureDates(spec.CapturedAfter, spec.CapturedBefore)
	}
	if spec.AltitudeMin != nil || spec.AltitudeMax != nil {
		b.AltitudeMeters(spec.AltitudeMin, spec.AltitudeMax)
	}
	if spec.GSDMin != nil || spec.GSDMax != nil {
		b.GSDCmPx(spec.GSDMin, spec.GSDMax)
	}
	if len(spec.BoundingBox) > 0 {
		if len(spec.BoundingBox) != 4 {
			return query.Query{}, metadata.ErrValidation.New("bounding box needs 4 coordinates, got %d", len(spec.BoundingBox))
		}
		bb := spec.BoundingBox
		b.Within(
			metadata.GeoPoint{LatitudeDeg: bb[0], LongitudeDeg: bb[1]},
			metadata.GeoPoint{LatitudeDeg: bb[2], LongitudeDeg: bb[3]},
		)
	}
	return b.Build()
}

// parseOrderings reads "field" as ascending and "-field" as descending.
func parseOrderings(keys []string) ([]query.Ordering, error) {
	orderings := make([]query.Ordering, 0, len(keys))
	for _, key := range keys {
		name, desc := strings.CutPrefix(key, "-")
		field, err := query.ParseOrderField(name)
		if err != nil {
			return nil, err
		}
		orderings = append(orderings, query.Ordering{Field: field, Ascending: !desc})
	}
	return orderings, nil
}

var (
	queryFlags struct {
		spec           querySpec
		file           string
		seqMin, seqMax int64
		after, before  string
		altMin, altMax float64
		gsdMin, gsdMax float64
		order          []string
		skip, max      int
	}

	queryCmd = &cobra.Command{
		Use:   "query",
		Short: "list the objects whose metadata matches",
		Long: "query prints one line per matching object. Filters given as flags\n" +
			"form one query. --from reads a YAML list of queries instead; an object\n" +
			"matching any of them is listed once.",
		Args: cobra.NoArgs,
		RunE: runQuery,
	}
)

func init() {
	f := queryCmd.Flags()
	spec := &queryFlags.spec
	f.StringSliceVar(&spec.Platforms, "platform", nil, "platform types to match")
	f.StringVar(&spec.Name, "name", "", "name substring")
	f.StringVar(&spec.Notes, "notes", "", "notes substring")
	f.StringVar(&spec.Camera, "camera", "", "camera substring")
	f.StringVar(&spec.Session, "session", "", "session name substring")
	f.StringVar(&spec.Location, "location", "", "location description substring")
	f.Int64Var(&queryFlags.seqMin, "sequence-min", 0, "lowest sequence number")
	f.Int64Var(&queryFlags.seqMax, "sequence-max", 0, "highest sequence number")
	f.StringVar(&queryFlags.after, "captured-after", "", "earliest capture date (RFC 3339)")
	f.StringVar(&queryFlags.before, "captured-before", "", "latest capture date (RFC 3339)")
	f.Float64Var(&queryFlags.altMin, "altitude-min", 0, "lowest altitude in meters")
	f.Float64Var(&queryFlags.altMax, "altitude-max", 0, "highest altitude in meters")
	f.Float64Var(&queryFlags.gsdMin, "gsd-min", 0, "lowest ground sample distance in cm/px")
	f.Float64Var(&queryFlags.gsdMax, "gsd-max", 0, "highest ground sample distance in cm/px")
	f.Float64SliceVar(&spec.BoundingBox, "bbox", nil, "SW_LAT,SW_LON,NE_LAT,NE_LON")
	f.StringVar(&queryFlags.file, "from", "", "YAML file holding a list of queries")
	f.StringSliceVar(&queryFlags.order, "order", nil, "sort keys, prefix with - for descending")
	f.IntVar(&queryFlags.skip, "skip", 0, "results to skip")
	f.IntVar(&queryFlags.max, "max", 0, "maximum results, 0 for the default")

	rootCmd.AddCommand(queryCmd)
}

// flagSpec completes the flag query with the bounds that were set.
func flagSpec(cmd *cobra.Command) (querySpec, error) {
	spec := queryFlags.spec
	f := cmd.Flags()
	if f.Changed("sequence-min") {
		spec.SequenceMin = &queryFlags.seqMin
	}
	if f.Changed("sequence-max") {
		spec.SequenceMax = &queryFlags.seqMax
	}
	if f.Changed("altitude-min") {
		spec.AltitudeMin = &queryFlags.altMin
	}
	if f.Changed("altitude-max") {
		spec.AltitudeMax = &queryFlags.altMax
	}
	if f.Changed("gsd-min") {
		spec.GSDMin = &queryFlags.gsdMin
	}
	if f.Changed("gsd-max") {
		spec.GSDMax = &queryFlags.gsdMax
	}
	for _, t := range []struct {
		value string
		dst   **time.Time
	}{
		{queryFlags.after, &spec.CapturedAfter},
		{queryFlags.before, &spec.CapturedBefore},
	} {
		if t.value == "" {
			continue
		}
		v, err := time.Parse(time.RFC3339, t.value)
		if err != nil {
			return spec, metadata.ErrValidation.Wrap(err)
		}
		*t.dst = &v
	}
	return spec, nil
}

func readSpecs(file string) ([]querySpec, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	var specs []querySpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, Error.New("parsing %s: %v", file, err)
	}
	return specs, nil
}

func queries(cmd *cobra.Command) ([]query.Query, error) {
	var specs []querySpec
	if queryFlags.file != "" {
		var err error
		if specs, err = readSpecs(queryFlags.file); err != nil {
			return nil, err
		}
	} else {
		spec, err := flagSpec(cmd)
		if err != nil {
			return nil, err
		}
		specs = []querySpec{spec}
	}

	qs := make([]query.Query, 0, len(specs))
	for _, spec := range specs {
		q, err := spec.build()
		if err != nil {
			return nil, err
		}
		qs = append(qs, q)
	}
	return qs, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	qs, err := queries(cmd)
	if err != nil {
		return err
	}
	orderings, err := parseOrderings(queryFlags.order)
	if err != nil {
		return err
	}
	opts := store.Options{Orderings: orderings, SkipFirst: queryFlags.skip, MaxResults: queryFlags.max}

	return withStore(cmd, func(s store.Store) (err error) {
		it, err := s.Query(cmd.Context(), qs, opts)
		if err != nil {
			return err
		}
		defer func() { err = errs.Combine(err, it.Close()) }()

		out := cmd.OutOrStdout()
		for it.Next() {
			ref := it.Ref()
			if _, err := fmt.Fprintf(out, "%s\t%s\n", ref.Type, ref); err != nil {
				return err
			}
		}
		return it.Err()
	})
}
