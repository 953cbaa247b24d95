// Package normalize maps provider-specific raw records onto fund.Fund.
//
// Normalization never fails the pipeline: absent or malformed attributes are
// defaulted to zero and counted in a Report so callers can surface them.
package normalize

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/fundrank/internal/domain/fund"
)

// Report counts what a normalization pass had to default or skip
type Report struct {
	Provider  string             `json:"provider"`
	Records   int                `json:"records"`
	Skipped   int                `json:"skipped"`
	Defaulted map[fund.Field]int `json:"defaulted,omitempty"`
}

// Malformed returns the number of defaulted fields plus skipped records
func (r Report) Malformed() int {
	n := r.Skipped
	for _, c := range r.Defaulted {
		n += c
	}
	return n
}

// Fields returns the defaulted fields in a stable order
func (r Report) Fields() []fund.Field {
	fields := make([]fund.Field, 0, len(r.Defaulted))
	for f := range r.Defaulted {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}

// Merge adds the counts of other into r
func (r *Report) Merge(other Report) {
	r.Records += other.Records
	r.Skipped += other.Skipped
	for f, c := range other.Defaulted {
		if r.Defaulted == nil {
			r.Defaulted = make(map[fund.Field]int)
		}
		r.Defaulted[f] += c
	}
}

func (r *Report) defaulted(name string, field fund.Field) {
	if r == nil {
		return
	}
	if r.Defaulted == nil {
		r.Defaulted = make(map[fund.Field]int)
	}
	r.Defaulted[field]++
	log.Debug().
		Str("provider", r.Provider).
		Str("fund", name).
		Str("field", string(field)).
		Msg("Field missing from provider record, defaulting to 0")
}

// Normalize decodes every record with schema. Records without a name are
// skipped; everything else produces a Fund, in input order.
func Normalize(records []RawRecord, schema Schema) ([]fund.Fund, Report) {
	rep := Report{Provider: schema.Provider(), Records: len(records)}
	funds := make([]fund.Fund, 0, len(records))

	for i, rec := range records {
		if rec == nil {
			rep.Skipped++
			continue
		}
		f, ok := schema.Decode(rec, &rep)
		if !ok {
			rep.Skipped++
			log.Debug().
				Str("provider", rep.Provider).
				Int("index", i).
				Msg("Skipping provider record without a name")
			continue
		}
		funds = append(funds, f)
	}

	if n := rep.Malformed(); n > 0 {
		log.Info().
			Str("provider", rep.Provider).
			Int("records", rep.Records).
			Int("skipped", rep.Skipped).
			Int("defaulted_fields", n-rep.Skipped).
			Msg("Provider records normalized with defaults")
	}
	return funds, rep
}
