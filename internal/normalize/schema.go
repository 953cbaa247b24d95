package normalize

import (
	"fmt"

	"github.com/PaesslerAG/jsonpath"

	"github.com/sawpanic/fundrank/internal/domain/fund"
)

// RawRecord is one provider record as decoded from JSON. Only the schema
// for that provider looks inside it.
type RawRecord = map[string]any

// Schema converts the raw records of one provider into canonical funds
type Schema interface {
	// Provider names the data source the schema describes
	Provider() string
	// Decode fills a Fund from rec. It reports false when the record has no
	// usable name; missing numeric fields are defaulted and counted in rep.
	Decode(rec RawRecord, rep *Report) (fund.Fund, bool)
}

// FieldSpec maps a provider field onto a canonical one
type FieldSpec struct {
	Field   fund.Field `yaml:"field"`
	Percent bool       `yaml:"percent"` // apply Round2
}

// TaggedSchema describes providers whose records carry their attributes as a
// list of {filter, value} pairs rather than as flat keys:
//
//	{"name": "...", "data": [{"filter": "aum", "value": "1,204.5"}, ...]}
type TaggedSchema struct {
	Name      string               `yaml:"name"`
	NameKey   string               `yaml:"name_key"`
	IDKey     string               `yaml:"id_key"`
	RiskKey   string               `yaml:"risk_key"`
	ListKey   string               `yaml:"list_key"`
	FilterKey string               `yaml:"filter_key"` // defaults to "filter"
	ValueKey  string               `yaml:"value_key"`  // defaults to "value"
	Filters   map[string]FieldSpec `yaml:"filters"`
}

func (s TaggedSchema) Provider() string { return s.Name }

func (s TaggedSchema) Decode(rec RawRecord, rep *Report) (fund.Fund, bool) {
	name, ok := parseString(rec[s.NameKey])
	if !ok {
		return fund.Fund{}, false
	}
	f := fund.Fund{Name: name, Provider: s.Name}
	f.ID, _ = parseString(rec[s.IDKey])
	if risk, ok := parseString(rec[s.RiskKey]); ok {
		f.Risk = fund.ParseRisk(risk)
	}

	filterKey, valueKey := s.FilterKey, s.ValueKey
	if filterKey == "" {
		filterKey = "filter"
	}
	if valueKey == "" {
		valueKey = "value"
	}

	found := make(map[string]bool, len(s.Filters))
	items, _ := rec[s.ListKey].([]any)
	for _, item := range items {
		pair, ok := item.(map[string]any)
		if !ok {
			continue
		}
		filter, ok := parseString(pair[filterKey])
		if !ok {
			continue
		}
		spec, known := s.Filters[filter]
		if !known {
			continue
		}
		v, ok := parseNumber(pair[valueKey])
		if !ok {
			continue
		}
		if spec.Percent {
			v = Round2(v)
		}
		f.Set(spec.Field, v)
		found[filter] = true
	}

	for filter, spec := range s.Filters {
		if !found[filter] {
			rep.defaulted(name, spec.Field)
		}
	}
	return f, true
}

// PathSpec locates a field with a JSONPath expression
type PathSpec struct {
	Path    string `yaml:"path"`
	Percent bool   `yaml:"percent"`
}

// PathSchema describes providers with flat or nested JSON documents. Each
// canonical field is addressed by a JSONPath expression evaluated on the record.
type PathSchema struct {
	Name     string                  `yaml:"name"`
	NamePath string                  `yaml:"name_path"`
	IDPath   string                  `yaml:"id_path"`
	RiskPath string                  `yaml:"risk_path"`
	Fields   map[fund.Field]PathSpec `yaml:"fields"`
}

func (s PathSchema) Provider() string { return s.Name }

func (s PathSchema) Decode(rec RawRecord, rep *Report) (fund.Fund, bool) {
	name, ok := parseString(lookup(s.NamePath, rec))
	if !ok {
		return fund.Fund{}, false
	}
	f := fund.Fund{Name: name, Provider: s.Name}
	f.ID, _ = parseString(lookup(s.IDPath, rec))
	if risk, ok := parseString(lookup(s.RiskPath, rec)); ok {
		f.Risk = fund.ParseRisk(risk)
	}

	for field, spec := range s.Fields {
		v, ok := parseNumber(lookup(spec.Path, rec))
		if !ok {
			rep.defaulted(name, field)
			continue
		}
		if spec.Percent {
			v = Round2(v)
		}
		f.Set(field, v)
	}
	return f, true
}

// lookup evaluates path on rec. jsonpath is inconsistent about returning a
// single answer or a list of one, so the first element of a list is kept.
func lookup(path string, rec RawRecord) any {
	if path == "" {
		return nil
	}
	v, err := jsonpath.Get(path, rec)
	if err != nil {
		return nil
	}
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return nil
		}
		return list[0]
	}
	return v
}

// Validate checks that every mapped field exists on fund.Fund
func Validate(s Schema) error {
	var fields []fund.Field
	switch sc := s.(type) {
	case TaggedSchema:
		if sc.NameKey == "" || sc.ListKey == "" {
			return fmt.Errorf("schema %s: name_key and list_key are required", sc.Name)
		}
		for _, spec := range sc.Filters {
			fields = append(fields, spec.Field)
		}
	case PathSchema:
		if sc.NamePath == "" {
			return fmt.Errorf("schema %s: name_path is required", sc.Name)
		}
		for field := range sc.Fields {
			fields = append(fields, field)
		}
	}
	for _, field := range fields {
		if !field.Known() {
			return fmt.Errorf("schema %s: unknown field %q", s.Provider(), field)
		}
	}
	return nil
}
