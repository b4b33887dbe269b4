// Package typemap translates PostgreSQL column types into SQLite storage
// classes and converts individual cell values for insertion.
//
// The mapping is a registry keyed by the source type's udt_name. Each entry
// pairs a storage class (used when emitting DDL) with the conversion applied
// to every non-NULL cell of that type. Adding support for a type means adding
// a registry entry; there is no per-type branching elsewhere.
package typemap

import (
	"sort"
	"strings"

	"github.com/johndauphine/pg2sqlite/internal/migerr"
)

// StorageClass is one of SQLite's column storage classes.
type StorageClass int

const (
	Integer StorageClass = iota + 1
	Text
	Blob
	Real
)

// String returns the class as it appears in a column definition.
func (c StorageClass) String() string {
	switch c {
	case Integer:
		return "INTEGER"
	case Text:
		return "TEXT"
	case Blob:
		return "BLOB"
	case Real:
		return "REAL"
	default:
		return "UNKNOWN"
	}
}

// converter turns a non-NULL value read from the source into a value the
// destination driver accepts.
type converter func(v any) (any, error)

type entry struct {
	class   StorageClass
	convert converter
}

var registry = map[string]entry{
	// integral and boolean
	"bool": {Integer, toInteger},
	"int2": {Integer, toInteger},
	"int4": {Integer, toInteger},
	"int8": {Integer, toInteger},

	// character
	"char":    {Text, charToText},
	"text":    {Text, toText},
	"name":    {Text, toText},
	"varchar": {Text, toText},
	"bpchar":  {Text, toText},
	"unknown": {Text, toText},
	"uuid":    {Text, uuidToText},

	// binary, document and bit-string
	"json":       {Blob, jsonToText},
	"jsonb":      {Blob, jsonToText},
	"xml":        {Blob, toBytes},
	"bit":        {Blob, bitsToBytes},
	"varbit":     {Blob, bitsToBytes},
	"int2vector": {Blob, toBytes},
	"bytea":      {Blob, toBytes},

	// floating point, decimal and temporal
	"float4":      {Real, toReal},
	"float8":      {Real, toReal},
	"numeric":     {Real, toReal},
	"date":        {Real, temporal(dateLayout, false)},
	"time":        {Real, temporal(timeLayout, false)},
	"timetz":      {Real, temporal(timeTZLayout, false)},
	"timestamp":   {Real, temporal(timestampLayout, false)},
	"timestamptz": {Real, temporal(timestampTZLayout, true)},
}

func lookup(sourceType string) (entry, error) {
	e, ok := registry[strings.ToLower(sourceType)]
	if !ok {
		return entry{}, migerr.Newf(migerr.KindTypeMapping,
			"unable to convert postgres type %q to a sqlite type", sourceType)
	}
	return e, nil
}

// MapType returns the storage class for a source type name.
// Types without a registry entry fail with a type mapping error.
func MapType(sourceType string) (StorageClass, error) {
	e, err := lookup(sourceType)
	if err != nil {
		return 0, err
	}
	return e.class, nil
}

// ConvertCell converts one source value for insertion into a column of the
// given source type. A NULL (nil) is passed through for nullable columns and
// rejected for non-nullable ones; it is never replaced by a placeholder.
func ConvertCell(raw any, sourceType string, nullable bool) (any, error) {
	e, err := lookup(sourceType)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		if nullable {
			return nil, nil
		}
		return nil, migerr.Newf(migerr.KindCellTranslation,
			"NULL value in column declared NOT NULL (%s)", sourceType)
	}
	v, err := e.convert(raw)
	if err != nil {
		return nil, migerr.Wrap(migerr.KindCellTranslation, "converting "+sourceType, err)
	}
	return v, nil
}

// TypeInfo describes one registry entry.
type TypeInfo struct {
	Name  string `yaml:"name"`
	Class string `yaml:"class"`
}

// Types lists every supported source type, grouped by storage class and
// sorted by name within each class.
func Types() []TypeInfo {
	infos := make([]TypeInfo, 0, len(registry))
	for name, e := range registry {
		infos = append(infos, TypeInfo{Name: name, Class: e.class.String()})
	}
	sort.Slice(infos, func(i, j int) bool {
		ci, cj := registry[infos[i].Name].class, registry[infos[j].Name].class
		if ci != cj {
			return ci < cj
		}
		return infos[i].Name < infos[j].Name
	})
	return infos
}
