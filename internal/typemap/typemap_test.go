package typemap

import (
	"bytes"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/johndauphine/pg2sqlite/internal/migerr"
)

func TestMapType(t *testing.T) {
	tests := []struct {
		sourceType string
		want       StorageClass
	}{
		{"bool", Integer},
		{"int2", Integer},
		{"int4", Integer},
		{"int8", Integer},
		{"text", Text},
		{"varchar", Text},
		{"char", Text},
		{"name", Text},
		{"bpchar", Text},
		{"uuid", Text},
		{"json", Blob},
		{"jsonb", Blob},
		{"bit", Blob},
		{"varbit", Blob},
		{"bytea", Blob},
		{"xml", Blob},
		{"float4", Real},
		{"float8", Real},
		{"numeric", Real},
		{"date", Real},
		{"timestamp", Real},
		{"timestamptz", Real},
		{"INT4", Integer},
	}

	for _, tt := range tests {
		t.Run(tt.sourceType, func(t *testing.T) {
			got, err := MapType(tt.sourceType)
			if err != nil {
				t.Fatalf("MapType(%q) error: %v", tt.sourceType, err)
			}
			if got != tt.want {
				t.Errorf("MapType(%q) = %s, want %s", tt.sourceType, got, tt.want)
			}
		})
	}
}

func TestMapTypeUnknown(t *testing.T) {
	for _, name := range []string{"mood", "_int4", "interval", "hstore", ""} {
		_, err := MapType(name)
		if err == nil {
			t.Errorf("MapType(%q) should fail", name)
			continue
		}
		if !migerr.Is(err, migerr.KindTypeMapping) {
			t.Errorf("MapType(%q) error kind: got %v, want type mapping", name, err)
		}
	}
}

func TestConvertCellNull(t *testing.T) {
	for _, info := range Types() {
		t.Run(info.Name, func(t *testing.T) {
			got, err := ConvertCell(nil, info.Name, true)
			if err != nil {
				t.Fatalf("nullable NULL: unexpected error %v", err)
			}
			if got != nil {
				t.Errorf("nullable NULL: got %v, want nil", got)
			}

			_, err = ConvertCell(nil, info.Name, false)
			if !migerr.Is(err, migerr.KindCellTranslation) {
				t.Errorf("non-nullable NULL: got %v, want cell translation error", err)
			}
		})
	}
}

func TestConvertCellUnknownType(t *testing.T) {
	_, err := ConvertCell("happy", "mood", true)
	if !migerr.Is(err, migerr.KindTypeMapping) {
		t.Errorf("got %v, want type mapping error", err)
	}
}

func TestConvertCellValues(t *testing.T) {
	ts := time.Date(2021, 3, 4, 5, 6, 7, 500000000, time.FixedZone("CET", 3600))

	tests := []struct {
		name       string
		sourceType string
		raw        any
		want       any
	}{
		{"bool true", "bool", true, int64(1)},
		{"bool false", "bool", false, int64(0)},
		{"int2", "int2", int16(-7), int64(-7)},
		{"int4", "int4", int32(42), int64(42)},
		{"int8 text", "int8", []byte("9000000000"), int64(9000000000)},
		{"float4", "float4", float32(1.5), float64(1.5)},
		{"numeric text", "numeric", []byte("12.25"), float64(12.25)},
		{"text", "text", "hello", "hello"},
		{"varchar bytes", "varchar", []byte("hi"), "hi"},
		{"char code", "char", uint8('x'), "x"},
		{"uuid array", "uuid", [16]byte{0x12, 0x34, 0x56, 0x78, 0x12, 0x34, 0x56, 0x78, 0x12, 0x34, 0x56, 0x78, 0x12, 0x34, 0x56, 0x78},
			"12345678-1234-5678-1234-567812345678"},
		{"uuid text", "uuid", []byte("12345678-1234-5678-1234-567812345678"), "12345678-1234-5678-1234-567812345678"},
		{"json map", "jsonb", map[string]any{"a": float64(1)}, `{"a":1}`},
		{"json text", "json", []byte(`{"b":2}`), `{"b":2}`},
		{"date", "date", ts, "2021-03-04"},
		{"timestamp", "timestamp", ts, "2021-03-04 05:06:07.5"},
		{"timestamptz utc", "timestamptz", ts, "2021-03-04 04:06:07.5+00:00"},
		{"time pgtype", "time", pgtype.Time{Microseconds: 3723000001, Valid: true}, "01:02:03.000001"},
		{"date infinity", "date", pgtype.Infinity, "infinity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConvertCell(tt.raw, tt.sourceType, false)
			if err != nil {
				t.Fatalf("ConvertCell error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ConvertCell(%v, %s) = %#v, want %#v", tt.raw, tt.sourceType, got, tt.want)
			}
		})
	}
}

func TestConvertCellBits(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want []byte
	}{
		{"pgtype bits", pgtype.Bits{Bytes: []byte{0xA0}, Len: 3, Valid: true}, []byte{0xA0}},
		{"text bits", "101", []byte{0xA0}},
		{"text bits spanning bytes", []byte("111111111"), []byte{0xFF, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConvertCell(tt.raw, "varbit", true)
			if err != nil {
				t.Fatalf("ConvertCell error: %v", err)
			}
			b, ok := got.([]byte)
			if !ok {
				t.Fatalf("got %T, want []byte", got)
			}
			if !bytes.Equal(b, tt.want) {
				t.Errorf("got %x, want %x", b, tt.want)
			}
		})
	}

	if _, err := ConvertCell("10x", "bit", true); !migerr.Is(err, migerr.KindCellTranslation) {
		t.Errorf("invalid bit string: got %v, want cell translation error", err)
	}
}

func TestConvertCellMismatch(t *testing.T) {
	_, err := ConvertCell(struct{}{}, "int4", true)
	if !migerr.Is(err, migerr.KindCellTranslation) {
		t.Errorf("got %v, want cell translation error", err)
	}
}

func TestTypesSortedByClass(t *testing.T) {
	infos := Types()
	if len(infos) != len(registry) {
		t.Fatalf("Types() returned %d entries, want %d", len(infos), len(registry))
	}
	if infos[0].Class != Integer.String() {
		t.Errorf("first entry class = %s, want %s", infos[0].Class, Integer)
	}
	if infos[len(infos)-1].Class != Real.String() {
		t.Errorf("last entry class = %s, want %s", infos[len(infos)-1].Class, Real)
	}
}
