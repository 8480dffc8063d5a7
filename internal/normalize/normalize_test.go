package normalize

import (
	"errors"
	"testing"
	"time"

	"idsguard/internal/failure"
)

func testContract(t *testing.T) *Contract {
	t.Helper()
	c, err := NewContract([]string{"destination_port", "flow_duration"})
	if err != nil {
		t.Fatalf("contract: %v", err)
	}
	return c
}

func TestNewContractRejectsBadNames(t *testing.T) {
	if _, err := NewContract(nil); err == nil {
		t.Fatalf("expected error for empty contract")
	}
	if _, err := NewContract([]string{"a", " "}); err == nil {
		t.Fatalf("expected error for blank name")
	}
	if _, err := NewContract([]string{"a", "b", "a"}); err == nil {
		t.Fatalf("expected error for duplicate name")
	}
}

func TestValidateReturnsMissingInContractOrder(t *testing.T) {
	c, _ := NewContract([]string{"c", "a", "b"})
	missing := c.ValidateNames([]string{"a", "extra"})
	if len(missing) != 2 || missing[0] != "c" || missing[1] != "b" {
		t.Fatalf("missing = %v", missing)
	}
	if got := c.ValidateNames([]string{"b", "a", "c"}); len(got) != 0 {
		t.Fatalf("expected valid, got %v", got)
	}
}

func TestNormalizeBatchOrdersByContract(t *testing.T) {
	c := testContract(t)
	rows := []Record{
		NewRecord(Field{"flow_duration", "12.0"}, Field{"label", "x"}, Field{"destination_port", "443"}),
		NewRecord(Field{"destination_port", "80"}, Field{"flow_duration", " 3.5 "}),
	}
	m, err := NormalizeBatch(c, rows)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	r, cols := m.Dims()
	if r != 2 || cols != 2 {
		t.Fatalf("dims = %dx%d", r, cols)
	}
	if m.At(0, 0) != 443 || m.At(0, 1) != 12 || m.At(1, 0) != 80 || m.At(1, 1) != 3.5 {
		t.Fatalf("unexpected matrix values")
	}
}

func TestNormalizeBatchMissingFeature(t *testing.T) {
	c := testContract(t)
	rows := []Record{
		NewRecord(Field{"destination_port", "443"}, Field{"flow_duration", "1"}),
		NewRecord(Field{"destination_port", "80"}),
	}
	_, err := NormalizeBatch(c, rows)
	if !failure.Is(err, failure.KindContract) {
		t.Fatalf("expected contract violation, got %v", err)
	}
	var mf *MissingFeaturesError
	if !errors.As(err, &mf) || len(mf.Missing) != 1 || mf.Missing[0] != "flow_duration" {
		t.Fatalf("expected flow_duration missing, got %v", err)
	}
}

func TestNormalizeBatchEmpty(t *testing.T) {
	if _, err := NormalizeBatch(testContract(t), nil); !failure.Is(err, failure.KindContract) {
		t.Fatalf("expected contract violation, got %v", err)
	}
}

func TestNormalizeCoercionFailures(t *testing.T) {
	c := testContract(t)
	for _, bad := range []string{"abc", "", "NaN", "+Inf"} {
		rec := NewRecord(Field{"destination_port", bad}, Field{"flow_duration", "1"})
		if _, err := NormalizeSingle(c, rec); !failure.Is(err, failure.KindCoercion) {
			t.Fatalf("value %q: expected coercion failure, got %v", bad, err)
		}
		if _, err := NormalizeBatch(c, []Record{rec}); !failure.Is(err, failure.KindCoercion) {
			t.Fatalf("value %q: expected batch coercion failure, got %v", bad, err)
		}
	}
}

func TestNormalizeSingleMatchesBatchRow(t *testing.T) {
	c := testContract(t)
	rec := RecordFromMap(map[string]string{"destination_port": "8080", "flow_duration": "0.125"})
	vec, err := NormalizeSingle(c, rec)
	if err != nil {
		t.Fatalf("single: %v", err)
	}
	m, err := NormalizeBatch(c, []Record{rec})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	for j, v := range vec {
		if m.At(0, j) != v {
			t.Fatalf("column %d: %v != %v", j, m.At(0, j), v)
		}
	}
}

func TestRecordDuplicateNameKeepsLastValue(t *testing.T) {
	rec := NewRecord(Field{"a", "1"}, Field{"b", "2"}, Field{"a", "3"})
	if rec.Len() != 2 {
		t.Fatalf("len = %d", rec.Len())
	}
	if v, _ := rec.Get("a"); v != "3" {
		t.Fatalf("a = %s", v)
	}
	if names := rec.Names(); names[0] != "a" || names[1] != "b" {
		t.Fatalf("names = %v", names)
	}
}

func TestRecordDetails(t *testing.T) {
	rec := NewRecord(Field{"destination_port", "443"}, Field{"label", "BENIGN"})
	d := rec.Details()
	if d["destination_port"] != 443.0 {
		t.Fatalf("destination_port = %#v", d["destination_port"])
	}
	if d["label"] != "BENIGN" {
		t.Fatalf("label = %#v", d["label"])
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2026-02-23T12:34:56Z", time.Date(2026, 2, 23, 12, 34, 56, 0, time.UTC)},
		{"2026-02-23 12:34:56", time.Date(2026, 2, 23, 12, 34, 56, 0, time.UTC)},
		{"2026-02-23", time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC)},
		{"1700000000", time.Unix(1700000000, 0).UTC()},
		{"1700000000123", time.UnixMilli(1700000000123).UTC()},
	}
	for _, tc := range cases {
		got, err := ParseTimestamp(tc.in, time.UTC)
		if err != nil {
			t.Fatalf("%q: %v", tc.in, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("%q: got %v want %v", tc.in, got, tc.want)
		}
	}
	if _, err := ParseTimestamp("yesterday", time.UTC); err == nil {
		t.Fatalf("expected error")
	}
}
