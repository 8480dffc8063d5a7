package ingest

import (
	"net/url"
	"strings"
	"testing"

	"idsguard/internal/failure"
	"idsguard/internal/normalize"
)

func testContract(t *testing.T) *normalize.Contract {
	t.Helper()
	c, err := normalize.NewContract([]string{"Destination Port", "Flow Duration"})
	if err != nil {
		t.Fatalf("contract: %v", err)
	}
	return c
}

func TestReadCSV(t *testing.T) {
	doc := "\ufeff Destination Port, Flow Duration,Label\n80,1200,BENIGN\n22, 5,DDoS\n"
	rows, err := ReadCSV(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if v, _ := rows[1].Get("Destination Port"); v != "22" {
		t.Fatalf("destination port = %q", v)
	}
	if v, _ := rows[1].Get("Flow Duration"); v != "5" {
		t.Fatalf("flow duration = %q", v)
	}
	names := rows[0].Names()
	if names[0] != "Destination Port" || names[2] != "Label" {
		t.Fatalf("names = %v", names)
	}
}

func TestReadCSVFailures(t *testing.T) {
	cases := map[string]string{
		"empty":       "",
		"header only": "a,b\n",
		"ragged":      "a,b\n1,2\n3\n",
		"bad quote":   "a,b\n\"1,2\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(doc))
			if !failure.Is(err, failure.KindContract) {
				t.Fatalf("expected contract failure, got %v", err)
			}
		})
	}
}

func TestValidateHeader(t *testing.T) {
	c := testContract(t)
	missing := ValidateHeader(c, []string{" Flow Duration", "Label"})
	if len(missing) != 1 || missing[0] != "Destination Port" {
		t.Fatalf("missing = %v", missing)
	}
}

func TestRecordFromFormOrdersContractFirst(t *testing.T) {
	c := testContract(t)
	form := url.Values{
		"zeta":             {"1"},
		"Flow Duration":    {"300", "ignored"},
		"Destination Port": {"443"},
	}
	rec := RecordFromForm(c, form)
	names := rec.Names()
	if len(names) != 3 || names[0] != "Destination Port" || names[1] != "Flow Duration" || names[2] != "zeta" {
		t.Fatalf("names = %v", names)
	}
	if v, _ := rec.Get("Flow Duration"); v != "300" {
		t.Fatalf("flow duration = %q", v)
	}
}

func TestRecordFromJSON(t *testing.T) {
	c := testContract(t)
	rec, err := RecordFromJSON(c, []byte(`{"Destination Port": 80, "Flow Duration": 1.5e3, "note": "x"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v, _ := rec.Get("Flow Duration"); v != "1.5e3" {
		t.Fatalf("flow duration = %q", v)
	}
	vec, err := normalize.NormalizeSingle(c, rec)
	if err != nil || vec[0] != 80 || vec[1] != 1500 {
		t.Fatalf("vec = %v err = %v", vec, err)
	}

	if _, err := RecordFromJSON(c, []byte(`[1,2]`)); !failure.Is(err, failure.KindContract) {
		t.Fatalf("expected contract failure for array, got %v", err)
	}
	if _, err := RecordFromJSON(c, []byte(`{"Destination Port": {"x": 1}}`)); !failure.Is(err, failure.KindCoercion) {
		t.Fatalf("expected coercion failure for nested value, got %v", err)
	}
	rec, err = RecordFromJSON(c, []byte(`{"Destination Port": true, "Flow Duration": 1}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := normalize.NormalizeSingle(c, rec); !failure.Is(err, failure.KindCoercion) {
		t.Fatalf("expected coercion failure for boolean feature, got %v", err)
	}
}
