package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"deliverycost/internal/destination"
	"deliverycost/internal/engine"
	"deliverycost/internal/tariff"
	"deliverycost/internal/tariff/flatfile"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// simulatedEnv pins the engine to the simulated source whatever the host
// environment has configured.
func simulatedEnv(t *testing.T) {
	t.Setenv("TARIFF_SOURCES", "simulated")
	t.Setenv("TARIFF_API_URL", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("PORT", "")
	t.Setenv("FUZZY_THRESHOLD", "")
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "export.csv")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestResolve(t *testing.T) {
	out, _, err := run(t, "resolve", "Oran,", "Algeria")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	var res destination.Resolution
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.WilayaCode != 31 || res.Commune != "Oran" {
		t.Fatalf("unexpected resolution: %+v", res)
	}
}

func TestResolveUnknown(t *testing.T) {
	_, _, err := run(t, "resolve", "Atlantis")
	if !errors.Is(err, destination.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestQuoteSimulated(t *testing.T) {
	simulatedEnv(t)
	out, _, err := run(t, "quote", "-s", "yalidine", "-d", "Oran, Algeria", "-w", "7")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	var p engine.Priced
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.BasePrice != 400 || p.OverweightFee != 100 || p.TotalPrice != 500 {
		t.Fatalf("unexpected price: %+v", p.Result)
	}
}

func TestQuoteRequiresFlags(t *testing.T) {
	simulatedEnv(t)
	if _, _, err := run(t, "quote", "-d", "Oran"); err == nil {
		t.Fatalf("expected missing --service to fail")
	}
}

func TestTariffListAndGet(t *testing.T) {
	simulatedEnv(t)
	out, _, err := run(t, "tariff", "zr", "31", "Arzew")
	if err != nil {
		t.Fatalf("tariff: %v", err)
	}
	var rec tariff.Record
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Service != "zr" || rec.WilayaCode != 31 || rec.Source != "simulated" {
		t.Fatalf("unexpected tariff: %+v", rec)
	}

	out, _, err = run(t, "tariff", "zr", "31")
	if err != nil {
		t.Fatalf("tariff list: %v", err)
	}
	var recs []tariff.Record
	if err := json.Unmarshal([]byte(out), &recs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(recs) < 2 {
		t.Fatalf("expected every commune of Oran, got %d", len(recs))
	}

	if _, _, err := run(t, "tariff", "zr", "oran"); err == nil {
		t.Fatalf("expected non-numeric wilaya to fail")
	}
}

func TestImportValidate(t *testing.T) {
	p := writeCSV(t, "wilaya_code,wilaya,commune,office,home\n31,Oran,Oran,350,400\n16,Alger,Kouba,250,300\n16,Alger,Nowhere Town,,450\n")

	out, errOut, err := run(t, "import", p, "-s", "yalidine")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "3 yalidine tariffs valid") {
		t.Fatalf("unexpected output: %q", out)
	}
	if !strings.Contains(errOut, "Nowhere Town is not a known commune of wilaya 16") {
		t.Fatalf("expected unknown commune warning, got %q", errOut)
	}

	if _, _, err := run(t, "import", p, "-s", "yalidine", "--strict"); err == nil {
		t.Fatalf("expected --strict to reject unknown communes")
	}
}

func TestImportMalformed(t *testing.T) {
	p := writeCSV(t, "31,Oran,Oran,350,400\n99,Nowhere,Somewhere,100,200\n")
	_, _, err := run(t, "import", p, "-s", "yalidine")
	if !errors.Is(err, flatfile.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected line number in %v", err)
	}
}

func TestImportUnknownTarget(t *testing.T) {
	p := writeCSV(t, "31,Oran,Oran,350,400\n")
	_, _, err := run(t, "import", p, "-s", "yalidine", "--to", "redis")
	if err == nil || !strings.Contains(err.Error(), "unknown import target") {
		t.Fatalf("expected unknown target error, got %v", err)
	}
}
