package api

import "testing"

func TestPlateRegistry_Unregister(t *testing.T) {
	a, _ := testService(t, "a")
	b, _ := testService(t, "b")
	r := NewPlateRegistry("")
	r.Register("a", "", SourceConfig, a)
	r.Register("b", "Plate B", SourceCatalog, b)

	if got := r.Source("b"); got != SourceCatalog {
		t.Fatalf("source = %q", got)
	}
	if info, ok := r.Info("a"); !ok || info.Title != "a" || info.Source != SourceConfig {
		t.Fatalf("info = %+v %v", info, ok)
	}

	if !r.Unregister("a") {
		t.Fatal("Unregister(a) = false")
	}
	if r.Unregister("a") {
		t.Fatal("second Unregister(a) = true")
	}
	if r.DefaultPlateID() != "b" || len(r.PlateIDs()) != 1 {
		t.Fatalf("default %q ids %v", r.DefaultPlateID(), r.PlateIDs())
	}
	if r.Get("a") != nil || r.Source("a") != "" {
		t.Fatal("a still registered")
	}

	r.Unregister("b")
	if r.DefaultPlateID() != "" || r.Title() != "Plate Grid" {
		t.Fatalf("empty registry: default %q", r.DefaultPlateID())
	}
}
