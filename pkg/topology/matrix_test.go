package topology_test

import (
	"testing"

	"sigs.k8s.io/yaml"

	"digital-twin-fabric/fabric/pkg/topology"
)

func TestDefaultMatrix_Invariants(t *testing.T) {
	m := topology.DefaultMatrix()
	if err := m.Validate(); err != nil {
		t.Fatalf("default matrix invalid: %v", err)
	}

	for origin, row := range m.Latency {
		// Square and fully connected: every row key is a column key everywhere.
		for other := range m.Latency {
			if _, ok := row[other]; !ok {
				t.Errorf("row %q missing column %q", origin, other)
			}
		}

		if row[origin] != topology.SelfLatencyMs {
			t.Errorf("self-latency for %q = %d, want %d", origin, row[origin], topology.SelfLatencyMs)
		}
		for dest, ms := range row {
			if ms < row[origin] {
				t.Errorf("%s -> %s (%d ms) below row minimum %d ms", origin, dest, ms, row[origin])
			}
		}
	}
}

func TestDefaultMatrix_Symmetric(t *testing.T) {
	m := topology.DefaultMatrix()
	for a, row := range m.Latency {
		for b, ms := range row {
			if back := m.Latency[b][a]; back != ms {
				t.Errorf("asymmetric: %s -> %s = %d but %s -> %s = %d", a, b, ms, b, a, back)
			}
		}
	}
}

func TestMatrixValidate_Rejections(t *testing.T) {
	valid := topology.DefaultMatrix()

	missingColumn := topology.DefaultMatrix()
	delete(missingColumn.Latency["dc"], "pan")

	noSelf := topology.DefaultMatrix()
	delete(noSelf.Latency["edge"], "edge")
	noSelf.Latency["edge"]["ghost"] = 10

	belowSelf := topology.DefaultMatrix()
	belowSelf.Latency["lab"]["dc"] = 1

	badLoss := topology.DefaultMatrix()
	badLoss.LossPct = 101

	tests := []struct {
		name    string
		m       topology.LatencyMatrix
		wantErr bool
	}{
		{"valid", valid, false},
		{"empty", topology.LatencyMatrix{}, true},
		{"missing column", missingColumn, true},
		{"no self entry", noSelf, true},
		{"below self-latency", belowSelf, true},
		{"loss out of range", badLoss, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMatrixDocument_YAML(t *testing.T) {
	m := topology.DefaultMatrix()
	doc, err := m.Document("lab")
	if err != nil {
		t.Fatal(err)
	}

	out, err := doc.RenderYAML()
	if err != nil {
		t.Fatal(err)
	}

	var back topology.MatrixDocument
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("artifact does not round-trip: %v", err)
	}
	if back.OriginCluster != "lab" {
		t.Errorf("origin_cluster = %q, want lab", back.OriginCluster)
	}
	if back.Latency["lab"]["lab"] != topology.SelfLatencyMs {
		t.Errorf("self-latency lost in round trip: %d", back.Latency["lab"]["lab"])
	}
	if back.Latency["dc"]["mining"] != m.Latency["dc"]["mining"] {
		t.Errorf("pairwise value lost in round trip")
	}
}

func TestMatrixDocument_UnknownOrigin(t *testing.T) {
	if _, err := topology.DefaultMatrix().Document("nowhere"); err == nil {
		t.Error("expected error for unknown origin cluster")
	}
}
