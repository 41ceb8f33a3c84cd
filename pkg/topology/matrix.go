package topology

import (
	"fmt"

	"sigs.k8s.io/yaml"
)

// LatencyMatrix declares pairwise inter-cluster latencies in milliseconds
// plus one global loss percentage. The matrix is authored data consumed by
// the external placement policy's cost model; the shaping agent enforces
// only the uniform scalar parameters, never the per-pair values.
type LatencyMatrix struct {
	// Latency maps origin cluster name -> destination cluster name -> ms.
	Latency map[string]map[string]int `json:"latency"`
	// LossPct is the single global loss percentage.
	LossPct float64 `json:"loss_pct"`
}

// MatrixDocument is the persisted artifact schema, keyed by the origin
// cluster the document is written for.
type MatrixDocument struct {
	OriginCluster string                    `json:"origin_cluster"`
	LossPct       float64                   `json:"loss_pct"`
	Latency       map[string]map[string]int `json:"latency"`
}

// SelfLatencyMs is the intra-cluster latency in the default topology. It is
// every row's minimum: no remote cluster is ever closer than the local one.
const SelfLatencyMs = 5

// DefaultMatrix returns the latency model for the default fleet. Values are
// loosely modeled on geographic spread (datacenter close to lab, mining rigs
// far from everything) but are simulation inputs, not measurements.
func DefaultMatrix() LatencyMatrix {
	pairs := map[string]map[string]int{
		"dc":     {"edge": 20, "gaming": 35, "lab": 10, "mining": 60, "pan": 45},
		"edge":   {"gaming": 25, "lab": 18, "mining": 70, "pan": 30},
		"gaming": {"lab": 40, "mining": 80, "pan": 15},
		"lab":    {"mining": 55, "pan": 38},
		"mining": {"pan": 90},
		"pan":    {},
	}

	names := []string{"dc", "edge", "gaming", "lab", "mining", "pan"}
	m := LatencyMatrix{
		Latency: make(map[string]map[string]int, len(names)),
		LossPct: 0.1,
	}
	for _, origin := range names {
		row := make(map[string]int, len(names))
		row[origin] = SelfLatencyMs
		for _, dest := range names {
			if dest == origin {
				continue
			}
			if v, ok := pairs[origin][dest]; ok {
				row[dest] = v
			} else {
				row[dest] = pairs[dest][origin]
			}
		}
		m.Latency[origin] = row
	}
	return m
}

// Validate checks the matrix invariants: fully connected and square (every
// row key appears as a column key in every row), non-negative values, loss
// in [0, 100], and self-latency present and the minimum of its row.
func (m LatencyMatrix) Validate() error {
	if len(m.Latency) == 0 {
		return fmt.Errorf("empty latency matrix")
	}
	if m.LossPct < 0 || m.LossPct > 100 {
		return fmt.Errorf("loss percentage %v out of range [0, 100]", m.LossPct)
	}

	for origin, row := range m.Latency {
		if len(row) != len(m.Latency) {
			return fmt.Errorf("row %q has %d entries, want %d", origin, len(row), len(m.Latency))
		}
		self, ok := row[origin]
		if !ok {
			return fmt.Errorf("row %q has no self-latency entry", origin)
		}
		for dest, ms := range row {
			if _, ok := m.Latency[dest]; !ok {
				return fmt.Errorf("row %q references unknown cluster %q", origin, dest)
			}
			if ms < 0 {
				return fmt.Errorf("negative latency %d ms for %s -> %s", ms, origin, dest)
			}
			if ms < self {
				return fmt.Errorf("latency %s -> %s (%d ms) below self-latency (%d ms)",
					origin, dest, ms, self)
			}
		}
	}
	return nil
}

// Document builds the persisted artifact for one origin cluster.
func (m LatencyMatrix) Document(origin string) (MatrixDocument, error) {
	if _, ok := m.Latency[origin]; !ok {
		return MatrixDocument{}, fmt.Errorf("unknown origin cluster %q", origin)
	}
	return MatrixDocument{
		OriginCluster: origin,
		LossPct:       m.LossPct,
		Latency:       m.Latency,
	}, nil
}

// RenderYAML renders the document in the format the placement policy reads.
func (d MatrixDocument) RenderYAML() ([]byte, error) {
	out, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshaling latency matrix for %q: %w", d.OriginCluster, err)
	}
	return out, nil
}
