package targets

import (
	"context"
	"fmt"
	"testing"

	"github.com/duke-git/lancet/v2/slice"
	"pgregory.net/rapid"

	"yqhp/release-graph/pkg/types"
)

var (
	releaseTypes = []string{"", "nightly", "beta", "release"}
	phases       = []string{"", "build", "promote", "ship"}
)

func genGraph(t *rapid.T) *types.TaskGraph {
	graph := types.NewTaskGraph()
	n := rapid.IntRange(0, 25).Draw(t, "tasks")
	for i := 0; i < n; i++ {
		attrs := types.Attributes{}
		if rt := rapid.SampledFrom(releaseTypes).Draw(t, "release-type"); rt != "" {
			attrs[types.AttrReleaseType] = rt
		}
		if phase := rapid.SampledFrom(phases).Draw(t, "phase"); phase != "" {
			attrs[types.AttrShippingPhase] = phase
		}
		if rapid.Bool().Draw(t, "nightly") {
			attrs[types.AttrNightlyTask] = true
		}
		_ = graph.Add(&types.TaskNode{Label: fmt.Sprintf("task-%02d", i), Attributes: attrs})
	}
	return graph
}

// TestPromoteExactnessProperty: a label is selected iff both attributes are
// present and match; an empty release type on the trigger matches nothing.
func TestPromoteExactnessProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		graph := genGraph(t)
		params := types.Parameters{ReleaseType: rapid.SampledFrom(releaseTypes).Draw(t, "param")}

		selected := Promote(graph, params)
		for _, label := range graph.Labels() {
			attrs := graph.Tasks[label].Attributes
			releaseType, tagged := attrs[types.AttrReleaseType]
			want := tagged && releaseType == params.ReleaseType &&
				attrs.String(types.AttrShippingPhase) == types.PhasePromote
			if slice.Contain(selected, label) != want {
				t.Fatalf("label %s: selected=%v want=%v", label, !want, want)
			}
		}
	})
}

// TestShipSupersetProperty: ship contains promote and adds only ship phase tasks.
func TestShipSupersetProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		graph := genGraph(t)
		params := types.Parameters{ReleaseType: rapid.SampledFrom(releaseTypes[1:]).Draw(t, "param")}

		promote := Promote(graph, params)
		ship := Ship(graph, params)

		for _, label := range promote {
			if !slice.Contain(ship, label) {
				t.Fatalf("promote task %s missing from ship", label)
			}
		}
		for _, label := range slice.Difference(ship, promote) {
			attrs := graph.Tasks[label].Attributes
			if attrs.String(types.AttrShippingPhase) != types.PhaseShip ||
				attrs.String(types.AttrReleaseType) != params.ReleaseType {
				t.Fatalf("unexpected ship task %s", label)
			}
		}
		if len(slice.Unique(ship)) != len(ship) {
			t.Fatalf("duplicate labels in %v", ship)
		}
	})
}

// TestNightlyIdempotencyProperty: an existing decision index yields nothing,
// a missing one yields exactly the nightly tasks.
func TestNightlyIdempotencyProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		graph := genGraph(t)
		exists := rapid.Bool().Draw(t, "exists")
		selector := NewSelector(&fakeIndex{exists: exists}, Options{Automation: true, TrustDomain: "mobile"})

		labels, err := selector.Select(context.Background(), MethodNightly, graph, types.Parameters{HeadRev: "r"})
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if exists && len(labels) != 0 {
			t.Fatalf("expected nothing, got %v", labels)
		}
		if !exists && len(labels) != len(Nightly(graph)) {
			t.Fatalf("expected %v, got %v", Nightly(graph), labels)
		}
	})
}
