package multiagent

import (
	"errors"
	"testing"

	"github.com/haasonsaas/agentrt/pkg/blocks"
)

func TestSerializeStateRoundTrip(t *testing.T) {
	original := MultiAgentResult{
		Status: MultiAgentCompleted,
		Results: map[string]NodeResult{
			"writer": {
				NodeID: "writer",
				Status: NodeCompleted,
				Result: &blocks.AgentResult{StopReason: blocks.StopEndTurn},
			},
			"reviewer": {
				NodeID: "reviewer",
				Status: NodeFailed,
				Err:    errors.New("tool registry rejected reviewer's tool call"),
			},
		},
	}

	data, err := original.SerializeState("graph")
	if err != nil {
		t.Fatalf("SerializeState: %v", err)
	}

	kind, decoded, err := DeserializeState(data)
	if err != nil {
		t.Fatalf("DeserializeState: %v", err)
	}
	if kind != "graph" {
		t.Fatalf("expected kind graph, got %q", kind)
	}
	if decoded.Status != MultiAgentCompleted {
		t.Fatalf("expected status completed, got %v", decoded.Status)
	}
	if len(decoded.Results) != 2 {
		t.Fatalf("expected 2 node results, got %d", len(decoded.Results))
	}
	writer := decoded.Results["writer"]
	if writer.Status != NodeCompleted || writer.Result == nil || writer.Result.StopReason != blocks.StopEndTurn {
		t.Fatalf("unexpected writer result: %+v", writer)
	}
	reviewer := decoded.Results["reviewer"]
	if reviewer.Status != NodeFailed || reviewer.Err == nil {
		t.Fatalf("expected reviewer failure to round-trip, got %+v", reviewer)
	}
	if reviewer.Err.Error() != "tool registry rejected reviewer's tool call" {
		t.Fatalf("unexpected error message after round trip: %v", reviewer.Err)
	}
}

func TestSerializeStateOmitsFailureReasonWhenEmpty(t *testing.T) {
	data, err := MultiAgentResult{Status: MultiAgentCompleted, Results: map[string]NodeResult{}}.SerializeState("swarm")
	if err != nil {
		t.Fatalf("SerializeState: %v", err)
	}
	if got := string(data); contains(got, "failure_reason") {
		t.Fatalf("expected no failure_reason field in %s", got)
	}
}

func TestDeserializeStateRejectsInvalidJSON(t *testing.T) {
	if _, _, err := DeserializeState([]byte("not json")); err == nil {
		t.Fatal("expected an error decoding invalid JSON")
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
