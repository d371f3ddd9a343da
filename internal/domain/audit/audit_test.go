package audit

import (
	"strings"
	"testing"
)

func TestBuildBaseQueryNumbersPlaceholders(t *testing.T) {
	query, args := buildBaseQuery("SELECT COUNT(1)", Filter{Action: "payroll.run", ActorUser: "u-1"})
	if len(args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(args))
	}
	if !strings.Contains(query, "action = $1") || !strings.Contains(query, "actor_user_id::text = $2") {
		t.Fatalf("unexpected query %q", query)
	}
}

func TestBuildBaseQueryNoFilter(t *testing.T) {
	query, args := buildBaseQuery("SELECT id", Filter{})
	if len(args) != 0 || strings.Contains(query, "$") {
		t.Fatalf("expected unfiltered query, got %q %v", query, args)
	}
}

func TestMarshalOptionalNil(t *testing.T) {
	out, err := marshalOptional(nil)
	if err != nil || out != nil {
		t.Fatalf("expected nil payload, got %s %v", out, err)
	}
}
