package access

import (
	"errors"
	"testing"
)

func TestGrantWriteCapabilityMatrix(t *testing.T) {
	cases := []struct {
		name     string
		role     Role
		canWrite bool
	}{
		{name: "owner writes", role: RoleOwner, canWrite: true},
		{name: "editor writes", role: RoleEditor, canWrite: true},
		{name: "no role is read-only", role: RoleNone, canWrite: false},
		{name: "unknown role is read-only", role: Role("spectator"), canWrite: false},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			capability := Grant(testCase.role)
			if capability.CanWrite() != testCase.canWrite {
				t.Fatalf("expected CanWrite=%v for role %q", testCase.canWrite, testCase.role)
			}
		})
	}
}

func TestParseRoleNormalizesInput(t *testing.T) {
	role, err := ParseRole("  Owner ")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if role != RoleOwner {
		t.Fatalf("expected owner role, got %q", role)
	}

	role, err = ParseRole("editor")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if role != RoleEditor {
		t.Fatalf("expected editor role, got %q", role)
	}
}

func TestParseRoleRejectsUnknownValues(t *testing.T) {
	if _, err := ParseRole("referee"); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected invalid role error, got %v", err)
	}
}

func TestZeroCapabilityIsReadOnly(t *testing.T) {
	var capability Capability
	if capability.CanWrite() {
		t.Fatalf("zero capability must not grant writes")
	}
}
