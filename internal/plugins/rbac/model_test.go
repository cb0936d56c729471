package rbac

import "testing"

func TestParsePermission(t *testing.T) {
	p, err := ParsePermission("delete:book:own")
	if err != nil {
		t.Fatalf("parsing: %v", err)
	}
	if p.Action != ActionDelete || p.Entity != "book" || p.Access != AccessOwn {
		t.Fatalf("unexpected permission: %+v", p)
	}
	if p.String() != "delete:book:own" {
		t.Fatalf("round trip broke: %q", p.String())
	}
}

func TestParsePermissionRejectsMalformed(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"two parts", "read:book"},
		{"four parts", "read:book:own:extra"},
		{"unknown action", "audit:book:own"},
		{"unknown access", "read:book:all"},
		{"empty entity", "read::own"},
		{"uppercase action", "READ:book:own"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParsePermission(tc.input); err == nil {
				t.Fatalf("%q should not parse", tc.input)
			}
		})
	}
}

func TestSatisfies(t *testing.T) {
	cases := []struct {
		name      string
		granted   Permission
		requested Permission
		want      bool
	}{
		{
			"exact own match",
			Permission{ActionRead, "book", AccessOwn},
			Permission{ActionRead, "book", AccessOwn},
			true,
		},
		{
			"any covers own",
			Permission{ActionDelete, "book", AccessAny},
			Permission{ActionDelete, "book", AccessOwn},
			true,
		},
		{
			"own does not cover any",
			Permission{ActionDelete, "book", AccessOwn},
			Permission{ActionDelete, "book", AccessAny},
			false,
		},
		{
			"different action",
			Permission{ActionRead, "book", AccessAny},
			Permission{ActionDelete, "book", AccessOwn},
			false,
		},
		{
			"different entity",
			Permission{ActionRead, "note", AccessAny},
			Permission{ActionRead, "book", AccessOwn},
			false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.granted.Satisfies(tc.requested); got != tc.want {
				t.Fatalf("granted %s, requested %s: got %v, want %v",
					tc.granted, tc.requested, got, tc.want)
			}
		})
	}
}
