package command

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		input string
		ok    bool
		name  string
		args  int
		text  string
	}{
		{input: "hello", ok: false},
		{input: "  /JOIN abc123 ", ok: true, name: "join", args: 1, text: "abc123"},
		{input: "/new  My Room  python", ok: true, name: "create", args: 3, text: "My Room  python"},
		{input: "/edit\tx = 1", ok: true, name: "edit", args: 3, text: "x = 1"},
		{input: "/", ok: true, name: ""},
		{input: "/?", ok: true, name: "help"},
	}
	for _, tc := range cases {
		cmd, ok := Parse(tc.input)
		if ok != tc.ok {
			t.Fatalf("Parse(%q) ok=%v, want %v", tc.input, ok, tc.ok)
		}
		if !ok {
			continue
		}
		if cmd.Name != tc.name || len(cmd.Args) != tc.args || cmd.Text != tc.text {
			t.Fatalf("Parse(%q) = %+v", tc.input, cmd)
		}
	}
}

func TestCommandArgHelpers(t *testing.T) {
	cmd, _ := Parse(`/cursor 3 x`)
	if n, err := cmd.Int(0); err != nil || n != 3 {
		t.Fatalf("Int(0) = %d, %v", n, err)
	}
	if _, err := cmd.Int(1); err == nil {
		t.Fatalf("expected error for non-numeric argument")
	}
	if cmd.Arg(5) != "" {
		t.Fatalf("expected empty out-of-range argument")
	}
	edit, _ := Parse(`/edit a\n\tb`)
	if got := edit.Unescaped(); got != "a\n\tb" {
		t.Fatalf("Unescaped = %q", got)
	}
}
