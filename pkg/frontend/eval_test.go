package frontend

import "testing"

func TestEvalExpr(t *testing.T) {
	defines := map[string]string{
		"ONE":     "1",
		"ZERO":    "0",
		"LEVEL":   "3",
		"ALIAS":   "LEVEL",
		"EMPTY":   "",
		"FNLIKE":  "\x00fn",
		"VERSION": "199711L",
		"BIG":     "0x10",
	}

	tests := []struct {
		expr string
		want int64
	}{
		{"1", 1},
		{"0", 0},
		{"42", 42},
		{"0x1F", 31},
		{"010", 8},
		{"1'000'000", 1000000},
		{"199711L", 199711},
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"10 / 3", 3},
		{"10 % 3", 1},
		{"1 << 4", 16},
		{"256 >> 4", 16},
		{"5 & 3", 1},
		{"5 | 2", 7},
		{"5 ^ 1", 4},
		{"~0 & 1", 1},
		{"-1 < 0", 1},
		{"!0", 1},
		{"!5", 0},
		{"1 && 0", 0},
		{"1 || 0", 1},
		{"3 == 3", 1},
		{"3 != 3", 0},
		{"2 <= 2", 1},
		{"2 >= 3", 0},
		{"1 ? 10 : 20", 10},
		{"0 ? 10 : 20", 20},
		{"defined(ONE)", 1},
		{"defined ONE", 1},
		{"defined(MISSING)", 0},
		{"defined(ONE) && ONE", 1},
		{"ONE", 1},
		{"ZERO", 0},
		{"LEVEL >= 2", 1},
		{"ALIAS", 3},
		{"MISSING", 0},
		{"VERSION >= 199711", 1},
		{"BIG == 16", 1},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := evalExpr(tt.expr, defines, 0)
			if err != nil {
				t.Fatalf("evalExpr(%q) error: %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("evalExpr(%q) = %d, want %d", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvalExprErrors(t *testing.T) {
	defines := map[string]string{
		"EMPTY":  "",
		"FNLIKE": "\x00fn",
		"SELF":   "SELF",
	}

	exprs := []string{
		"",
		"1 +",
		"(1",
		"1 ? 2",
		"1 / 0",
		"1 % 0",
		"1 << 64",
		"EMPTY",
		"FNLIKE",
		"FNLIKE(1)",
		"SELF",
		"has_include(<vector>)",
	}
	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			if _, err := evalExpr(expr, defines, 0); err == nil {
				t.Errorf("evalExpr(%q) expected error", expr)
			}
		})
	}
}

func TestEvalConditionConservative(t *testing.T) {
	c := &collector{defines: map[string]string{}}
	// Unevaluable conditions keep the clause active.
	if !c.evalCondition("UNKNOWN_FN(x)") {
		t.Error("unevaluable condition should stay active")
	}
	if c.evalCondition("0") {
		t.Error("a plainly false condition should be inactive")
	}
	if !c.evalCondition("1") {
		t.Error("a plainly true condition should be active")
	}
}
