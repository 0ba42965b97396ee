package prompt

import "testing"

func TestSelector(t *testing.T) {
	cases := map[QueryType]string{
		QueryTypeMemoryRecall:   "default",
		QueryTypePattern:        "analytical",
		QueryTypeRecommendation: "analytical",
		QueryTypeGeneral:        "conversational",
	}
	for qt, want := range cases {
		if got := Selector(qt); got != want {
			t.Errorf("Selector(%v) = %v, want %v", qt, got, want)
		}
	}
}

func TestLookup_KnownTemplate(t *testing.T) {
	tmpl := Lookup("analytical")
	if tmpl.Name != "analytical" {
		t.Errorf("Name = %v, want analytical", tmpl.Name)
	}
	if tmpl.System == "" || tmpl.Instruction == "" {
		t.Error("analytical template should have non-empty system and instruction blocks")
	}
}

func TestLookup_UnknownFallsBackToDefault(t *testing.T) {
	tmpl := Lookup("does-not-exist")
	if tmpl.Name != "default" {
		t.Errorf("Name = %v, want default", tmpl.Name)
	}
}

func TestAssemble_IncludesAllBlocks(t *testing.T) {
	tmpl := Lookup("default")
	out := Assemble(tmpl, "[Document 1] some context", "what did Ravi say?")
	if out == "" {
		t.Fatal("Assemble returned empty string")
	}
	if !contains(out, "some context") || !contains(out, "what did Ravi say?") {
		t.Error("Assemble should include both context and question")
	}
}

func TestAssemble_OmitsEmptyContextBlock(t *testing.T) {
	tmpl := NoContextTemplate()
	out := Assemble(tmpl, "", "anything?")
	if !contains(out, "anything?") {
		t.Error("Assemble should still include the question")
	}
	want := tmpl.System + "\n\n" + tmpl.Instruction + "\n\nQuestion: anything?"
	if out != want {
		t.Errorf("Assemble with empty context = %q, want %q", out, want)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
