package persona

import (
	"strings"
	"testing"
)

func TestDefaultPolicyRender(t *testing.T) {
	prompt := Default().Render()

	if !strings.Contains(prompt, "Paws & Suds") {
		t.Fatalf("prompt missing business name:\n%s", prompt)
	}

	for _, intent := range []string{
		"new_booking", "reschedule", "cancel", "pricing",
		"hours_location", "services", "existing_customer", "speak_to_human",
	} {
		if !strings.Contains(prompt, intent) {
			t.Fatalf("prompt missing intent %q:\n%s", intent, prompt)
		}
	}

	for _, field := range []string{
		"pet name", "breed or type", "size", "requested service",
		"preferred time window", "owner name", "notes",
	} {
		if !strings.Contains(prompt, field) {
			t.Fatalf("prompt missing booking field %q:\n%s", field, prompt)
		}
	}

	if !strings.Contains(prompt, "Do not ask for: caller phone number") {
		t.Fatalf("prompt missing phone-number exclusion:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Never make up a price") {
		t.Fatalf("prompt missing price constraint:\n%s", prompt)
	}
	if !strings.Contains(prompt, "confirming tool result") {
		t.Fatalf("prompt missing availability constraint:\n%s", prompt)
	}
	if !strings.Contains(prompt, "one or two short sentences") {
		t.Fatalf("prompt missing length style rule:\n%s", prompt)
	}
}

func TestNewDefinitionShipsNoTools(t *testing.T) {
	def := NewDefinition(Default())
	if len(def.Tools) != 0 {
		t.Fatalf("shipped persona has %d tools, want 0", len(def.Tools))
	}
	if strings.TrimSpace(def.Instructions) == "" {
		t.Fatalf("rendered instructions are empty")
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	p := Default()
	if p.Render() != p.Render() {
		t.Fatalf("Render() is not deterministic")
	}
}
