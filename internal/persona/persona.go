// Package persona defines the receptionist's behavior contract as data and
// renders it into the system prompt handed to the language model. The policy
// is enumerable (intents, required fields, hard constraints) so that changing
// the business rules never means editing free-form prose in two places.
package persona

import (
	"fmt"
	"strings"
)

// Intent names a caller request category the receptionist recognizes.
type Intent string

const (
	IntentNewBooking       Intent = "new_booking"
	IntentReschedule       Intent = "reschedule"
	IntentCancel           Intent = "cancel"
	IntentPricing          Intent = "pricing"
	IntentHoursLocation    Intent = "hours_location"
	IntentServices         Intent = "services"
	IntentExistingCustomer Intent = "existing_customer"
	IntentSpeakToHuman     Intent = "speak_to_human"
)

// Policy enumerates the behavioral rules for the receptionist. Rendered once
// per session; immutable afterwards.
type Policy struct {
	BusinessName  string
	BusinessKind  string
	Intents       []Intent
	BookingFields []string
	NeverCollect  []string
	Constraints   []string
	StyleRules    []string
}

// Default returns the shipped Paws & Suds policy.
func Default() Policy {
	return Policy{
		BusinessName: "Paws & Suds",
		BusinessKind: "dog grooming salon",
		Intents: []Intent{
			IntentNewBooking,
			IntentReschedule,
			IntentCancel,
			IntentPricing,
			IntentHoursLocation,
			IntentServices,
			IntentExistingCustomer,
			IntentSpeakToHuman,
		},
		BookingFields: []string{
			"pet name",
			"breed or type",
			"size",
			"requested service",
			"preferred time window",
			"owner name",
			"notes",
		},
		NeverCollect: []string{
			"caller phone number (already known from the call)",
		},
		Constraints: []string{
			"Never make up a price or an available time slot.",
			"Never promise a specific appointment time without a confirming tool result.",
			"Hand the call to a human whenever the caller asks for one or sounds urgent.",
		},
		StyleRules: []string{
			"Your replies are spoken aloud by a voice synthesizer.",
			"Keep every reply to one or two short sentences.",
			"Never use lists, bullet points or other written formatting.",
		},
	}
}

// Render produces the system prompt text from the policy.
func (p Policy) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are the phone receptionist for %s, a %s.\n\n", p.BusinessName, p.BusinessKind)

	b.WriteString("You handle these caller intents: ")
	intents := make([]string, len(p.Intents))
	for i, intent := range p.Intents {
		intents[i] = string(intent)
	}
	b.WriteString(strings.Join(intents, ", "))
	b.WriteString(".\n\n")

	b.WriteString("For a new booking or a reschedule, collect: ")
	b.WriteString(strings.Join(p.BookingFields, ", "))
	b.WriteString(".")
	if len(p.NeverCollect) > 0 {
		b.WriteString(" Do not ask for: ")
		b.WriteString(strings.Join(p.NeverCollect, ", "))
		b.WriteString(".")
	}
	b.WriteString("\n\n")

	b.WriteString("Rules you must never break:\n")
	for _, c := range p.Constraints {
		b.WriteString("- " + c + "\n")
	}
	b.WriteString("\n")

	b.WriteString("Speaking style:\n")
	for _, s := range p.StyleRules {
		b.WriteString("- " + s + "\n")
	}

	return b.String()
}

// Tool describes a callable the model may invoke. The shipped receptionist
// wires none; enforcement of tool-dependent promises is a model-side policy.
type Tool struct {
	Name        string
	Description string
	Handler     func(args map[string]any) (string, error)
}

// Definition couples the rendered instructions with the session's tool set.
type Definition struct {
	Instructions string
	Tools        []Tool
}

// NewDefinition renders the policy into a session-ready persona.
func NewDefinition(p Policy) Definition {
	return Definition{Instructions: p.Render()}
}
