package records

import "strings"

// The relevance check is heuristic and deliberately duplicative: three
// structural signals plus a textual fallback, so classification keeps working
// when the source schema drifts under any single field.
const (
	// CopilotRecordType is the audit record type code for Copilot
	// interaction events.
	CopilotRecordType = 261

	// CopilotOperation is the operation name of interaction events.
	CopilotOperation = "copilotinteraction"

	// CopilotWorkload is the workload name of Copilot events.
	CopilotWorkload = "copilot"
)

// fallbackSubstrings are searched case-insensitively in the serialized
// record when no structural signal matches.
var fallbackSubstrings = []string{
	"copilotinteraction",
	"copilot",
	`"recordtype":261`,
}

// Predicate is one independent relevance check. Predicates never panic:
// malformed fields count as a non-match and the chain falls through.
type Predicate struct {
	// Name labels the predicate in metrics and logs.
	Name string
	// Match reports whether the record is relevant per this check.
	Match func(Record) bool
}

// Predicates is the relevance policy, evaluated in priority order with
// short-circuit on first match.
var Predicates = []Predicate{
	{Name: "record_type", Match: MatchesRecordType},
	{Name: "operation", Match: MatchesOperation},
	{Name: "workload", Match: MatchesWorkload},
	{Name: "fallback", Match: MatchesFallback},
}

// MatchesRecordType reports whether the numeric type code equals the Copilot
// interaction record type.
func MatchesRecordType(r Record) bool {
	code, ok := r.numberField("RecordType")
	return ok && code == CopilotRecordType
}

// MatchesOperation reports whether the operation name equals the Copilot
// interaction operation, ignoring case.
func MatchesOperation(r Record) bool {
	return strings.EqualFold(r.stringField("Operation"), CopilotOperation)
}

// MatchesWorkload reports whether the workload name equals the Copilot
// workload, ignoring case.
func MatchesWorkload(r Record) bool {
	return strings.EqualFold(r.stringField("Workload"), CopilotWorkload)
}

// MatchesFallback searches the serialized record for any of the fixed
// substrings. This is the most permissive check and the last resort.
func MatchesFallback(r Record) bool {
	text := r.Serialized()
	if text == "" {
		return false
	}
	for _, sub := range fallbackSubstrings {
		if strings.Contains(text, sub) {
			return true
		}
	}
	return false
}

// Relevant reports whether the record belongs to the target event category
// and which predicate decided it. It never returns an error and never
// panics, whatever shape the record has.
func Relevant(r Record) (bool, string) {
	for _, p := range Predicates {
		if p.Match(r) {
			return true, p.Name
		}
	}
	return false, ""
}
