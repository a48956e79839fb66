package harness

import (
	"fmt"
	"strings"

	"github.com/thenativeweb/wolkenkit-flows/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes the sent commands to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Commands []ir.Command // Commands sent during the run
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Commands) > 0 {
		fmt.Fprintf(&buf, "\nCommands sent:\n")
		for i, cmd := range e.Commands {
			data, _ := ir.MarshalCanonical(cmd.Data)
			fmt.Fprintf(&buf, "  [%d] %s %s %s\n", i+1, cmd.FullName(), cmd.Aggregate.ID, data)
		}
	}

	return buf.String()
}

// assertCommandCount checks the number of sent commands, optionally
// restricted to one command name.
func assertCommandCount(result *Result, a Assertion) error {
	if a.Count == nil {
		return fmt.Errorf("command_count requires count")
	}

	count := 0
	for _, cmd := range result.Commands {
		if a.Command == "" || cmd.FullName() == a.Command {
			count++
		}
	}

	if count != *a.Count {
		what := "commands"
		if a.Command != "" {
			what = a.Command
		}
		return &AssertionError{
			Type:     AssertCommandCount,
			Expected: fmt.Sprintf("%d %s", *a.Count, what),
			Actual:   fmt.Sprintf("%d sent", count),
			Commands: result.Commands,
		}
	}
	return nil
}

// assertCommandContains checks that a matching command was sent.
// Data is a subset match.
func assertCommandContains(result *Result, a Assertion) error {
	expected, err := ir.ObjectFromGo(a.Data)
	if err != nil {
		return fmt.Errorf("command_contains data: %w", err)
	}

	for _, cmd := range result.Commands {
		if cmd.FullName() != a.Command {
			continue
		}
		if a.AggregateID != "" && cmd.Aggregate.ID != a.AggregateID {
			continue
		}
		if a.Initiator != "" && cmd.Initiator.ID != a.Initiator {
			continue
		}
		if matchSubset(cmd.Data, expected) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertCommandContains,
		Expected: describeCommand(a),
		Actual:   "not sent",
		Commands: result.Commands,
	}
}

func describeCommand(a Assertion) string {
	var buf strings.Builder
	buf.WriteString(a.Command)
	if a.AggregateID != "" {
		fmt.Fprintf(&buf, " for %s", a.AggregateID)
	}
	if a.Initiator != "" {
		fmt.Fprintf(&buf, " as %s", a.Initiator)
	}
	if len(a.Data) > 0 {
		fmt.Fprintf(&buf, " with data %v", a.Data)
	}
	return buf.String()
}

// assertSagaState checks the persisted state of a saga.
// Expect is a subset match.
func assertSagaState(result *Result, a Assertion) error {
	s, ok := result.Saga(a.Flow, a.Key)
	if !ok {
		return &AssertionError{
			Type:     AssertSagaState,
			Expected: fmt.Sprintf("saga %s/%s", a.Flow, a.Key),
			Actual:   "not persisted",
		}
	}

	if a.Revision != nil && s.Revision != *a.Revision {
		return &AssertionError{
			Type:     AssertSagaState,
			Expected: fmt.Sprintf("saga %s/%s at revision %d", a.Flow, a.Key, *a.Revision),
			Actual:   fmt.Sprintf("revision %d", s.Revision),
		}
	}

	expected, err := ir.ObjectFromGo(a.Expect)
	if err != nil {
		return fmt.Errorf("saga_state expect: %w", err)
	}
	if !matchSubset(s.State, expected) {
		actual, _ := ir.MarshalCanonical(s.State)
		return &AssertionError{
			Type:     AssertSagaState,
			Expected: fmt.Sprintf("saga %s/%s with state %v", a.Flow, a.Key, a.Expect),
			Actual:   string(actual),
		}
	}
	return nil
}

// assertEventOutcome checks how an event was settled.
func assertEventOutcome(result *Result, a Assertion) error {
	if got := result.Outcome(a.EventID); got != a.Outcome {
		if got == "" {
			got = "not settled"
		}
		return &AssertionError{
			Type:     AssertEventOutcome,
			Expected: fmt.Sprintf("event %s %s", a.EventID, a.Outcome),
			Actual:   got,
		}
	}
	return nil
}

// matchSubset reports whether every key of expected is in actual with an
// equal value. Nested objects are matched as subsets too.
func matchSubset(actual, expected ir.IRObject) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok {
			return false
		}
		wantObj, wantIsObj := want.(ir.IRObject)
		gotObj, gotIsObj := got.(ir.IRObject)
		if wantIsObj && gotIsObj {
			if !matchSubset(gotObj, wantObj) {
				return false
			}
			continue
		}
		if !ir.Equal(got, want) {
			return false
		}
	}
	return true
}

// EvaluateAssertions runs all assertions and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertCommandCount:
			err = assertCommandCount(result, a)
		case AssertCommandContains:
			err = assertCommandContains(result, a)
		case AssertSagaState:
			err = assertSagaState(result, a)
		case AssertEventOutcome:
			err = assertEventOutcome(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}

	return failures
}
