package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is a sequence of domain events and the expected effects of
// running them through the flows.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Flows restricts the run to the named flows. Empty means all flows of
	// the application.
	Flows []string `yaml:"flows,omitempty"`

	// Events are published in order.
	Events []EventStep `yaml:"events"`

	// Assertions validate the run.
	Assertions []Assertion `yaml:"assertions"`
}

// EventStep is one domain event to publish.
type EventStep struct {
	// ID is the event id. It must be unique within the scenario.
	ID string `yaml:"id"`

	// Event is the fully qualified name "context.aggregate.name".
	Event string `yaml:"event"`

	// AggregateID is the id of the aggregate that published the event.
	AggregateID string `yaml:"aggregate_id"`

	// Data is the event payload.
	Data map[string]any `yaml:"data,omitempty"`

	// CorrelationID defaults to ID.
	CorrelationID string `yaml:"correlation_id,omitempty"`

	// Initiator defaults to "jane.doe".
	Initiator string `yaml:"initiator,omitempty"`
}

// Assertion types.
const (
	AssertCommandCount    = "command_count"
	AssertCommandContains = "command_contains"
	AssertSagaState       = "saga_state"
	AssertEventOutcome    = "event_outcome"
)

// Event outcomes.
const (
	OutcomeHandled   = "handled"
	OutcomeDiscarded = "discarded"
)

// Assertion validates commands, saga state or event outcomes.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Count is the expected number of commands (command_count).
	Count *int `yaml:"count,omitempty"`

	// Command is a fully qualified command name (command_count,
	// command_contains).
	Command string `yaml:"command,omitempty"`

	// AggregateID is the expected target aggregate (command_contains).
	AggregateID string `yaml:"aggregate_id,omitempty"`

	// Initiator is the expected initiator (command_contains).
	Initiator string `yaml:"initiator,omitempty"`

	// Data is matched as a subset of the command data (command_contains).
	Data map[string]any `yaml:"data,omitempty"`

	// Flow and Key identify a saga (saga_state).
	Flow string `yaml:"flow,omitempty"`
	Key  string `yaml:"key,omitempty"`

	// Expect is matched as a subset of the saga state (saga_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Revision is the expected saga revision (saga_state).
	Revision *int64 `yaml:"revision,omitempty"`

	// EventID and Outcome check how an event was settled (event_outcome).
	EventID string `yaml:"event_id,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`
}

// LoadScenario reads and validates a scenario YAML file.
// Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // catches typos like "assertion:"
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Events))
	for i, step := range s.Events {
		if step.ID == "" {
			return fmt.Errorf("events[%d]: id is required", i)
		}
		if seen[step.ID] {
			return fmt.Errorf("events[%d]: duplicate id %q", i, step.ID)
		}
		seen[step.ID] = true
		if strings.Count(step.Event, ".") != 2 {
			return fmt.Errorf("events[%d]: event %q must be context.aggregate.name", i, step.Event)
		}
		if step.AggregateID == "" {
			return fmt.Errorf("events[%d]: aggregate_id is required", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], seen); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, eventIDs map[string]bool) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertCommandCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for command_count", index)
		}
	case AssertCommandContains:
		if a.Command == "" {
			return fmt.Errorf("assertions[%d]: command is required for command_contains", index)
		}
	case AssertSagaState:
		if a.Flow == "" || a.Key == "" {
			return fmt.Errorf("assertions[%d]: flow and key are required for saga_state", index)
		}
		if len(a.Expect) == 0 && a.Revision == nil {
			return fmt.Errorf("assertions[%d]: expect or revision is required for saga_state", index)
		}
	case AssertEventOutcome:
		if !eventIDs[a.EventID] {
			return fmt.Errorf("assertions[%d]: unknown event_id %q", index, a.EventID)
		}
		if a.Outcome != OutcomeHandled && a.Outcome != OutcomeDiscarded {
			return fmt.Errorf("assertions[%d]: outcome must be %q or %q", index, OutcomeHandled, OutcomeDiscarded)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
