package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: an application, a sequence
// of steps against it and assertions over the resulting trace.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// App is the directory of the CUE application. LoadScenario resolves
	// it relative to the scenario file.
	App string `yaml:"app"`

	// Engine selects the matcher engine. Empty means the default engine.
	Engine string `yaml:"engine,omitempty"`

	// OnError is the runtime error policy, "fail" (default) or "drop".
	OnError string `yaml:"on_error,omitempty"`

	// ExpectSetupError is the error code binding the app must fail with.
	// When set, steps are not executed.
	ExpectSetupError string `yaml:"expect_setup_error,omitempty"`

	// Steps run in order against one runtime.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is exactly one of send, persist or restore.
type Step struct {
	// Send evaluates one event.
	Send *SendStep `yaml:"send,omitempty"`

	// Expect maps query names to the column values of their row (subset
	// match). A null entry expects the query to produce no row.
	Expect map[string]map[string]any `yaml:"expect,omitempty"`

	// ExpectError is the error code (or a message fragment) Send must
	// fail with.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Persist writes a revision.
	Persist bool `yaml:"persist,omitempty"`

	// Restore restores "last" or the revision with this id.
	Restore string `yaml:"restore,omitempty"`
}

// SendStep is one input event.
type SendStep struct {
	Stream string         `yaml:"stream"`
	Event  map[string]any `yaml:"event"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Query names the query (row_contains, row_count).
	Query string `yaml:"query,omitempty"`

	// Instance is the "query/column" key (final_state).
	Instance string `yaml:"instance,omitempty"`

	// Values are the expected column or snapshot values (row_contains,
	// final_state). Subset match.
	Values map[string]any `yaml:"values,omitempty"`

	// Count is the expected number (row_count, revision_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertRowContains   = "row_contains"
	AssertRowCount      = "row_count"
	AssertFinalState    = "final_state"
	AssertRevisionCount = "revision_count"
)

// RestoreLast selects the most recent revision in a restore step.
const RestoreLast = "last"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.App != "" && !filepath.IsAbs(scenario.App) {
		scenario.App = filepath.Join(filepath.Dir(path), scenario.App)
	}
	if _, err := os.Stat(scenario.App); err != nil {
		return nil, fmt.Errorf("invalid scenario: app directory: %w", err)
	}

	return scenario, nil
}

// ParseScenario parses scenario YAML. The app path is left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml and *.yml file in dir, sorted by file
// name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files found in %s", dir)
	}

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
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

	if s.App == "" {
		return fmt.Errorf("app is required")
	}

	switch s.OnError {
	case "", "fail", "drop":
	default:
		return fmt.Errorf("on_error must be fail or drop, got %q", s.OnError)
	}

	if s.ExpectSetupError == "" && len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks that a step does exactly one thing.
func validateStep(index int, step *Step) error {
	kinds := 0
	if step.Send != nil {
		kinds++
	}
	if step.Persist {
		kinds++
	}
	if step.Restore != "" {
		kinds++
	}
	if kinds != 1 {
		return fmt.Errorf("steps[%d]: exactly one of send, persist or restore is required", index)
	}

	if step.Send == nil {
		if step.Expect != nil || step.ExpectError != "" {
			return fmt.Errorf("steps[%d]: expect and expect_error only apply to send", index)
		}
		return nil
	}

	if step.Send.Stream == "" {
		return fmt.Errorf("steps[%d].send: stream is required", index)
	}
	if step.Send.Event == nil {
		return fmt.Errorf("steps[%d].send: event is required (use {} for an empty event)", index)
	}
	if step.Expect != nil && step.ExpectError != "" {
		return fmt.Errorf("steps[%d]: expect and expect_error are mutually exclusive", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertRowContains:
		if a.Query == "" || len(a.Values) == 0 {
			return fmt.Errorf("assertions[%d]: row_contains requires query and values", index)
		}
	case AssertRowCount:
		if a.Query == "" {
			return fmt.Errorf("assertions[%d]: row_count requires query", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertFinalState:
		if a.Instance == "" || len(a.Values) == 0 {
			return fmt.Errorf("assertions[%d]: final_state requires instance and values", index)
		}
	case AssertRevisionCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown type %q", index, a.Type)
	}
	return nil
}
