// Package piece implements declarative, YAML-defined multi-step workflows:
// a Piece is a named graph of Movements, each handed to an agent in turn,
// with Rules routing to the next Movement based on what the agent produced.
// It is the one part of this system that lets an operator describe a
// custom workflow (plan -> implement -> review -> fix, and so on) without
// writing Go.
package piece

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Permission bounds what a Movement's agent is allowed to do while
// executing it.
type Permission string

const (
	PermissionReadonly Permission = "readonly"
	PermissionEdit     Permission = "edit"
	PermissionFull     Permission = "full"
)

// CompoundCondition aggregates conditions across the outputs of parallel
// sub-movements: All requires every output to match every sub-condition,
// Any requires at least one output to match at least one.
type CompoundCondition struct {
	All []string
	Any []string
}

// RuleCondition is one of: a bare string (matched against movement output
// by Judge's built-in vocabulary or literal substring), an
// ai("...") heuristic condition, or an all(...)/any(...) aggregate over
// parallel outputs. Exactly one field is populated.
type RuleCondition struct {
	Simple string
	AI     string
	Compound *CompoundCondition
}

// UnmarshalYAML accepts either a bare scalar ("success") or a mapping with
// an "ai", "all", or "any" key, mirroring the untagged enum the condition
// is modeled on.
func (c *RuleCondition) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		c.Simple = s
		return nil
	case yaml.MappingNode:
		var m map[string]yaml.Node
		if err := value.Decode(&m); err != nil {
			return err
		}
		if n, ok := m["ai"]; ok {
			var s string
			if err := n.Decode(&s); err != nil {
				return err
			}
			c.AI = s
			return nil
		}
		if n, ok := m["all"]; ok {
			var list []string
			if err := n.Decode(&list); err != nil {
				return err
			}
			c.Compound = &CompoundCondition{All: list}
			return nil
		}
		if n, ok := m["any"]; ok {
			var list []string
			if err := n.Decode(&list); err != nil {
				return err
			}
			c.Compound = &CompoundCondition{Any: list}
			return nil
		}
		return fmt.Errorf("piece: condition mapping must have an ai, all, or any key")
	default:
		return fmt.Errorf("piece: unsupported condition node kind %v", value.Kind)
	}
}

// MovementRule routes to Next when Condition matches the movement's
// output. Priority breaks ties when more than one simple condition could
// match; higher priorities are checked first.
type MovementRule struct {
	Condition RuleCondition `yaml:"condition"`
	Next      string        `yaml:"next"`
	Priority  int           `yaml:"priority"`
}

// OutputContract constrains what a Movement's output must look like.
// Nothing in this package checks an output against it; it is only the
// declarative shape loaded from YAML.
type OutputContract struct {
	Format          string   `yaml:"format"`
	RequiredSections []string `yaml:"required_sections"`
	OutputFile      string   `yaml:"output_file"`
	RequiredKeys    []string `yaml:"required_keys"`
	MinLength       int      `yaml:"min_length"`
	MaxLength       int      `yaml:"max_length"`
	MustMatch       []string `yaml:"must_match"`
	MustNotMatch    []string `yaml:"must_not_match"`
}

// Movement is one step of a Piece: the instruction handed to an agent,
// the persona/permission it runs under, and the rules that route to
// whatever comes next. A Movement with no Rules is terminal.
type Movement struct {
	ID             string         `yaml:"id"`
	Persona        string         `yaml:"persona"`
	Policy         string         `yaml:"policy"`
	Instruction    string         `yaml:"instruction"`
	Tools          []string       `yaml:"tools"`
	Permission     Permission     `yaml:"permission"`
	Rules          []MovementRule `yaml:"rules"`
	Parallel       bool           `yaml:"parallel"`
	SubMovements   []string       `yaml:"sub_movements"`
	OutputContract *OutputContract `yaml:"output_contract"`
	MaxRetries     int            `yaml:"max_retries"`
}

// Piece is a complete workflow definition: a named, validated graph of
// Movements starting at InitialMovement.
type Piece struct {
	Name            string     `yaml:"name"`
	Description     string     `yaml:"description"`
	MaxMovements    int        `yaml:"max_movements"`
	InitialMovement string     `yaml:"initial_movement"`
	Movements       []Movement `yaml:"movements"`
}

const defaultMaxMovements = 30

// FromYAML parses and validates a Piece document.
func FromYAML(data []byte) (*Piece, error) {
	var p Piece
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("piece: parsing yaml: %w", err)
	}
	if p.MaxMovements == 0 {
		p.MaxMovements = defaultMaxMovements
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that InitialMovement, every rule target, and every
// parallel sub-movement reference a real Movement, and that Movement IDs
// are unique.
func (p *Piece) Validate() error {
	if len(p.Movements) == 0 {
		return fmt.Errorf("piece %q: has no movements", p.Name)
	}
	if p.GetMovement(p.InitialMovement) == nil {
		return fmt.Errorf("piece %q: initial movement %q not found", p.Name, p.InitialMovement)
	}
	seen := make(map[string]bool, len(p.Movements))
	for _, m := range p.Movements {
		if seen[m.ID] {
			return fmt.Errorf("piece %q: duplicate movement id %q", p.Name, m.ID)
		}
		seen[m.ID] = true
	}
	for _, m := range p.Movements {
		for _, r := range m.Rules {
			if p.GetMovement(r.Next) == nil {
				return fmt.Errorf("piece %q: movement %q rule references unknown movement %q", p.Name, m.ID, r.Next)
			}
		}
		if m.Parallel {
			for _, sub := range m.SubMovements {
				if p.GetMovement(sub) == nil {
					return fmt.Errorf("piece %q: movement %q references unknown sub-movement %q", p.Name, m.ID, sub)
				}
			}
		}
	}
	return nil
}

// GetMovement looks up a Movement by ID.
func (p *Piece) GetMovement(id string) *Movement {
	for i := range p.Movements {
		if p.Movements[i].ID == id {
			return &p.Movements[i]
		}
	}
	return nil
}

// IsTerminal reports whether a movement has no outgoing rules.
func (p *Piece) IsTerminal(id string) bool {
	m := p.GetMovement(id)
	return m == nil || len(m.Rules) == 0
}

// Status is the lifecycle state of a running Piece.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
	StatusFailed    Status = "failed"
)

// Transition records one movement-to-movement hop taken during execution.
type Transition struct {
	From      string
	To        string
	Condition string
	At        time.Time
	Output    string
}

// State is the runtime state of one Piece execution.
type State struct {
	PieceName      string
	CurrentMovement string
	MovementCount  int
	History        []Transition
	Variables      map[string]string
	Status         Status
	StartedAt      time.Time
	CompletedAt    time.Time
}

// NewState builds the initial State for a Piece run.
func (p *Piece) NewState() *State {
	return &State{
		PieceName:       p.Name,
		CurrentMovement: p.InitialMovement,
		Variables:       make(map[string]string),
		Status:          StatusPending,
	}
}
