// Package script defines the tagged operations the in-app responder can run
// against the open document.
//
// A script is a versioned list of operations drawn from a closed set of kinds.
// It travels to the GUI process as JSON under the context "script" key and the
// responder dispatches on each operation's kind. Nothing is evaluated.
package script

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/sketch-inspector/internal/errors"
)

// Version is the protocol version this package writes and accepts.
const Version = 1

// Kind is an operation tag.
type Kind string

const (
	// KindRename replaces Find with Replace in the names of layers matching Match.
	KindRename Kind = "rename"
	// KindRemoveSelection removes the currently selected layers.
	KindRemoveSelection Kind = "remove-selection"
	// KindRemove removes the layers named by IDs.
	KindRemove Kind = "remove"
	// KindSelect selects layers by IDs or by Match. The first replaces the
	// selection and the rest extend it.
	KindSelect Kind = "select"
	// KindSetName sets the name of the layers named by IDs.
	KindSetName Kind = "set-name"
)

// Kinds returns every supported kind.
func Kinds() []Kind {
	return []Kind{KindRename, KindRemoveSelection, KindRemove, KindSelect, KindSetName}
}

// Op is one tagged operation.
type Op struct {
	Kind    Kind     `json:"kind" yaml:"kind"`
	Match   string   `json:"match,omitempty" yaml:"match,omitempty"`
	Find    string   `json:"find,omitempty" yaml:"find,omitempty"`
	Replace string   `json:"replace,omitempty" yaml:"replace,omitempty"`
	IDs     []string `json:"ids,omitempty" yaml:"ids,omitempty"`
	Name    string   `json:"name,omitempty" yaml:"name,omitempty"`
}

// Script is an ordered list of operations.
type Script struct {
	Version int  `json:"version" yaml:"version"`
	Ops     []Op `json:"ops" yaml:"ops"`
}

// New returns a script of the current version.
func New(ops ...Op) *Script {
	return &Script{Version: Version, Ops: ops}
}

// Rename is shorthand for a rename operation over layers matching pattern.
func Rename(pattern, find, replace string) Op {
	return Op{Kind: KindRename, Match: pattern, Find: find, Replace: replace}
}

// RemoveSelection is shorthand for removing the current selection.
func RemoveSelection() Op {
	return Op{Kind: KindRemoveSelection}
}

// Validate checks every operation for a known kind and its operands.
func (s *Script) Validate() error {
	if s == nil {
		return invalid("script is empty")
	}
	if s.Version != Version {
		return invalid(fmt.Sprintf("unsupported version %d (want %d)", s.Version, Version))
	}
	if len(s.Ops) == 0 {
		return invalid("script has no operations")
	}
	for i, op := range s.Ops {
		if err := op.validate(); err != nil {
			return invalid(fmt.Sprintf("op %d (%s): %v", i, op.Kind, err))
		}
	}
	return nil
}

func (op Op) validate() error {
	switch op.Kind {
	case KindRename:
		if op.Find == "" {
			return fmt.Errorf("find is required")
		}
	case KindRemoveSelection:
	case KindRemove:
		if len(op.IDs) == 0 {
			return fmt.Errorf("ids are required")
		}
	case KindSelect:
		if len(op.IDs) == 0 && op.Match == "" {
			return fmt.Errorf("ids or match is required")
		}
	case KindSetName:
		if len(op.IDs) == 0 || op.Name == "" {
			return fmt.Errorf("ids and name are required")
		}
	default:
		return fmt.Errorf("unknown kind")
	}
	if op.Match != "" {
		if _, err := glob.Compile(op.Match); err != nil {
			return fmt.Errorf("bad match pattern %q: %w", op.Match, err)
		}
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", errors.ErrInvalidScript, msg)
}

// Encode validates the script and renders it for the context file.
func (s *Script) Encode() (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Decode parses and validates an encoded script.
func Decode(encoded string) (*Script, error) {
	dec := json.NewDecoder(strings.NewReader(encoded))
	dec.DisallowUnknownFields()
	var s Script
	if err := dec.Decode(&s); err != nil {
		return nil, invalid(err.Error())
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile reads a script from a YAML or JSON file.
func LoadFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewNotFoundError("script", path).WithCause(err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes data as JSON when ext is .json and as YAML otherwise.
func Parse(data []byte, ext string) (*Script, error) {
	var s Script
	if strings.EqualFold(ext, ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&s); err != nil {
			return nil, invalid(err.Error())
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&s); err != nil {
			return nil, invalid(err.Error())
		}
	}
	if s.Version == 0 {
		s.Version = Version
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
