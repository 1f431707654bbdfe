package domain

import (
	"fmt"
	"strings"
)

// Stage is one node of the fixed six step pipeline.
type Stage int

const (
	StageModel Stage = iota
	StageData
	StageAnalyzing
	StageFiltering
	StageGenerating
	StageReview
)

var stageNames = [...]string{"model", "data", "analyzing", "filtering", "generating", "review"}

// Stages lists every stage in pipeline order.
func Stages() []Stage {
	return []Stage{StageModel, StageData, StageAnalyzing, StageFiltering, StageGenerating, StageReview}
}

func (s Stage) Valid() bool {
	return s >= StageModel && s <= StageReview
}

func (s Stage) String() string {
	if !s.Valid() {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// ParseStage accepts the stage name; "searching" is an alias for filtering.
func ParseStage(name string) (Stage, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "searching" {
		return StageFiltering, nil
	}
	for i, sn := range stageNames {
		if sn == n {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown stage %q", ErrInvalidArgs, name)
}

// Next returns the following stage; review has none.
func (s Stage) Next() (Stage, bool) {
	if s >= StageReview || !s.Valid() {
		return s, false
	}
	return s + 1, true
}

// Prerequisites are the stages that must be completed before s can be entered.
func (s Stage) Prerequisites() []Stage {
	if !s.Valid() {
		return nil
	}
	out := make([]Stage, 0, int(s))
	for p := StageModel; p < s; p++ {
		out = append(out, p)
	}
	return out
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(b []byte) error {
	parsed, err := ParseStage(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// StageSet is a set of completed stages. The zero value is empty.
type StageSet uint8

func (ss StageSet) Has(s Stage) bool {
	return s.Valid() && ss&(1<<uint(s)) != 0
}

// With returns the set with s added. Sets only grow.
func (ss StageSet) With(s Stage) StageSet {
	if !s.Valid() {
		return ss
	}
	return ss | 1<<uint(s)
}

// Covers reports whether every prerequisite of s is in the set.
func (ss StageSet) Covers(s Stage) bool {
	for _, p := range s.Prerequisites() {
		if !ss.Has(p) {
			return false
		}
	}
	return s.Valid()
}

// List returns the members in pipeline order.
func (ss StageSet) List() []Stage {
	out := make([]Stage, 0, len(stageNames))
	for _, s := range Stages() {
		if ss.Has(s) {
			out = append(out, s)
		}
	}
	return out
}

func (ss StageSet) MarshalJSON() ([]byte, error) {
	names := make([]string, 0, len(stageNames))
	for _, s := range ss.List() {
		names = append(names, `"`+s.String()+`"`)
	}
	return []byte("[" + strings.Join(names, ",") + "]"), nil
}
