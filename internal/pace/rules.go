package pace

import "fmt"

// RawRule is the config-document shape of a milestone rule. Fields are
// pointers so a profile can override a single field (e.g. just enabled) while
// inheriting the rest from defaults.
type RawRule struct {
	ThresholdSec *int  `json:"threshold_sec,omitempty"`
	Enabled      *bool `json:"enabled,omitempty"`
}

// Rule is a fully merged, evaluation-ready milestone rule. HasThreshold false
// means "no cutoff": the milestone never notifies on pace alone, only under a
// force override.
type Rule struct {
	ThresholdSec int
	HasThreshold bool
	Enabled      bool
}

// RuleSet is one streamer's authoritative milestone rules.
type RuleSet map[Milestone]Rule

// Warning flags an advisory configuration inconsistency. Warnings never block
// evaluation of the parts of the configuration that are valid.
type Warning struct {
	Streamer  string
	Milestone Milestone
	Msg       string
}

func (w Warning) String() string {
	s := w.Msg
	if w.Streamer != "" {
		s = fmt.Sprintf("profile %q: %s", w.Streamer, s)
	}
	return s
}

// mergeRule merges a default rule with a profile override field-by-field.
// Enabled defaults to true for any milestone that is configured at all.
func mergeRule(def, override *RawRule) Rule {
	r := Rule{Enabled: true}
	if def != nil {
		if def.ThresholdSec != nil {
			r.ThresholdSec = *def.ThresholdSec
			r.HasThreshold = true
		}
		if def.Enabled != nil {
			r.Enabled = *def.Enabled
		}
	}
	if override != nil {
		if override.ThresholdSec != nil {
			r.ThresholdSec = *override.ThresholdSec
			r.HasThreshold = true
		}
		if override.Enabled != nil {
			r.Enabled = *override.Enabled
		}
	}
	return r
}

// BuildRuleSets combines global default rules with per-streamer profile
// overrides into one rule set per configured streamer.
//
// The merged key space is the union of default keys and that streamer's
// profile keys, so a milestone appearing only in a profile is still evaluated.
// Profiles for streamers not in the configured list, and profile milestones
// absent from defaults, produce advisory warnings only.
func BuildRuleSets(streamers []string, defaults map[Milestone]RawRule, profiles map[string]map[Milestone]RawRule) (map[string]RuleSet, []Warning) {
	var warns []Warning

	configured := make(map[string]bool, len(streamers))
	for _, s := range streamers {
		configured[s] = true
	}
	for name := range profiles {
		if !configured[name] {
			warns = append(warns, Warning{Streamer: name, Msg: "streamer not in configured list"})
		}
	}

	out := make(map[string]RuleSet, len(streamers))
	for _, name := range streamers {
		profile := profiles[name]
		rs := make(RuleSet, len(defaults)+len(profile))
		for m, def := range defaults {
			def := def
			var ov *RawRule
			if o, ok := profile[m]; ok {
				o := o
				ov = &o
			}
			rs[m] = mergeRule(&def, ov)
		}
		for m, o := range profile {
			if _, ok := defaults[m]; ok {
				continue
			}
			o := o
			rs[m] = mergeRule(nil, &o)
			warns = append(warns, Warning{Streamer: name, Milestone: m, Msg: "milestone has no default rule"})
		}
		out[name] = rs
	}
	return out, warns
}
