package pace

import "strings"

// Milestone is a named progress checkpoint within a run.
//
// The tracked set below is what ships in default configs, but the type is
// open-ended on purpose: a milestone key we don't recognize still merges,
// resolves (snapshot-only) and evaluates like any other.
type Milestone string

const (
	MilestoneNether       Milestone = "nether"
	MilestoneBastion      Milestone = "bastion"
	MilestoneFortress     Milestone = "fortress"
	MilestoneFirstPortal  Milestone = "first_portal"
	MilestoneSecondPortal Milestone = "second_portal"
	MilestoneStronghold   Milestone = "stronghold"
	MilestoneEnd          Milestone = "end"
	MilestoneFinish       Milestone = "finish"
)

// Known returns the tracked milestones in run order.
func Known() []Milestone {
	return []Milestone{
		MilestoneNether,
		MilestoneBastion,
		MilestoneFortress,
		MilestoneFirstPortal,
		MilestoneSecondPortal,
		MilestoneStronghold,
		MilestoneEnd,
		MilestoneFinish,
	}
}

// liveEventIDs maps a milestone to its live-feed event identifier.
// Milestones without an entry have no live-feed fallback.
var liveEventIDs = map[Milestone]string{
	MilestoneNether:       "rsg.enter_nether",
	MilestoneBastion:      "rsg.enter_bastion",
	MilestoneFortress:     "rsg.enter_fortress",
	MilestoneFirstPortal:  "rsg.first_portal",
	MilestoneSecondPortal: "rsg.second_portal",
	MilestoneStronghold:   "rsg.enter_stronghold",
	MilestoneEnd:          "rsg.enter_end",
	MilestoneFinish:       "rsg.credits",
}

// LiveEventID returns the live-feed event identifier for a milestone.
func LiveEventID(m Milestone) (string, bool) {
	id, ok := liveEventIDs[m]
	return id, ok
}

// keyVariants lists the snapshot field names that may carry a milestone's
// split, per clock. Upstream mixes snake_case and camelCase, and real-time
// values live under an "Rta" suffix.
type keyVariants struct {
	igt []string
	rta []string
}

// splitKeysFor derives the probe order for a milestone. Keeping this
// declarative (instead of concatenating suffixes at each call site) keeps the
// upstream naming knowledge in one place.
func splitKeysFor(m Milestone) keyVariants {
	snake := string(m)
	camel := snakeToCamel(snake)
	kv := keyVariants{
		igt: []string{snake},
		rta: []string{snake + "_rta"},
	}
	if camel != snake {
		kv.igt = append(kv.igt, camel)
	}
	kv.rta = append(kv.rta, camel+"Rta")
	return kv
}

func snakeToCamel(s string) string {
	parts := strings.Split(s, "_")
	if len(parts) == 1 {
		return s
	}
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
