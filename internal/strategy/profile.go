package strategy

// Profile tunes the threshold policy.
type Profile struct {
	Name string
	// StandThreshold is the score at which the policy stands.
	StandThreshold int
	// SideCardRate is the probability of using a side card when one helps.
	SideCardRate float64
	// OptimalPlayRate is the probability of avoiding a known mistake.
	OptimalPlayRate float64
}

var (
	Easy   = Profile{Name: "easy", StandThreshold: 15, SideCardRate: 0.35, OptimalPlayRate: 0.3}
	Medium = Profile{Name: "medium", StandThreshold: 17, SideCardRate: 0.65, OptimalPlayRate: 0.6}
	Hard   = Profile{Name: "hard", StandThreshold: 18, SideCardRate: 0.9, OptimalPlayRate: 0.9}
)

// Profiles lists the built-in presets.
func Profiles() []Profile {
	return []Profile{Easy, Medium, Hard}
}
