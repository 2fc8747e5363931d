// Package character models story characters: a personality of traits, goals,
// and relationship sentiments, plus bindings to the shared memory bank and
// the generation oracle that let a character learn, recall, and speak.
package character

// Role classifies a character's narrative function.
type Role string

const (
	// RolePlayer marks the character the narration addresses directly.
	// A story holds at most one.
	RolePlayer Role = "player"

	// RoleNPC marks every other character.
	RoleNPC Role = "npc"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	return r == RolePlayer || r == RoleNPC
}

// Trait is a single personality trait with its intensity.
type Trait struct {
	// Name identifies the trait (e.g. "curious").
	Name string `json:"name"`

	// Intensity is how strongly the trait expresses, always in [0, 1].
	Intensity float64 `json:"intensity"`

	// Description is optional free-text flavour.
	Description string `json:"description,omitempty"`
}

// Goal is something a character is working toward.
type Goal struct {
	// Description is the goal text. Update deltas match goals by exact
	// equality on this field.
	Description string `json:"description"`

	// Priority weights the goal in [0, 1].
	Priority float64 `json:"priority"`

	// IsLongTerm distinguishes arc-spanning ambitions from scene goals.
	IsLongTerm bool `json:"is_long_term"`

	// Progress tracks completion in [0, 1]. Only explicit update deltas
	// move it.
	Progress float64 `json:"progress"`
}

// PersonalityModel is a character's full psychological state.
type PersonalityModel struct {
	// Traits maps trait name to trait. Keys are unique by construction.
	Traits map[string]Trait `json:"traits"`

	// Goals is the ordered list of the character's goals.
	Goals []Goal `json:"goals"`

	// Relationships maps another character's name to a sentiment in [-1, 1].
	Relationships map[string]float64 `json:"relationships"`

	// Role classifies the character as player or NPC.
	Role Role `json:"role"`

	// Archetype is optional free-text flavour (e.g. "gruff mentor").
	Archetype string `json:"archetype,omitempty"`

	// Background is optional free-text backstory.
	Background string `json:"background,omitempty"`
}

// normalise clamps every bounded field and fills nil maps so a model loaded
// from external data upholds the package invariants.
func (p *PersonalityModel) normalise() {
	if p.Traits == nil {
		p.Traits = map[string]Trait{}
	}
	if p.Relationships == nil {
		p.Relationships = map[string]float64{}
	}
	for name, tr := range p.Traits {
		tr.Intensity = clamp01(tr.Intensity)
		if tr.Name == "" {
			tr.Name = name
		}
		p.Traits[name] = tr
	}
	for i := range p.Goals {
		p.Goals[i].Priority = clamp01(p.Goals[i].Priority)
		p.Goals[i].Progress = clamp01(p.Goals[i].Progress)
	}
	for name, s := range p.Relationships {
		p.Relationships[name] = clampSentiment(s)
	}
	if p.Role == "" {
		p.Role = RoleNPC
	}
}

// clone returns a deep copy of the model.
func (p PersonalityModel) clone() PersonalityModel {
	out := p
	out.Traits = make(map[string]Trait, len(p.Traits))
	for k, v := range p.Traits {
		out.Traits[k] = v
	}
	out.Goals = append([]Goal(nil), p.Goals...)
	out.Relationships = make(map[string]float64, len(p.Relationships))
	for k, v := range p.Relationships {
		out.Relationships[k] = v
	}
	return out
}

// clamp01 clamps v to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// clampSentiment clamps v to [-1, 1].
func clampSentiment(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
