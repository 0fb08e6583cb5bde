package entities

// UngroupedLabel names the export sheet for snapshots without a group
const UngroupedLabel = "Sin Grupo"

// GroupMembership maps an operator group to the companies whose movements
// count toward it
type GroupMembership struct {
	Group     string   `json:"group"`
	Companies []string `json:"companies"`
}

// Clone returns a copy with its own company slice
func (g *GroupMembership) Clone() *GroupMembership {
	c := &GroupMembership{Group: g.Group, Companies: make([]string, len(g.Companies))}
	copy(c.Companies, g.Companies)
	return c
}
