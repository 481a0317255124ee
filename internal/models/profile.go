package models

// Profile is the per-identity record kept in the Slot Store. ID is immutable
// once set. Slots carries every captured field the bot does not model
// explicitly, so a read-modify-write of one field preserves the rest.
type Profile struct {
	ID    Identity          `json:"id"`
	Name  string            `json:"name,omitempty"`
	Slots map[string]string `json:"slots,omitempty"`
}

// Clone returns a deep copy, so stores can hand out profiles without
// sharing the Slots map with callers.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	out := &Profile{ID: p.ID, Name: p.Name}
	if p.Slots != nil {
		out.Slots = make(map[string]string, len(p.Slots))
		for k, v := range p.Slots {
			out.Slots[k] = v
		}
	}
	return out
}

// SetSlot writes a named slot, allocating the map on first use.
func (p *Profile) SetSlot(key, value string) {
	if p.Slots == nil {
		p.Slots = make(map[string]string)
	}
	p.Slots[key] = value
}
