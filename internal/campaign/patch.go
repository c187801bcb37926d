package campaign

import (
	"bytes"
	"encoding/json"
)

// NullableString distinguishes an omitted JSON field from an explicit null.
// Set is true whenever the key was present; Value is nil for null.
type NullableString struct {
	Set   bool
	Value *string
}

// UnmarshalJSON is only invoked for keys present in the document.
func (n *NullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(data, []byte("null")) {
		n.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n.Value = &s
	return nil
}

// MarshalJSON writes the value or null.
func (n NullableString) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.Value)
}

// SetString returns a NullableString that sets the field to s.
func SetString(s string) NullableString {
	return NullableString{Set: true, Value: &s}
}

// SetNull returns a NullableString that clears the field.
func SetNull() NullableString {
	return NullableString{Set: true}
}

// CampaignPatch lists the campaign fields an update may change.
type CampaignPatch struct {
	Name              *string        `json:"name" validate:"omitnil,min=1"`
	Description       *string        `json:"description"`
	SpotifyPlaylistID NullableString `json:"spotifyPlaylistId"`
}

// NodePatch lists the node fields an update may change. An EncounterID set
// to null unlinks the encounter.
type NodePatch struct {
	Type        *NodeType      `json:"type" validate:"omitnil,oneof=start encounter decision end"`
	Label       *string        `json:"label" validate:"omitnil,min=1"`
	Description *string        `json:"description"`
	PositionX   *float64       `json:"positionX"`
	PositionY   *float64       `json:"positionY"`
	EncounterID NullableString `json:"encounterId"`
}

// EdgePatch lists the edge fields an update may change.
type EdgePatch struct {
	Label NullableString `json:"label"`
}

// EncounterPatch lists the encounter fields an update may change.
type EncounterPatch struct {
	Name            *string        `json:"name" validate:"omitnil,min=1"`
	StoryText       *string        `json:"storyText"`
	DMNotes         *string        `json:"dmNotes"`
	SpotifyTrackURI NullableString `json:"spotifyTrackUri"`
}

// EnemyPatch lists the enemy fields an update may change.
type EnemyPatch struct {
	Name       *string        `json:"name" validate:"omitnil,min=1"`
	HitPoints  *int           `json:"hitPoints" validate:"omitnil,min=0"`
	ArmorClass *int           `json:"armorClass" validate:"omitnil,min=0"`
	Challenge  *string        `json:"challenge" validate:"omitnil,min=1"`
	Abilities  *string        `json:"abilities"`
	ImageURL   NullableString `json:"imageUrl"`
}

// LootPatch lists the loot fields an update may change.
type LootPatch struct {
	Name        *string `json:"name" validate:"omitnil,min=1"`
	Description *string `json:"description"`
	Quantity    *int    `json:"quantity" validate:"omitnil,min=1"`
	Rarity      *Rarity `json:"rarity" validate:"omitnil,oneof=common uncommon rare very_rare legendary"`
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func applyNullable(dst **string, src NullableString) {
	if !src.Set {
		return
	}
	if src.Value == nil {
		*dst = nil
		return
	}
	v := *src.Value
	*dst = &v
}

// Apply merges p into c.
func (p CampaignPatch) Apply(c *Campaign) {
	applyString(&c.Name, p.Name)
	applyString(&c.Description, p.Description)
	applyNullable(&c.SpotifyPlaylistID, p.SpotifyPlaylistID)
}

// Apply merges p into n.
func (p NodePatch) Apply(n *FlowNode) {
	if p.Type != nil {
		n.Type = *p.Type
	}
	applyString(&n.Label, p.Label)
	applyString(&n.Description, p.Description)
	if p.PositionX != nil {
		n.PositionX = *p.PositionX
	}
	if p.PositionY != nil {
		n.PositionY = *p.PositionY
	}
	applyNullable(&n.EncounterID, p.EncounterID)
}

// Apply merges p into e.
func (p EdgePatch) Apply(e *FlowEdge) {
	applyNullable(&e.Label, p.Label)
}

// Apply merges p into e.
func (p EncounterPatch) Apply(e *Encounter) {
	applyString(&e.Name, p.Name)
	applyString(&e.StoryText, p.StoryText)
	applyString(&e.DMNotes, p.DMNotes)
	applyNullable(&e.SpotifyTrackURI, p.SpotifyTrackURI)
}

// Apply merges p into e.
func (p EnemyPatch) Apply(e *Enemy) {
	applyString(&e.Name, p.Name)
	if p.HitPoints != nil {
		e.HitPoints = *p.HitPoints
	}
	if p.ArmorClass != nil {
		e.ArmorClass = *p.ArmorClass
	}
	applyString(&e.Challenge, p.Challenge)
	applyString(&e.Abilities, p.Abilities)
	applyNullable(&e.ImageURL, p.ImageURL)
}

// Apply merges p into l.
func (p LootPatch) Apply(l *Loot) {
	applyString(&l.Name, p.Name)
	applyString(&l.Description, p.Description)
	if p.Quantity != nil {
		l.Quantity = *p.Quantity
	}
	if p.Rarity != nil {
		l.Rarity = *p.Rarity
	}
}
