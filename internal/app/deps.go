package app

import (
	"time"

	"vexcel-xp-service/internal/domain"
)

// Deps wires the collaborators shared by the services. Events, Gate and Now
// are optional.
type Deps struct {
	Store    Store
	Content  ContentRepository
	Leveling domain.Leveling
	Events   *Hub
	Gate     *Gate
	Now      func() time.Time
}

func (d Deps) withDefaults() Deps {
	d.Leveling = domain.NewLeveling(d.Leveling.XPPerLevel)
	if d.Gate == nil {
		d.Gate = NewGate()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}
