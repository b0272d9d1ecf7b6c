package api

import (
	"time"

	"storekit/internal/resource"
	"storekit/internal/store"
)

// Status describes the running daemon. It is held in its own typed store so
// the seed load can be tracked as a resource.
type Status struct {
	Started    time.Time                    `json:"started"`
	Mode       string                       `json:"mode"`
	ReadOnly   bool                         `json:"read_only"`
	Middleware []string                     `json:"middleware"`
	Rules      []string                     `json:"rules"`
	Seed       resource.Resource[store.Map] `json:"seed"`
}

// SeedLens points resource.Load at the seed field of a Status
var SeedLens = resource.Lens[Status, store.Map]{
	Get: func(s Status) resource.Resource[store.Map] { return s.Seed },
	Set: func(s Status, r resource.Resource[store.Map]) Status {
		s.Seed = r
		return s
	},
}
