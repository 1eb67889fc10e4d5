package flight

import "fmt"

// Phase is the discrete flight phase of the vehicle. Phases are totally
// ordered; automatic transitions only ever advance to the next phase.
type Phase uint8

const (
	Ground Phase = iota
	Launch
	Coast
	Deploy
	Parachute
	Landed
)

var phaseNames = [...]string{
	Ground:    "GROUND",
	Launch:    "LAUNCH",
	Coast:     "COAST",
	Deploy:    "DEPLOY",
	Parachute: "PARACHUTE",
	Landed:    "LANDED",
}

// Valid reports whether p is one of the defined phases
func (p Phase) Valid() bool {
	return p <= Landed
}

func (p Phase) String() string {
	if !p.Valid() {
		return fmt.Sprintf("PHASE(%d)", uint8(p))
	}
	return phaseNames[p]
}

// PhaseFromOrdinal converts a wire ordinal into a Phase. Values outside of
// Ground..Landed are rejected.
func PhaseFromOrdinal(n int) (Phase, bool) {
	if n < int(Ground) || n > int(Landed) {
		return 0, false
	}
	return Phase(n), true
}
