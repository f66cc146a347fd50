// Package components defines the per-individual data of the simulation:
// the epidemic Status variant and the ECS components that carry it.
package components

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies which Status variant is active.
type Kind uint8

const (
	KindSusceptible Kind = iota // never infected, not immune
	KindInfected                // infectious, carries a day count
	KindRecovered               // survived infection, immune
	KindVaccinated              // immune from the start of the run
	KindDead                    // terminal
)

// NumKinds is the number of Status variants.
const NumKinds = 5

var kindNames = [NumKinds]string{
	KindSusceptible: "Susceptible",
	KindInfected:    "Infected",
	KindRecovered:   "Recovered",
	KindVaccinated:  "Vaccinated",
	KindDead:        "Dead",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Status is one individual's epidemic condition for one day.
// Only the Infected variant carries a payload: the number of consecutive
// days infected, starting at 1 on the day of acquisition.
// The zero value is Susceptible.
type Status struct {
	kind Kind
	days uint32
}

// Susceptible returns the Susceptible status.
func Susceptible() Status { return Status{kind: KindSusceptible} }

// Infected returns Infected(days). Days below 1 are raised to 1.
func Infected(days uint32) Status {
	if days < 1 {
		days = 1
	}
	return Status{kind: KindInfected, days: days}
}

// Recovered returns the Recovered status.
func Recovered() Status { return Status{kind: KindRecovered} }

// Vaccinated returns the Vaccinated status.
func Vaccinated() Status { return Status{kind: KindVaccinated} }

// Dead returns the Dead status.
func Dead() Status { return Status{kind: KindDead} }

// Kind returns the active variant.
func (s Status) Kind() Kind { return s.kind }

// Days returns the infection day count. It is 0 for every non-Infected status.
func (s Status) Days() uint32 { return s.days }

// IsInfected reports whether s is Infected(_).
func (s Status) IsInfected() bool { return s.kind == KindInfected }

// IsAlive reports whether s is anything other than Dead.
func (s Status) IsAlive() bool { return s.kind != KindDead }

// String renders the status the way day snapshots print it,
// e.g. "Susceptible" or "Infected(3)".
func (s Status) String() string {
	if s.kind == KindInfected {
		return "Infected(" + strconv.FormatUint(uint64(s.days), 10) + ")"
	}
	return s.kind.String()
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if int(s.kind) >= NumKinds {
		return nil, fmt.Errorf("invalid status kind %d", s.kind)
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus parses the text form produced by Status.String.
func ParseStatus(text string) (Status, error) {
	text = strings.TrimSpace(text)
	switch text {
	case "Susceptible":
		return Susceptible(), nil
	case "Recovered":
		return Recovered(), nil
	case "Vaccinated":
		return Vaccinated(), nil
	case "Dead":
		return Dead(), nil
	}

	inner, ok := strings.CutPrefix(text, "Infected(")
	if ok {
		inner, ok = strings.CutSuffix(inner, ")")
	}
	if !ok {
		return Status{}, fmt.Errorf("unknown status %q", text)
	}
	days, err := strconv.ParseUint(inner, 10, 32)
	if err != nil || days < 1 {
		return Status{}, fmt.Errorf("invalid infection day count in %q", text)
	}
	return Infected(uint32(days)), nil
}
