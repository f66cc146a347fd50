package systems

import "github.com/pthm-cable/contagion/components"

// AcquireInfection applies one day's exposure to an individual.
//
// Only a Susceptible status can change. Each Infected encounter costs one
// draw and transmits when draw < tprob, so tprob 0 never infects and tprob 1
// infects on the first infectious contact. Other encounters are skipped
// without a draw. The first transmission ends the evaluation.
func AcquireInfection(status components.Status, encounters []components.Status, tprob float64, rng Source) components.Status {
	if status.Kind() != components.KindSusceptible {
		return status
	}

	for _, enc := range encounters {
		if !enc.IsInfected() {
			continue
		}
		if rng.Float64() < tprob {
			return components.Infected(1)
		}
	}
	return status
}

// ProgressOrDie advances an Infected status by one day.
//
// Non-Infected statuses pass through without a draw. For Infected(d) one
// draw below dprob kills; otherwise d >= recoveryThreshold recovers and
// anything else becomes Infected(d+1). Death is checked first.
func ProgressOrDie(status components.Status, dprob float64, recoveryThreshold uint32, rng Source) components.Status {
	if !status.IsInfected() {
		return status
	}

	if rng.Float64() < dprob {
		return components.Dead()
	}
	if status.Days() >= recoveryThreshold {
		return components.Recovered()
	}
	return components.Infected(status.Days() + 1)
}

// SurviveExposure evaluates a status infected earlier the same day. The day
// of exposure counts as day one of illness: it draws against dprob but is
// not aged.
func SurviveExposure(status components.Status, dprob float64, rng Source) components.Status {
	if !status.IsInfected() {
		return status
	}
	if rng.Float64() < dprob {
		return components.Dead()
	}
	return status
}

// SeedStatus applies the initialization draws to one Susceptible individual:
// a vaccination draw, then, if still Susceptible, an infection draw.
func SeedStatus(status components.Status, vprob, iprob float64, rng Source) components.Status {
	if status.Kind() != components.KindSusceptible {
		return status
	}
	if rng.Float64() < vprob {
		return components.Vaccinated()
	}
	if rng.Float64() < iprob {
		return components.Infected(1)
	}
	return status
}
