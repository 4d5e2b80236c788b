package egress

import "time"

// RelaySource supplies the relays that currently pass health checks, best
// first. The relay pool manager implements it.
type RelaySource interface {
	HealthyRelays() []Path
}

// HealthCheckedPool applies the time-keyed choice to the relays the source
// reports healthy at the moment of the request. With no healthy relay the
// request goes direct.
type HealthCheckedPool struct {
	source RelaySource
}

func NewHealthCheckedPool(source RelaySource) *HealthCheckedPool {
	return &HealthCheckedPool{source: source}
}

func (h *HealthCheckedPool) Select(now time.Time, _ string) Path {
	relays := h.source.HealthyRelays()
	if len(relays) == 0 {
		return Path{}
	}
	return relays[timeIndex(now, len(relays))]
}
