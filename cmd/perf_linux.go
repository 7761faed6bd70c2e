//go:build linux

package cmd

import (
	perf "github.com/hodgesds/perf-utils"
	"github.com/rs/zerolog/log"
)

// countInstructions runs f under a hardware instruction counter. When the
// counter cannot be opened, for example without perf_event permissions, f
// still runs and the count is zero.
func countInstructions(f func() error) (instructions uint64, err error) {
	var (
		ran  bool
		ferr error
		pv   *perf.ProfileValue
	)
	pv, err = perf.CPUInstructions(func() error {
		ran = true
		ferr = f()
		return ferr
	})
	switch {
	case !ran:
		log.Warn().Err(err).Msg("perf counters unavailable")
		return 0, f()
	case ferr != nil:
		return 0, ferr
	case err != nil:
		log.Warn().Err(err).Msg("reading perf counters")
		return 0, nil
	}
	return pv.Value, nil
}
