package actuator

import (
	"fmt"
	"sort"
)

// registry maps controller names to mode instances, one instance per
// controller entry. Two controllers mapped to the same kind get distinct
// instances, so stopping one never matches the other's present mode.
// It is never modified after buildRegistry.
type registry struct {
	modes        []OperatingMode
	byController map[string]int
}

func buildRegistry(modeMap map[string]string, itemMap map[string]map[string]int, st *State, factory ModeFactory) (*registry, error) {
	controllers := make([]string, 0, len(modeMap))
	for ctrl := range modeMap {
		controllers = append(controllers, ctrl)
	}
	sort.Strings(controllers)

	r := &registry{byController: make(map[string]int, len(modeMap))}
	for _, ctrl := range controllers {
		kind := modeMap[ctrl]
		mode, err := factory(kind, st, itemMap[kind])
		if err != nil {
			return nil, fmt.Errorf("controller %q: %w", ctrl, err)
		}
		r.byController[ctrl] = len(r.modes)
		r.modes = append(r.modes, mode)
	}
	return r, nil
}

// lookup returns the mode index for a controller name.
func (r *registry) lookup(controller string) (int, bool) {
	idx, ok := r.byController[controller]
	return idx, ok
}

func (r *registry) mode(idx int) OperatingMode { return r.modes[idx] }

func (r *registry) controllers() []string {
	names := make([]string, 0, len(r.byController))
	for name := range r.byController {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
