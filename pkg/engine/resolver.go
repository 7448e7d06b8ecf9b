package engine

import (
	"context"
	"regexp"
	"strings"

	"github.com/fleetcore/engine/internal/metrics"
	"github.com/fleetcore/engine/pkg/ferrors"
)

// digitsPattern extracts the first run of digits from a TABLE ref, e.g.
// "Table 5" or "5" both yield "5".
var digitsPattern = regexp.MustCompile(`\d+`)

// Resolver maps a symbolic (kind, ref) planning target to a concrete
// POI, fuzzily tolerating POI renames so operator-facing references like
// "Table 5" keep working.
type Resolver struct {
	directory RobotDirectory
	mappings  PoiMappingStore
}

// NewResolver builds a Resolver over the given robot directory and
// explicit-mapping store.
func NewResolver(directory RobotDirectory, mappings PoiMappingStore) *Resolver {
	return &Resolver{directory: directory, mappings: mappings}
}

// Resolve returns the POI matching (kind, ref) for robotID, or nil if no
// tier matches. A nil, nil return is not an error — it means planning
// should fail with InvalidTask.
func (r *Resolver) Resolve(ctx context.Context, robotID, kind, ref string) (*POI, error) {
	kind = strings.ToUpper(strings.TrimSpace(kind))
	ref = strings.TrimSpace(ref)

	if poi, err := r.resolveExplicitMapping(ctx, robotID, kind, ref); err != nil {
		return nil, err
	} else if poi != nil {
		metrics.RecordResolverTier("mapping")
		return poi, nil
	}

	pois, err := r.directory.ListPOIs(ctx, robotID)
	if err != nil {
		return nil, ferrors.Internal("resolver.ListPOIs", err)
	}

	if poi := findByID(pois, ref); poi != nil {
		metrics.RecordResolverTier("direct_id")
		return poi, nil
	}

	if poi := resolveByName(kind, ref, pois); poi != nil {
		metrics.RecordResolverTier("name")
		return poi, nil
	}
	metrics.RecordResolverTier("unresolved")
	return nil, nil
}

// resolveExplicitMapping implements tier 1: a PoiMapping pins (kind, ref)
// to a poi_id. The robot's current area is checked first; if the mapped
// POI isn't there, every area is searched before falling through.
func (r *Resolver) resolveExplicitMapping(ctx context.Context, robotID, kind, ref string) (*POI, error) {
	mapping, err := r.mappings.GetMapping(ctx, kind, ref)
	if err != nil {
		return nil, ferrors.Internal("resolver.GetMapping", err)
	}
	if mapping == nil {
		return nil, nil
	}

	areaID, err := r.directory.CurrentAreaID(ctx, robotID)
	if err != nil {
		return nil, ferrors.Internal("resolver.CurrentAreaID", err)
	}

	pois, err := r.directory.ListPOIs(ctx, robotID)
	if err != nil {
		return nil, ferrors.Internal("resolver.ListPOIs", err)
	}

	if areaID != "" {
		for i := range pois {
			if pois[i].ID == mapping.PoiID && pois[i].AreaID == areaID {
				return &pois[i], nil
			}
		}
	}
	for i := range pois {
		if pois[i].ID == mapping.PoiID {
			return &pois[i], nil
		}
	}
	return nil, nil
}

func findByID(pois []POI, ref string) *POI {
	if ref == "" {
		return nil
	}
	for i := range pois {
		if pois[i].ID == ref {
			return &pois[i]
		}
	}
	return nil
}

// resolveByName implements tier 3, the per-kind name-based fallback.
func resolveByName(kind, ref string, pois []POI) *POI {
	switch kind {
	case "TABLE":
		return resolveTable(ref, pois)
	case "KITCHEN":
		return findNameContains(pois, "kitchen")
	case "OPERATOR":
		return findNameContains(pois, "operator")
	case "WASHING":
		if poi := findNameContainsAny(pois, "wash", "dish", "sink"); poi != nil {
			return poi
		}
		return findNameContains(pois, "kitchen")
	case "CHARGING":
		return findNameContainsAny(pois, "charg", "dock", "pile")
	default:
		normRef := normalizeName(ref)
		if normRef == "" {
			return nil
		}
		return findNameContains(pois, normRef)
	}
}

func resolveTable(ref string, pois []POI) *POI {
	digits := digitsPattern.FindString(ref)
	if digits == "" {
		return nil
	}
	for i := range pois {
		name := normalizeName(pois[i].Name)
		if (strings.Contains(name, "table") || strings.Contains(name, "tbl")) && strings.Contains(name, digits) {
			return &pois[i]
		}
	}
	for i := range pois {
		if strings.Contains(normalizeName(pois[i].Name), digits) {
			return &pois[i]
		}
	}
	return nil
}

func findNameContains(pois []POI, substr string) *POI {
	for i := range pois {
		if strings.Contains(normalizeName(pois[i].Name), substr) {
			return &pois[i]
		}
	}
	return nil
}

func findNameContainsAny(pois []POI, substrs ...string) *POI {
	for i := range pois {
		name := normalizeName(pois[i].Name)
		for _, s := range substrs {
			if strings.Contains(name, s) {
				return &pois[i]
			}
		}
	}
	return nil
}

// whitespaceRun collapses runs of whitespace during name normalization.
var whitespaceRun = regexp.MustCompile(`\s+`)

func normalizeName(name string) string {
	collapsed := whitespaceRun.ReplaceAllString(strings.TrimSpace(name), " ")
	return strings.ToLower(collapsed)
}
