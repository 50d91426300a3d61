package pipeline

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"

	"cloudforge/internal/evidence"
	"cloudforge/internal/synth"
)

// Fingerprint derives a stable cache key from an evidence set. Signal order
// does not matter; any change to a signal's content does.
func Fingerprint(signals []evidence.Signal) string {
	tuples := make([]string, 0, len(signals))
	for _, signal := range signals {
		tuples = append(tuples, signal.Source+"|"+signal.ServiceType+"|"+string(signal.Kind)+"|"+
			strconv.FormatFloat(signal.Strength, 'f', -1, 64))
	}
	sort.Strings(tuples)

	h := fnv.New64a()
	for _, tuple := range tuples {
		_, _ = h.Write([]byte(tuple))
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// outputsDigest keys the validation cache by what the validator actually
// inspects, so a schema degradation or a changed spec never reuses a stale
// verdict. Tag values are excluded: validation never reads them, and the
// generation timestamp tag changes every run.
func outputsDigest(outputs []synth.Output) string {
	tuples := make([]string, 0, len(outputs))
	for _, output := range outputs {
		spec := output.Spec
		parts := []string{
			spec.LogicalName, spec.Type, spec.Region, spec.SKU,
			output.Schema.Version, strconv.FormatBool(output.Schema.Degraded),
		}
		for _, name := range spec.PropertyNames() {
			parts = append(parts, name+"="+spec.Properties[name])
		}
		deps := make([]string, len(spec.DependsOn))
		copy(deps, spec.DependsOn)
		sort.Strings(deps)
		parts = append(parts, deps...)

		tagKeys := make([]string, 0, len(spec.Tags))
		for key := range spec.Tags {
			tagKeys = append(tagKeys, key)
		}
		sort.Strings(tagKeys)
		parts = append(parts, tagKeys...)

		tuples = append(tuples, strings.Join(parts, "|"))
	}
	sort.Strings(tuples)

	h := fnv.New64a()
	for _, tuple := range tuples {
		_, _ = h.Write([]byte(tuple))
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
