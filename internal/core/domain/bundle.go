package domain

import "sort"

// ConfigBundle is the set of key/value settings for one environment.
// It is read-only input to the pipeline.
type ConfigBundle struct {
	Environment string
	Path        string
	Values      map[string]string
}

// Has reports whether key is present. An empty value still counts.
func (b ConfigBundle) Has(key string) bool {
	_, ok := b.Values[key]
	return ok
}

// Keys returns the present keys in sorted order.
func (b ConfigBundle) Keys() []string {
	keys := make([]string, 0, len(b.Values))
	for k := range b.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
