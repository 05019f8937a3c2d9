package job

import (
	"encoding/json"
	"maps"
	"slices"
)

func jsonList(items []string) string {
	data, _ := json.Marshal(items)
	return string(data)
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
