package scout

import (
	"fmt"
	"sort"

	"github.com/isocrates/isocrates/internal/types"
)

// bucketModules groups modules into scout buckets via locality-aware
// bin-packing (spec.md §4.4): prefer the bucket that already holds a module
// from the same parent directory unless that bucket is already more than
// 2x the current average bucket size; otherwise place into the
// smallest bucket. Bucket count = min(module_count, 3 * parallelLimit),
// floor 4. Returns bucket key ("b0", "b1", ...) -> module names.
func bucketModules(analysis *types.Analysis, parallelLimit int) map[string][]string {
	if parallelLimit <= 0 {
		parallelLimit = 4
	}
	names := make([]string, 0, len(analysis.Modules))
	for name := range analysis.Modules {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ti, tj := analysis.Modules[names[i]].TokenEstimate, analysis.Modules[names[j]].TokenEstimate
		if ti != tj {
			return ti > tj
		}
		return names[i] < names[j]
	})

	bucketCount := len(names)
	if max := 3 * parallelLimit; max < bucketCount {
		bucketCount = max
	}
	if bucketCount < 4 {
		bucketCount = 4
	}
	if bucketCount > len(names) {
		bucketCount = len(names)
	}
	if bucketCount == 0 {
		return map[string][]string{}
	}

	buckets := make([][]string, bucketCount)
	bucketDirs := make([]map[string]bool, bucketCount)
	for i := range bucketDirs {
		bucketDirs[i] = make(map[string]bool)
	}

	for _, name := range names {
		dir := analysis.Modules[name].TopDir
		total := 0
		for _, b := range buckets {
			total += len(b)
		}
		avg := float64(total) / float64(bucketCount)

		chosen := -1
		for i, dirs := range bucketDirs {
			if dirs[dir] && float64(len(buckets[i])) <= 2*avg {
				chosen = i
				break
			}
		}
		if chosen == -1 {
			chosen = 0
			for i := 1; i < bucketCount; i++ {
				if len(buckets[i]) < len(buckets[chosen]) {
					chosen = i
				}
			}
		}
		buckets[chosen] = append(buckets[chosen], name)
		bucketDirs[chosen][dir] = true
	}

	result := make(map[string][]string, bucketCount)
	for i, b := range buckets {
		if len(b) == 0 {
			continue
		}
		sort.Strings(b)
		result[bucketKey(i)] = b
	}
	return result
}

func bucketKey(i int) string {
	return fmt.Sprintf("b%d", i)
}
