package pipeline

import (
	"github.com/sells-group/outreach-research/internal/model"
)

// PartitionSources splits sources into contiguous shards sized for a
// fixed worker pool. Shard size is ceil(len/concurrency), so the shard
// count never exceeds concurrency and only the final shard runs short.
func PartitionSources(sources []model.SearchResult, concurrency int) []model.WorkBatch {
	if len(sources) == 0 {
		return nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	size := (len(sources) + concurrency - 1) / concurrency

	var batches []model.WorkBatch
	for start := 0; start < len(sources); start += size {
		end := start + size
		if end > len(sources) {
			end = len(sources)
		}
		batches = append(batches, model.WorkBatch{
			Index:   len(batches),
			Sources: sources[start:end],
		})
	}
	return batches
}
