package anthropic

// BuildCachedSystemBlocks returns the shared instructions as a cached system
// block followed by uncached per-call text. Every draft in a batch reuses the
// same template, so the first block is written to the cache once and read on
// every later call within the TTL.
func BuildCachedSystemBlocks(shared, perCall string) []SystemBlock {
	var blocks []SystemBlock
	if shared != "" {
		blocks = append(blocks, SystemBlock{
			Text:         shared,
			CacheControl: &CacheControl{TTL: "1h"},
		})
	}
	if perCall != "" {
		blocks = append(blocks, SystemBlock{Text: perCall})
	}
	return blocks
}
