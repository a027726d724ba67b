package anthropic

import "github.com/shinmentakezo07/shinway-sub001/common/config"

// ephemeralCache marks a block as a prompt-cache breakpoint.
var ephemeralCache = &CacheControl{Type: "ephemeral"}

// applyCacheControl inserts cache_control breakpoints, walking text blocks in
// request order: system blocks first, then message content. A block gets a
// marker when its own text is long enough to be worth caching, approximated
// as minCacheableTokens times four characters per token, at most
// AnthropicMaxCachePoints markers total.
func applyCacheControl(req *Request, minCacheableTokens int) {
	if minCacheableTokens <= 0 {
		minCacheableTokens = config.DefaultMinCacheableTokens
	}
	threshold := minCacheableTokens * 4
	remaining := config.AnthropicMaxCachePoints

	markBlocks := func(blocks []Content) {
		for i := range blocks {
			if remaining == 0 {
				return
			}
			if blocks[i].Type != "text" || len(blocks[i].Text) < threshold {
				continue
			}
			blocks[i].CacheControl = ephemeralCache
			remaining--
		}
	}

	markBlocks(req.System)
	for i := range req.Messages {
		if remaining == 0 {
			return
		}
		markBlocks(req.Messages[i].Content)
	}
}
