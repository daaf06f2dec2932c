package layout

import "cirgen/internal/types"

type cache struct {
	byRecord map[*types.RecordDecl]*RecordLayout
}

func newCache() *cache {
	return &cache{byRecord: make(map[*types.RecordDecl]*RecordLayout, 64)}
}

func (c *cache) get(rd *types.RecordDecl) (*RecordLayout, bool) {
	if c == nil {
		return nil, false
	}
	rl, ok := c.byRecord[rd]
	return rl, ok
}

func (c *cache) put(rd *types.RecordDecl, rl *RecordLayout) {
	if c == nil {
		return
	}
	c.byRecord[rd] = rl
}
