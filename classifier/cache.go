package classifier

import (
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// predictionCache memoises predicted labels per model generation. A nil
// cache is valid and never hits.
type predictionCache struct {
	entries *lru.Cache[string, int]
}

func newPredictionCache(size int) (*predictionCache, error) {
	if size <= 0 {
		return nil, nil
	}
	entries, err := lru.New[string, int](size)
	if err != nil {
		return nil, err
	}
	return &predictionCache{entries: entries}, nil
}

func cacheKey(generation uint64, vector []float64) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(generation, 10))
	for _, v := range vector {
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}

func (c *predictionCache) get(generation uint64, vector []float64) (int, bool) {
	if c == nil {
		return 0, false
	}
	return c.entries.Get(cacheKey(generation, vector))
}

func (c *predictionCache) add(generation uint64, vector []float64, label int) {
	if c == nil {
		return
	}
	c.entries.Add(cacheKey(generation, vector), label)
}

// purge drops entries of older generations.
func (c *predictionCache) purge() {
	if c == nil {
		return
	}
	c.entries.Purge()
}

func (c *predictionCache) len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
