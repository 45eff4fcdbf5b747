package ranges_test

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/nebula-sync/pkg/ranges"
)

func TestSet_InsertMerges(t *testing.T) {
	tests := []struct {
		name   string
		insert []ranges.Range
		want   []ranges.Range
	}{
		{
			name:   "disjoint",
			insert: []ranges.Range{ranges.New(10, 20), ranges.New(0, 5)},
			want:   []ranges.Range{ranges.New(0, 5), ranges.New(10, 20)},
		},
		{
			name:   "adjacent",
			insert: []ranges.Range{ranges.New(0, 5), ranges.New(5, 10)},
			want:   []ranges.Range{ranges.New(0, 10)},
		},
		{
			name:   "overlapping",
			insert: []ranges.Range{ranges.New(0, 6), ranges.New(4, 10)},
			want:   []ranges.Range{ranges.New(0, 10)},
		},
		{
			name:   "bridges several",
			insert: []ranges.Range{ranges.New(0, 2), ranges.New(4, 6), ranges.New(8, 10), ranges.New(1, 9)},
			want:   []ranges.Range{ranges.New(0, 10)},
		},
		{
			name:   "contained",
			insert: []ranges.Range{ranges.New(0, 10), ranges.New(3, 4)},
			want:   []ranges.Range{ranges.New(0, 10)},
		},
		{
			name:   "same start",
			insert: []ranges.Range{ranges.New(3, 4), ranges.New(3, 8)},
			want:   []ranges.Range{ranges.New(3, 8)},
		},
		{
			name:   "empty ignored",
			insert: []ranges.Range{ranges.New(5, 5), ranges.New(7, 3)},
			want:   []ranges.Range{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ranges.NewSet()
			for _, r := range tt.insert {
				s.Insert(r)
			}
			assert.Equal(t, tt.want, s.Ranges())
		})
	}
}

func TestSet_Encloses(t *testing.T) {
	s := ranges.NewSet()
	s.Insert(ranges.New(0, 10))
	s.Insert(ranges.New(20, 30))

	assert.True(t, s.Encloses(ranges.New(0, 10)))
	assert.True(t, s.Encloses(ranges.New(22, 25)))
	assert.False(t, s.Encloses(ranges.New(5, 21)))
	assert.False(t, s.Encloses(ranges.New(30, 31)))
	assert.True(t, s.Encloses(ranges.New(40, 40)))

	assert.True(t, s.CoveredUntil(0))
	assert.True(t, s.CoveredUntil(10))
	assert.False(t, s.CoveredUntil(11))

	assert.True(t, s.Contains(29))
	assert.False(t, s.Contains(15))
}

func TestSet_InsertOrderIndependent(t *testing.T) {
	var parts []ranges.Range
	for i := int64(0); i < 100; i++ {
		parts = append(parts, ranges.Closed(i*10, i*10+9))
	}

	rng := rand.New(rand.NewSource(7))
	rng.Shuffle(len(parts), func(i, j int) { parts[i], parts[j] = parts[j], parts[i] })

	s := ranges.NewSet()
	var wg sync.WaitGroup
	for _, r := range parts {
		wg.Add(1)
		go func(r ranges.Range) {
			defer wg.Done()
			s.Insert(r)
			s.Insert(r)
		}(r)
	}
	wg.Wait()

	assert.Equal(t, []ranges.Range{ranges.New(0, 1000)}, s.Ranges())
	assert.True(t, s.CoveredUntil(1000))
}

func TestRange(t *testing.T) {
	r := ranges.Closed(0, 127)
	assert.Equal(t, ranges.New(0, 128), r)
	assert.Equal(t, int64(128), r.Len())
	assert.True(t, r.Contains(127))
	assert.False(t, r.Contains(128))
	assert.Equal(t, "[0, 128)", r.String())
	assert.True(t, ranges.New(3, 3).IsEmpty())
}
