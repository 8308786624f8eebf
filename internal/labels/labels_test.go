package labels

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	s := NewSet(5, 1, 3, 1)
	assert.Equal(t, Set{1, 3, 5}, s)
	assert.True(t, s.Contains(3))
	assert.False(t, s.Contains(4))
	assert.Equal(t, "1,3,5", s.String())

	assert.True(t, s.Intersects(Set{0, 5}))
	assert.False(t, s.Intersects(Set{2, 4, 6}))
	assert.Nil(t, NewSet())

	big := make([]Label, 0, 20)
	for i := range 20 {
		big = append(big, Label(i*2))
	}
	bs := NewSet(big...)
	assert.True(t, bs.Contains(38))
	assert.False(t, bs.Contains(37))
}

func TestFilter(t *testing.T) {
	var zero Filter
	assert.False(t, zero.Active())

	f := AnyOf(7, 2, 7)
	assert.True(t, f.Active())
	assert.Equal(t, Set{2, 7}, f.Labels())
	assert.Equal(t, Set{4}, Require(4).Labels())
	assert.False(t, AnyOf().Active())
}

func TestStoreMatch(t *testing.T) {
	s := NewStore()
	s.Set(0, NewSet(1))
	s.Set(1, NewSet(2, 3))
	s.Set(2, NewSet(DefaultUniversal))
	s.Set(4, nil)

	assert.Equal(t, 5, s.Len())
	assert.True(t, s.Matches(0, 1))
	assert.False(t, s.Matches(0, 2))
	assert.True(t, s.Matches(2, 99))
	assert.False(t, s.Matches(3, 1))
	assert.True(t, s.IsUniversal(2))

	assert.True(t, s.Match(1, AnyOf(3, 9)))
	assert.False(t, s.Match(0, AnyOf(3, 9)))
	assert.True(t, s.Match(2, AnyOf(3, 9)))
	assert.True(t, s.Match(4, Filter{}))

	assert.Equal(t, []uint32{1, 2}, s.Candidates(AnyOf(3)).ToArray())
	assert.Equal(t, []Label{0, 1, 2, 3}, s.Distinct())
}

func TestStoreWithoutUniversal(t *testing.T) {
	s := NewStore(WithoutUniversal())
	s.Set(0, NewSet(0))
	assert.False(t, s.Matches(0, 5))
	assert.False(t, s.IsUniversal(0))

	_, ok := s.Universal()
	assert.False(t, ok)

	c := NewStore(WithUniversal(9))
	c.Set(0, NewSet(9))
	assert.True(t, c.Matches(0, 1))
	l, ok := c.Universal()
	assert.True(t, ok)
	assert.Equal(t, Label(9), l)
}

func TestStorePostingsFollowUpdates(t *testing.T) {
	s := NewStore()
	s.Set(3, NewSet(1, 2))
	s.Set(5, NewSet(2))
	assert.Equal(t, 1, s.Count(1))
	assert.Equal(t, 2, s.Count(2))

	s.Set(3, NewSet(4))
	assert.Equal(t, 0, s.Count(1))
	assert.Equal(t, []uint32{5}, s.Postings(2).ToArray())
	assert.Equal(t, []uint32{3}, s.Postings(4).ToArray())

	s.Clear(3)
	assert.Equal(t, 0, s.Count(4))
	assert.True(t, s.Postings(4).IsEmpty())
	assert.Nil(t, s.Labels(3))
	assert.Nil(t, s.Labels(100))
}

func TestParseText(t *testing.T) {
	in := "1,2\n\n3 , 1 ,3\n7\n"
	sets, err := ParseText(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []Set{{1, 2}, nil, {1, 3}, {7}}, sets)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, sets))
	assert.Equal(t, "1,2\n\n1,3\n7\n", buf.String())

	_, err = ParseText(strings.NewReader("1,x\n"))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestSpmat(t *testing.T) {
	sets := []Set{{1, 3}, nil, {2}}

	var buf bytes.Buffer
	require.NoError(t, WriteSpmat(&buf, sets, 3, 1))

	got, err := ReadSpmat(bytes.NewReader(buf.Bytes()), 1)
	require.NoError(t, err)
	assert.Equal(t, []Set{{1, 3}, nil, {2}}, got)

	zeroBased, err := ReadSpmat(bytes.NewReader(buf.Bytes()), 0)
	require.NoError(t, err)
	assert.Equal(t, Set{0, 2}, zeroBased[0])

	_, err = ReadSpmat(bytes.NewReader(buf.Bytes()[:30]), 1)
	require.ErrorIs(t, err, ErrMalformed)

	require.Error(t, WriteSpmat(&bytes.Buffer{}, []Set{{0}}, 1, 1))
}
