package model

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JoshuaXOng/tag-filesystem/internal/inodeid"
)

func TestTagSetKeyIsOrderIndependent(t *testing.T) {
	a := TagSet{3, 7, 4}
	b := TagSet{7, 4, 3}
	assert.Equal(t, a.Key(), b.Key())
	assert.True(t, a.Equal(b))
}

func TestTagSetKeyDistinguishesDifferentMembership(t *testing.T) {
	a := TagSet{3, 7}
	b := TagSet{3, 8}
	assert.NotEqual(t, a.Key(), b.Key())
	assert.False(t, a.Equal(b))
}

func TestTagSetContains(t *testing.T) {
	s := TagSet{inodeid.ID(4), inodeid.ID(10)}
	assert.True(t, s.Contains(4))
	assert.False(t, s.Contains(5))
}

func TestTagSetCloneIsIndependent(t *testing.T) {
	orig := TagSet{1, 2, 3}
	clone := orig.Clone()
	clone[0] = 99
	assert.Equal(t, inodeid.ID(1), orig[0])
}

func TestEmptyTagSetKeyIsStable(t *testing.T) {
	assert.Equal(t, TagSet(nil).Key(), TagSet{}.Key())
}
