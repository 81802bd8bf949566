package schedcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindStringAndParseRoundTrip(t *testing.T) {
	for k := KindTimer; k <= KindAny; k++ {
		parsed := ParseKind(k.String())
		assert.Equal(t, k, parsed)
	}
	assert.Equal(t, "unknown", KindUnknown.String())
	assert.Equal(t, KindUnknown, ParseKind("not-a-kind"))
}

func TestPathChildAndParent(t *testing.T) {
	root := Path(nil)
	assert.Equal(t, "root", root.String())

	child := root.Child(2)
	assert.Equal(t, Path{2}, child)
	assert.Equal(t, "2", child.String())

	grandchild := child.Child(5)
	assert.Equal(t, Path{2, 5}, grandchild)
	assert.Equal(t, "2.5", grandchild.String())

	parent, ok := grandchild.Parent()
	require.True(t, ok)
	assert.True(t, parent.Equal(child))

	_, ok = root.Parent()
	assert.False(t, ok)
}

func TestPathParseRoundTrip(t *testing.T) {
	for _, s := range []string{"root", "0", "1.2.3", "10.20"} {
		p, err := ParsePath(s)
		require.NoError(t, err)
		assert.Equal(t, s, p.String())
	}
}

func TestParsePathRejectsMalformedInput(t *testing.T) {
	_, err := ParsePath("1.x.3")
	assert.Error(t, err)
}

func TestPathEqual(t *testing.T) {
	a := Path{1, 2}
	b := Path{1, 2}
	c := Path{1, 3}
	d := Path{1}
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
}

func TestLCBNSamePosition(t *testing.T) {
	a := LCBN{Kind: KindTimer, Path: Path{0, 1}}
	b := LCBN{Kind: KindTimer, Path: Path{0, 1}, ExecIndex: 42}
	c := LCBN{Kind: KindWork, Path: Path{0, 1}}
	d := LCBN{Kind: KindTimer, Path: Path{0, 2}}

	assert.True(t, a.SamePosition(b), "ExecIndex must not affect position equality")
	assert.False(t, a.SamePosition(c))
	assert.False(t, a.SamePosition(d))
}

func TestLCBNString(t *testing.T) {
	n := LCBN{Kind: KindTimer, Path: Path{1, 2}}
	assert.Equal(t, "timer@1.2", n.String())
}
