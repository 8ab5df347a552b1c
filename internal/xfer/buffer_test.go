package xfer

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-npubench/internal/accel"
	"github.com/23skdu/longbow-npubench/internal/sequence"
)

type fakeMem struct {
	data  []byte
	syncs []accel.Direction
	freed bool
	fail  error
}

func (m *fakeMem) Bytes() []byte { return m.data }

func (m *fakeMem) Sync(dir accel.Direction) error {
	m.syncs = append(m.syncs, dir)
	return m.fail
}

func (m *fakeMem) Free() error {
	m.freed = true
	return nil
}

type fakeAlloc struct {
	banks []int
	mems  []*fakeMem
	short bool
}

func (a *fakeAlloc) Alloc(role accel.Role, size int, bank int) (accel.Memory, error) {
	a.banks = append(a.banks, bank)
	if a.short {
		size--
	}
	m := &fakeMem{data: make([]byte, size)}
	a.mems = append(a.mems, m)
	return m, nil
}

func TestAllocateDefaultBanks(t *testing.T) {
	alloc := &fakeAlloc{}
	set := NewSet(alloc)
	for _, role := range []accel.Role{accel.RoleInstruction, accel.RoleInput, accel.RoleOutput, accel.RoleTelemetry} {
		_, err := set.Allocate(role, 8)
		require.NoError(t, err)
	}
	assert.Equal(t, []int{5, 1, 3, 5}, alloc.banks)

	b, err := set.AllocateAt(accel.RoleInput, 8, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, b.Bank())
	assert.Len(t, set.Buffers(), 5)
}

func TestAllocateInvalidSize(t *testing.T) {
	set := NewSet(&fakeAlloc{})
	_, err := set.Allocate(accel.RoleInput, 0)
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = set.Allocate(accel.RoleInput, -4)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestAllocateShortMapping(t *testing.T) {
	alloc := &fakeAlloc{short: true}
	_, err := NewSet(alloc).Allocate(accel.RoleOutput, 16)
	require.Error(t, err)
	assert.True(t, alloc.mems[0].freed)
}

func TestWordAccess(t *testing.T) {
	b, err := NewSet(&fakeAlloc{}).Allocate(accel.RoleInput, 16)
	require.NoError(t, err)
	assert.Equal(t, 4, b.WordCount())

	require.NoError(t, b.WriteWord(1, 0xDEADBEEF))
	w, err := b.Word(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), w)

	raw, err := b.Read(4, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xEF, 0xBE, 0xAD, 0xDE}, raw)

	require.NoError(t, b.PutWords(2, []uint32{7, 8}))
	words, err := b.Words(0, 4)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 0xDEADBEEF, 7, 8}, words)

	b.Fill(func(i int) uint32 { return uint32(i + 1) })
	words, _ = b.Words(0, 4)
	assert.Equal(t, []uint32{1, 2, 3, 4}, words)

	b.Zero()
	words, _ = b.Words(0, 4)
	assert.Equal(t, []uint32{0, 0, 0, 0}, words)
}

func TestBounds(t *testing.T) {
	b, err := NewSet(&fakeAlloc{}).Allocate(accel.RoleOutput, 8)
	require.NoError(t, err)

	var be *BoundsError
	assert.ErrorAs(t, b.WriteWord(2, 1), &be)
	assert.Equal(t, 8, be.Size)
	_, err = b.Word(-1)
	assert.ErrorAs(t, err, &be)
	_, err = b.Words(1, 2)
	assert.ErrorAs(t, err, &be)
	_, err = b.Read(6, 4)
	assert.ErrorAs(t, err, &be)
	assert.ErrorAs(t, b.Write(0, make([]byte, 9)), &be)
	assert.ErrorAs(t, b.PutWords(0, make([]uint32, 3)), &be)
	assert.Contains(t, be.Error(), "output buffer")
}

func TestLoadSequenceIntoBuffer(t *testing.T) {
	b, err := NewSet(&fakeAlloc{}).Allocate(accel.RoleInstruction, 8)
	require.NoError(t, err)

	n, err := sequence.Load(strings.NewReader("0000000A\n# c\n0000000b\n"), b)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	words, _ := b.Words(0, 2)
	assert.Equal(t, []uint32{10, 11}, words)

	_, err = sequence.Load(strings.NewReader("00000001\n00000002\n00000003\n"), b)
	var fe *sequence.FormatError
	require.ErrorAs(t, err, &fe)
	var be *BoundsError
	assert.ErrorAs(t, err, &be)
}

func TestSyncDirections(t *testing.T) {
	alloc := &fakeAlloc{}
	b, err := NewSet(alloc).Allocate(accel.RoleInput, 4)
	require.NoError(t, err)
	require.NoError(t, b.PushToDevice())
	require.NoError(t, b.PullFromDevice())
	assert.Equal(t, []accel.Direction{accel.ToDevice, accel.FromDevice}, alloc.mems[0].syncs)

	alloc.mems[0].fail = errors.New("dma")
	assert.ErrorContains(t, b.PushToDevice(), "to_device")
}

func TestCloseFreesAll(t *testing.T) {
	alloc := &fakeAlloc{}
	set := NewSet(alloc)
	_, _ = set.Allocate(accel.RoleInput, 4)
	_, _ = set.Allocate(accel.RoleOutput, 4)
	require.NoError(t, set.Close())
	for _, m := range alloc.mems {
		assert.True(t, m.freed)
	}
	assert.Empty(t, set.Buffers())
}
