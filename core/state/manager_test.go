package state

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"ibco/storage"
)

type sampleRecord struct {
	Owner  common.Address
	Amount *uint256.Int
	Status uint8
}

func TestKVOverlayVisibleBeforeCommit(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)

	rec := sampleRecord{Owner: common.HexToAddress("0x01"), Amount: uint256.NewInt(42), Status: 1}
	require.NoError(t, mgr.KVPut([]byte("rec"), rec))

	var got sampleRecord
	ok, err := mgr.KVGet([]byte("rec"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(42), got.Amount.Uint64())
	require.Empty(t, db.Keys(), "nothing should reach the database before commit")

	require.NoError(t, mgr.Commit())
	require.Len(t, db.Keys(), 1)
	require.Zero(t, mgr.Dirty())

	fresh := NewManager(db)
	var reloaded sampleRecord
	ok, err = fresh.KVGet([]byte("rec"), &reloaded)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec.Owner, reloaded.Owner)
	require.Equal(t, uint8(1), reloaded.Status)
}

func TestDiscardRestoresCommittedState(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	require.NoError(t, mgr.KVPut([]byte("counter"), uint64(1)))
	require.NoError(t, mgr.Commit())

	require.NoError(t, mgr.KVPut([]byte("counter"), uint64(2)))
	require.NoError(t, mgr.KVDelete([]byte("counter")))
	ok, err := mgr.KVGet([]byte("counter"), nil)
	require.NoError(t, err)
	require.False(t, ok)

	mgr.Discard()

	var value uint64
	ok, err = mgr.KVGet([]byte("counter"), &value)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), value)
}

func TestRolesAssignAndRevoke(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	admin := common.HexToAddress("0xAA")
	other := common.HexToAddress("0xBB")

	require.NoError(t, mgr.SetRole("ROLE_ADMIN", admin.Bytes()))
	require.NoError(t, mgr.SetRole("ROLE_ADMIN", admin.Bytes()))
	require.True(t, mgr.HasRole("ROLE_ADMIN", admin.Bytes()))
	require.False(t, mgr.HasRole("ROLE_ADMIN", other.Bytes()))

	members, err := mgr.RoleMembers("ROLE_ADMIN")
	require.NoError(t, err)
	require.Len(t, members, 1)

	require.NoError(t, mgr.RevokeRole("ROLE_ADMIN", admin.Bytes()))
	require.False(t, mgr.HasRole("ROLE_ADMIN", admin.Bytes()))
}

func TestKVAppendDeduplicates(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	require.NoError(t, mgr.KVAppend([]byte("idx"), []byte{0x01}))
	require.NoError(t, mgr.KVAppend([]byte("idx"), []byte{0x02}))
	require.NoError(t, mgr.KVAppend([]byte("idx"), []byte{0x01}))

	var list [][]byte
	require.NoError(t, mgr.KVGetList([]byte("idx"), &list))
	require.Equal(t, [][]byte{{0x01}, {0x02}}, list)

	var empty [][]byte
	require.NoError(t, mgr.KVGetList([]byte("missing"), &empty))
	require.NotNil(t, empty)
	require.Empty(t, empty)
}
