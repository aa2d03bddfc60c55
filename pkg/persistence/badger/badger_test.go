package badger

import (
	"sync"
	"testing"

	"github.com/Layr-Labs/tx-relayer-go/pkg/logger"
	"github.com/Layr-Labs/tx-relayer-go/pkg/persistence"
	"github.com/Layr-Labs/tx-relayer-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAccount = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func newTestBadger(t *testing.T, dir string) *BadgerPersistence {
	t.Helper()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	bp, err := NewBadgerPersistence(dir, testLogger)
	require.NoError(t, err)
	return bp
}

func TestBadgerPersistence_NonceCheckpoint(t *testing.T) {
	bp := newTestBadger(t, t.TempDir())
	defer func() { _ = bp.Close() }()

	loaded, err := bp.LoadNonceCheckpoint(31337, testAccount)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	cp := &persistence.NonceCheckpoint{
		ChainID:   31337,
		Account:   testAccount.Hex(),
		NextNonce: 42,
		Released:  []uint64{40},
		UpdatedAt: 1700000000,
	}
	require.NoError(t, bp.SaveNonceCheckpoint(cp))

	loaded, err = bp.LoadNonceCheckpoint(31337, testAccount)
	require.NoError(t, err)
	assert.Equal(t, cp, loaded)

	other, err := bp.LoadNonceCheckpoint(1, testAccount)
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, bp.DeleteNonceCheckpoint(31337, testAccount))
	require.NoError(t, bp.DeleteNonceCheckpoint(31337, testAccount))
	loaded, err = bp.LoadNonceCheckpoint(31337, testAccount)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	require.Error(t, bp.SaveNonceCheckpoint(nil))
}

func TestBadgerPersistence_RelayRecords(t *testing.T) {
	bp := newTestBadger(t, t.TempDir())
	defer func() { _ = bp.Close() }()

	records, err := bp.ListRelayRecords()
	require.NoError(t, err)
	assert.Empty(t, records)

	nonce := uint64(3)
	first := &persistence.RelayRecord{ID: uuid.NewString(), State: types.RelayStateConfirmed, Nonce: &nonce, CreatedAt: 20}
	second := &persistence.RelayRecord{ID: uuid.NewString(), State: types.RelayStateFailed, CreatedAt: 10}
	require.NoError(t, bp.SaveRelayRecord(first))
	require.NoError(t, bp.SaveRelayRecord(second))

	records, err = bp.ListRelayRecords()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, second.ID, records[0].ID)
	assert.Equal(t, first, records[1])

	id := uuid.MustParse(first.ID)
	require.NoError(t, bp.DeleteRelayRecord(id))
	loaded, err := bp.LoadRelayRecord(id)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	require.Error(t, bp.SaveRelayRecord(nil))
	require.Error(t, bp.SaveRelayRecord(&persistence.RelayRecord{}))
}

func TestBadgerPersistence_Close(t *testing.T) {
	bp := newTestBadger(t, t.TempDir())
	require.NoError(t, bp.HealthCheck())

	require.NoError(t, bp.Close())
	require.NoError(t, bp.Close())

	require.Error(t, bp.HealthCheck())
	require.Error(t, bp.SaveNonceCheckpoint(&persistence.NonceCheckpoint{Account: testAccount.Hex()}))
	_, err := bp.LoadRelayRecord(uuid.New())
	require.Error(t, err)
}

func TestBadgerPersistence_ThreadSafety(t *testing.T) {
	bp := newTestBadger(t, t.TempDir())
	defer func() { _ = bp.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, bp.SaveRelayRecord(&persistence.RelayRecord{ID: uuid.NewString(), CreatedAt: int64(n)}))
			assert.NoError(t, bp.SaveNonceCheckpoint(&persistence.NonceCheckpoint{ChainID: 1, Account: testAccount.Hex(), NextNonce: uint64(n)}))
		}(i)
	}
	wg.Wait()

	records, err := bp.ListRelayRecords()
	require.NoError(t, err)
	assert.Len(t, records, 10)
}

func TestBadgerPersistence_Persistence_AcrossRestarts(t *testing.T) {
	tmpDir := t.TempDir()

	bp1 := newTestBadger(t, tmpDir)
	cp := &persistence.NonceCheckpoint{ChainID: 11155111, Account: testAccount.Hex(), NextNonce: 9, UpdatedAt: 1}
	require.NoError(t, bp1.SaveNonceCheckpoint(cp))
	record := &persistence.RelayRecord{ID: uuid.NewString(), State: types.RelayStateSubmitted, Broadcast: types.Broadcast}
	require.NoError(t, bp1.SaveRelayRecord(record))
	require.NoError(t, bp1.Close())

	bp2 := newTestBadger(t, tmpDir)
	defer func() { _ = bp2.Close() }()

	loadedCp, err := bp2.LoadNonceCheckpoint(11155111, testAccount)
	require.NoError(t, err)
	assert.Equal(t, cp, loadedCp)

	loadedRecord, err := bp2.LoadRelayRecord(uuid.MustParse(record.ID))
	require.NoError(t, err)
	assert.Equal(t, types.Broadcast, loadedRecord.Broadcast)
}
