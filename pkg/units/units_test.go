package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytesRoundUpStoreBlocks(t *testing.T) {
	assert.Equal(t, StoreBlocks(1), Bytes(1).RoundUpStoreBlocks())
	assert.Equal(t, StoreBlocks(1), Bytes(StoreBlockScale).RoundUpStoreBlocks())
	assert.Equal(t, StoreBlocks(2), Bytes(StoreBlockScale+1).RoundUpStoreBlocks())
}

func TestBytesRoundDownStoreBlocks(t *testing.T) {
	assert.Equal(t, StoreBlocks(0), Bytes(StoreBlockScale-1).RoundDownStoreBlocks())
	assert.Equal(t, StoreBlocks(1), Bytes(StoreBlockScale).RoundDownStoreBlocks())
}

func TestStripeBlocksRoundUpStoreBlocks(t *testing.T) {
	sb := StripeBlocks(1).RoundUpStoreBlocks()
	assert.Equal(t, StoreBlocks(StripeBlockScale/StoreBlockScale), sb)
}

func TestMegabytesBytes(t *testing.T) {
	assert.Equal(t, Bytes(256*MegabyteScale), Megabytes(256).Bytes())
}

func TestStoreBlocksArithmetic(t *testing.T) {
	a := StoreBlocks(10)
	b := StoreBlocks(3)
	assert.Equal(t, StoreBlocks(13), a.Add(b))
	assert.Equal(t, StoreBlocks(7), a.Sub(b))
}
