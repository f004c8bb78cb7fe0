package memory

import (
	"testing"

	"github.com/code-payments/purchase-engine/verified/tests"
)

func TestVerified_MemoryStore(t *testing.T) {
	testStore := NewInMemory()
	teardown := func() {
		testStore.(*InMemoryStore).reset()
	}
	tests.RunStoreTests(t, testStore, teardown)
}
