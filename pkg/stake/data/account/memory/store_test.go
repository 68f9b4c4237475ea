package memory

import (
	"testing"

	"github.com/code-payments/code-staking/pkg/stake/data/account/tests"
)

func TestAccountMemoryStore(t *testing.T) {
	s := New().(*store)
	tests.RunTests(t, s, s.reset)
}
