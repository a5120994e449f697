package testutil

import (
	"context"
	"testing"
	"time"
)

// Context returns a context that is cancelled when the test finishes, with a
// generous deadline so a hung store or ledger call fails the test instead of
// wedging the run.
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}
