package execmodel_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/execfabric/execfabric/execmodel"
)

func TestThreadedRunsConcurrently(t *testing.T) {
	m, err := execmodel.New("thread")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	release := make(chan struct{})
	started := make(chan struct{}, 2)

	for i := 0; i < 2; i++ {
		require.NoError(t, m.Spawn(func() {
			started <- struct{}{}
			<-release
			wg.Done()
		}))
	}
	<-started
	<-started
	close(release)
	wg.Wait()
	m.Stop()
}

func TestMainThreadOnlyRejectsConcurrentSpawn(t *testing.T) {
	m, err := execmodel.New("main_thread_only")
	require.NoError(t, err)

	release := make(chan struct{})
	require.NoError(t, m.Spawn(func() { <-release }))

	time.Sleep(10 * time.Millisecond)
	err = m.Spawn(func() {})
	assert.ErrorContains(t, err, "deadlock")

	close(release)
	m.Stop()
}

func TestUnknownModelNameErrors(t *testing.T) {
	_, err := execmodel.New("no-such-model")
	assert.Error(t, err)
}
