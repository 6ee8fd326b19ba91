package cmd

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azure/azure-event-hubs-processor-go/eph"
	"github.com/Azure/azure-event-hubs-processor-go/persist"
)

func setHubFlags(t *testing.T) {
	namespace, hubName, consumerGroup = "ns", "hub", "$Default"
	t.Cleanup(func() {
		namespace, hubName, consumerGroup = "", "", "$Default"
	})
}

func TestSimulateResumesFromPersistedCheckpoints(t *testing.T) {
	setHubFlags(t)
	persister := persist.NewMemoryPersister()
	cfg := eph.DefaultConfig()
	cfg.DrainTimeout = 2 * time.Second

	s := simulation{partitions: 3, events: 25, messageCount: 10}
	require.NoError(t, s.run(context.Background(), cfg, persister))
	for _, pid := range s.partitionIDs() {
		cp, err := persister.Read(context.Background(), "ns", "hub", "$Default", pid)
		require.NoError(t, err)
		assert.Equal(t, int64(24), cp.SequenceNumber, "shutdown drains the last completion of partition %s", pid)
	}

	s.handOff = true
	require.NoError(t, s.run(context.Background(), cfg, persister))
	for _, pid := range s.partitionIDs() {
		cp, err := persister.Read(context.Background(), "ns", "hub", "$Default", pid)
		require.NoError(t, err)
		assert.Equal(t, int64(49), cp.SequenceNumber)
		assert.Equal(t, "4900", cp.Offset)
	}
}

func TestShowCheckpoints(t *testing.T) {
	setHubFlags(t)
	persister := persist.NewMemoryPersister()
	require.NoError(t, persister.Write(context.Background(), "ns", "hub", "$Default", "0", persist.NewCheckpoint("700", 7, time.Time{})))

	out := new(bytes.Buffer)
	require.NoError(t, showCheckpoints(context.Background(), out, persister, []string{"0", "1"}))
	assert.Contains(t, out.String(), `partition 0: {"offset":"700","sequenceNumber":7`)
	assert.Contains(t, out.String(), "partition 1: no checkpoint")
}

func TestNewPersisterUnknownStore(t *testing.T) {
	prev := store
	store = "tape"
	defer func() { store = prev }()

	_, _, err := newPersister(context.Background())
	assert.Error(t, err)
}

func TestCheckHubFlags(t *testing.T) {
	t.Setenv("EVENTHUB_CONNECTION_STRING", "")
	namespace, hubName, connStr = "", "", ""
	assert.Error(t, checkHubFlags())

	setHubFlags(t)
	assert.NoError(t, checkHubFlags())
}

func TestCheckHubFlagsFromConnectionString(t *testing.T) {
	t.Setenv("EVENTHUB_CONNECTION_STRING", "Endpoint=sb://mynamespace.servicebus.windows.net/;SharedAccessKeyName=keyName;SharedAccessKey=secret;EntityPath=myhub")
	namespace, hubName, connStr = "", "", ""
	defer func() { namespace, hubName, connStr = "", "", "" }()

	require.NoError(t, checkHubFlags())
	assert.Equal(t, "mynamespace", namespace)
	assert.Equal(t, "myhub", hubName)
}
