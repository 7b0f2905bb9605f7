//go:build unit

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globfs/globd/wire"
)

func TestBeginRequestRejectsBadIDs(t *testing.T) {
	s := NewGlobServer(GlobServerConfig{ServeRoot: t.TempDir()})

	assert.Error(t, s.beginRequest(0), "absent message_id must be rejected")
	assert.Error(t, s.beginRequest(-7), "negative message_id must be rejected")
	assert.Equal(t, 0, s.inflightCount())
}

func TestBeginRequestRejectsDuplicateInFlight(t *testing.T) {
	s := NewGlobServer(GlobServerConfig{ServeRoot: t.TempDir()})

	require.NoError(t, s.beginRequest(7))
	assert.Error(t, s.beginRequest(7), "duplicate in-flight id must be rejected")
	assert.Equal(t, 1, s.inflightCount())

	// Once the first request completes the id may be reused.
	s.endRequest(7)
	assert.NoError(t, s.beginRequest(7))
}

func TestDuplicateInFlightRequestDropped(t *testing.T) {
	s := NewGlobServer(GlobServerConfig{ServeRoot: t.TempDir()})

	require.NoError(t, s.beginRequest(7))

	// The duplicate is dropped without touching the original's in-flight
	// entry: the pending request still owns the id's terminal response.
	s.processExpandGlobs("peer", wire.ExpandGlobsMessage{
		MessageID: 7,
		PathGlobs: wire.PathGlobsSpec{IncludePatterns: []string{"*"}},
	})

	assert.Equal(t, 1, s.inflightCount())
}

func TestRequestPhaseTransitions(t *testing.T) {
	s := NewGlobServer(GlobServerConfig{ServeRoot: t.TempDir()})

	require.NoError(t, s.beginRequest(1))
	s.setPhase(1, phaseResolving)
	s.setPhase(1, phasePacking)
	s.endRequest(1)

	assert.Equal(t, 0, s.inflightCount())
}
