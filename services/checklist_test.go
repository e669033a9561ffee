package services

import (
	"sync/atomic"
	"testing"
	"time"

	"match-wager-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamMatch(id string) *models.Match {
	return &models.Match{ID: id, HostID: "alice", RequireStream: true}
}

func TestInitForMatchCreatesRequiredKeys(t *testing.T) {
	store := NewMemoryStore()
	svc := NewChecklistService(store)

	m := streamMatch("m1")
	m.IsPrivateServer = true
	require.NoError(t, svc.InitForMatch(m))

	entries, err := svc.Get("m1")
	require.NoError(t, err)
	require.Len(t, entries, 7)
	for _, e := range entries {
		assert.Equal(t, models.ChecklistPending, e.Value)
	}
}

func TestAllRequiredPassTrivialWithoutKeys(t *testing.T) {
	svc := NewChecklistService(NewMemoryStore())

	pass, err := svc.AllRequiredPass(&models.Match{ID: "m1"})
	require.NoError(t, err)
	assert.True(t, pass)
}

func TestOnPassFiresOnlyOnFlipToPass(t *testing.T) {
	svc := NewChecklistService(NewMemoryStore())
	var fired atomic.Int32
	svc.SetOnPass(func(string) { fired.Add(1) })

	require.NoError(t, svc.SetResult("m1", models.ChecklistStreamsLinked, models.ChecklistPass))
	require.Eventually(t, func() bool { return fired.Load() == 1 },
		time.Second, 5*time.Millisecond)

	// Re-setting PASS, or setting FAIL, does not fire again.
	require.NoError(t, svc.SetResult("m1", models.ChecklistStreamsLinked, models.ChecklistPass))
	require.NoError(t, svc.SetResult("m1", models.ChecklistBitrateOK, models.ChecklistFail))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestApplyStreamChecksAggregation(t *testing.T) {
	svc := NewChecklistService(NewMemoryStore())
	m := streamMatch("m1")
	require.NoError(t, svc.InitForMatch(m))

	svc.ApplyStreamChecks("m1", 1, StreamCheck{Live: true, TitleContainsMatchID: true, BitrateOK: true, FPSOK: true})

	entries, err := svc.Get("m1")
	require.NoError(t, err)
	byKey := make(map[string]models.ChecklistStatus)
	for _, e := range entries {
		byKey[e.Key] = e.Value
	}
	// One side probed: its live flag lands, combined flags wait.
	assert.Equal(t, models.ChecklistPass, byKey[models.ChecklistP1StreamLive])
	assert.Equal(t, models.ChecklistPending, byKey[models.ChecklistTitlesContainMatchID])

	svc.ApplyStreamChecks("m1", 2, StreamCheck{Live: true, TitleContainsMatchID: false, BitrateOK: true, FPSOK: true})

	entries, err = svc.Get("m1")
	require.NoError(t, err)
	byKey = make(map[string]models.ChecklistStatus)
	for _, e := range entries {
		byKey[e.Key] = e.Value
	}
	assert.Equal(t, models.ChecklistPass, byKey[models.ChecklistP2StreamLive])
	assert.Equal(t, models.ChecklistFail, byKey[models.ChecklistTitlesContainMatchID])
	assert.Equal(t, models.ChecklistPass, byKey[models.ChecklistBitrateOK])
	assert.Equal(t, models.ChecklistPass, byKey[models.ChecklistFPSOK])

	pass, err := svc.AllRequiredPass(m)
	require.NoError(t, err)
	assert.False(t, pass)

	// A fresh probe with the fixed title flips the combined flag.
	svc.ApplyStreamChecks("m1", 2, StreamCheck{Live: true, TitleContainsMatchID: true, BitrateOK: true, FPSOK: true})
	require.NoError(t, svc.SetResult("m1", models.ChecklistStreamsLinked, models.ChecklistPass))

	pass, err = svc.AllRequiredPass(m)
	require.NoError(t, err)
	assert.True(t, pass)
}

func TestForgetDropsCachedProbes(t *testing.T) {
	svc := NewChecklistService(NewMemoryStore())
	m := streamMatch("m1")
	require.NoError(t, svc.InitForMatch(m))

	svc.ApplyStreamChecks("m1", 1, StreamCheck{Live: true})
	svc.Forget("m1")

	// After Forget, a single-side probe is treated as first contact again.
	svc.ApplyStreamChecks("m1", 2, StreamCheck{Live: true})
	entries, err := svc.Get("m1")
	require.NoError(t, err)
	for _, e := range entries {
		if e.Key == models.ChecklistTitlesContainMatchID {
			assert.Equal(t, models.ChecklistPending, e.Value)
		}
	}
}
