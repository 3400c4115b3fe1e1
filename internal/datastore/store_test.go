package datastore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/bugshift/internal/domain/workitem"
)

const workItemsYAML = `
work_items:
  - id: BUG-1
    title: Crash on save
    submitter: alice
    files: [save.go]
    should_approve: true
  - id: BUG-2
    title: Typo in footer
    should_approve: false
    report_notification: MAIL-R2
    bribe_if_wrong: 40
  - id: BUG-1
    title: Shadowed duplicate
    should_approve: false
  - id: BUG-3
    title: No truth recorded
  - id: BUG-4
    should_approve: true
    bribe_if_wrong: -5
`

const notificationsYAML = `
notifications:
  - id: MAIL-1
    sender: boss@corp
    title: Welcome
    body: First day.
  - id: MAIL-R2
    sender: qa@corp
    title: About BUG-2
  - id: MAIL-1
    sender: spam@corp
`

const daysYAML = `
days:
  - day: 1
    pre_shift_mail: [MAIL-1]
    work_items: [BUG-1, BUG-2]
  - day: 2
    work_items: [BUG-4]
    duration_seconds: 300
`

func load(t *testing.T) *Store {
	t.Helper()
	s := New(nil)
	require.NoError(t, s.LoadBytes([]byte(workItemsYAML), []byte(notificationsYAML), []byte(daysYAML)))
	return s
}

func TestLoadBuildsTables(t *testing.T) {
	s := load(t)
	require.True(t, s.Loaded())

	w, ok := s.WorkItem("BUG-2")
	require.True(t, ok)
	assert.Equal(t, workitem.DecisionReject, w.Expected)
	assert.Equal(t, "MAIL-R2", w.FollowUpNotification)
	assert.EqualValues(t, 40, w.Bribe)

	plan, ok := s.DayPlan(1)
	require.True(t, ok)
	assert.Equal(t, []string{"BUG-1", "BUG-2"}, plan.WorkItems)
	assert.Equal(t, []string{"MAIL-1"}, plan.PreShiftMail)
	assert.Zero(t, plan.DurationSecs)

	plan, _ = s.DayPlan(2)
	assert.Equal(t, 300.0, plan.DurationSecs)
	assert.Equal(t, 2, s.Days())
}

func TestDuplicateKeepsFirstEntry(t *testing.T) {
	s := load(t)

	w, _ := s.WorkItem("BUG-1")
	assert.Equal(t, "Crash on save", w.Title)
	assert.Equal(t, workitem.DecisionApprove, w.Expected)

	n, _ := s.Notification("MAIL-1")
	assert.Equal(t, "boss@corp", n.Sender)

	dups := 0
	for _, err := range s.Warnings() {
		if errors.Is(err, ErrDuplicateIdentifier) {
			dups++
		}
	}
	assert.Equal(t, 2, dups)
}

func TestMissingExpectedDecisionDropsItem(t *testing.T) {
	s := load(t)
	_, ok := s.WorkItem("BUG-3")
	assert.False(t, ok)

	found := false
	for _, err := range s.Warnings() {
		found = found || errors.Is(err, ErrMissingExpectedDecision)
	}
	assert.True(t, found)
}

func TestNegativeBribeClampedToZero(t *testing.T) {
	s := load(t)
	w, ok := s.WorkItem("BUG-4")
	require.True(t, ok)
	assert.Zero(t, w.Bribe)
}

func TestMalformedYAMLFails(t *testing.T) {
	s := New(nil)
	err := s.LoadBytes([]byte("work_items: [\n"), nil, nil)
	require.Error(t, err)
	assert.False(t, s.Loaded())
}

func TestNotLoadedUntilLoad(t *testing.T) {
	s := New(nil)
	assert.False(t, s.Loaded())
	_, ok := s.DayPlan(1)
	assert.False(t, ok)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, WorkItemsFile), []byte(workItemsYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, NotificationsFile), []byte(notificationsYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DaysFile), []byte(daysYAML), 0o644))

	s := New(nil)
	require.NoError(t, s.LoadDir(dir))
	assert.True(t, s.Loaded())
}

func TestLoadDirMissingFile(t *testing.T) {
	s := New(nil)
	err := s.LoadDir(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
