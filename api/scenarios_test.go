/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario correctly sets up the expected state:
	- Catalog, employees and assignments are created
	- Punches and leave land on the intended days
	- The sweep produces the records the scenario describes

These tests run against SQLite so they double as integration tests.
*/
package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/store/sqlite"
)

func setupScenarioRouter(t *testing.T) http.Handler {
	t.Helper()
	s, err := sqlite.New(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, router := newTestHandler(t, s)
	return router
}

func loadScenario(t *testing.T, router http.Handler, id string) attendance.SweepRun {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[struct {
		Sweep attendance.SweepRun `json:"sweep"`
	}](t, rec).Sweep
}

func recordStatus(t *testing.T, router http.Handler, emp, date string) attendance.Status {
	t.Helper()
	rec := do(t, router, http.MethodGet, "/api/employees/"+emp+"/records/"+date, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[attendance.DailyRecord](t, rec).Status
}

func TestScenario_Office(t *testing.T) {
	// GIVEN: Today is Wednesday March 12th
	// WHEN: The office scenario is loaded
	// THEN: The past seven days are swept for three employees

	router := setupScenarioRouter(t)

	run := loadScenario(t, router, "office")

	assert.Equal(t, 21, run.Units)
	assert.Equal(t, 21, run.Succeeded)
	assert.Zero(t, run.Failed)

	assert.Equal(t, attendance.StatusLate, recordStatus(t, router, "bob", "2025-03-11"))
	assert.Equal(t, attendance.StatusMissingCard, recordStatus(t, router, "bob", "2025-03-10"))
	assert.Equal(t, attendance.StatusOnLeave, recordStatus(t, router, "carol", "2025-03-11"))
	assert.Equal(t, attendance.StatusRest, recordStatus(t, router, "alice", "2025-03-08"))
	assert.Equal(t, attendance.StatusRest, recordStatus(t, router, "alice", "2025-03-09"))

	// Today is never swept.
	rec := do(t, router, http.MethodGet, "/api/employees/alice/records/2025-03-12", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	current := decode[map[string]*ScenarioDTO](t, do(t, router, http.MethodGet, "/api/scenarios/current", nil))
	require.NotNil(t, current["scenario"])
	assert.Equal(t, "office", current["scenario"].ID)
}

func TestScenario_NightRotation(t *testing.T) {
	// GIVEN: A 2-on 2-off night rotation starting March 4th
	// THEN: Check-outs after midnight count for the previous work date

	router := setupScenarioRouter(t)

	loadScenario(t, router, "night-rotation")

	assert.Equal(t, attendance.StatusNormal, recordStatus(t, router, "dave", "2025-03-05"))
	assert.Equal(t, attendance.StatusRest, recordStatus(t, router, "dave", "2025-03-06"))
	assert.Equal(t, attendance.StatusRest, recordStatus(t, router, "dave", "2025-03-07"))
	assert.Equal(t, attendance.StatusLate, recordStatus(t, router, "dave", "2025-03-08"))
	assert.Equal(t, attendance.StatusNormal, recordStatus(t, router, "dave", "2025-03-09"))
}

func TestScenario_BrokenCatalog(t *testing.T) {
	router := setupScenarioRouter(t)

	loadScenario(t, router, "broken-catalog")

	recs := decode[[]attendance.DailyRecord](t, do(t, router, http.MethodGet, "/api/records?employee_id=erin", nil))
	require.Len(t, recs, 7)
	for _, r := range recs {
		assert.Equal(t, attendance.StatusDataIntegrity, r.Status, r.WorkDate.String())
	}
}

func TestScenario_LoadReplacesPreviousData(t *testing.T) {
	router := setupScenarioRouter(t)
	loadScenario(t, router, "office")

	loadScenario(t, router, "night-rotation")

	emps := decode[[]EmployeeDTO](t, do(t, router, http.MethodGet, "/api/employees", nil))
	require.Len(t, emps, 1)
	assert.Equal(t, "dave", emps[0].ID)
}

func TestScenario_UnknownAndReset(t *testing.T) {
	router := setupScenarioRouter(t)

	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	loadScenario(t, router, "office")
	rec = do(t, router, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	recs := decode[[]attendance.DailyRecord](t, do(t, router, http.MethodGet, "/api/records", nil))
	assert.Empty(t, recs)
	scenarios := decode[[]ScenarioDTO](t, do(t, router, http.MethodGet, "/api/scenarios", nil))
	assert.Len(t, scenarios, 3)
}
