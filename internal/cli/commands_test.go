package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command against dbPath in JSON mode and decodes
// the response envelope.
func runCLI(t *testing.T, dbPath string, args ...string) (CLIResponse, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--db", dbPath, "--format", "json"}, args...))

	err := cmd.Execute()

	var resp CLIResponse
	if out.Len() > 0 {
		require.NoError(t, json.Unmarshal(out.Bytes(), &resp), "output: %s", out.String())
	}
	return resp, err
}

// dataAs re-decodes a response's data into v.
func dataAs(t *testing.T, resp CLIResponse, v any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

func newDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "narrator.db")
}

const workoutPayload = `{"activityId":"A1","playerId":"p1","activityType":"run","durationMinutes":30}`

func TestCommands_EnqueueProcessInspect(t *testing.T) {
	db := newDB(t)

	_, err := runCLI(t, db, "directory", "lobby", "L1", "Iron Temple")
	require.NoError(t, err)
	_, err = runCLI(t, db, "directory", "member", "L1", "p1", "Ana", "--user-id", "u-ana")
	require.NoError(t, err)

	resp, err := runCLI(t, db, "enqueue", "L1", "ACTIVITY_LOGGED", "A1", "--payload", workoutPayload, "--process")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)

	var enq struct {
		Result struct {
			Enqueued  bool   `json:"enqueued"`
			Duplicate bool   `json:"duplicate"`
			EventID   string `json:"eventId"`
		} `json:"result"`
		Processed struct {
			Processed int `json:"processed"`
			Emitted   int `json:"emitted"`
		} `json:"processed"`
	}
	dataAs(t, resp, &enq)
	assert.True(t, enq.Result.Enqueued)
	require.NotEmpty(t, enq.Result.EventID)
	assert.Equal(t, 1, enq.Processed.Processed)
	assert.Equal(t, 2, enq.Processed.Emitted)

	t.Run("duplicate enqueue", func(t *testing.T) {
		resp, err := runCLI(t, db, "enqueue", "L1", "ACTIVITY_LOGGED", "A1", "--payload", workoutPayload)
		require.NoError(t, err)
		var dup struct {
			Result struct {
				Duplicate bool   `json:"duplicate"`
				EventID   string `json:"eventId"`
			} `json:"result"`
		}
		dataAs(t, resp, &dup)
		assert.True(t, dup.Result.Duplicate)
		assert.Equal(t, enq.Result.EventID, dup.Result.EventID)
	})

	t.Run("feed", func(t *testing.T) {
		resp, err := runCLI(t, db, "feed", "L1")
		require.NoError(t, err)
		var comments []struct {
			Body   string `json:"body"`
			RuleID string `json:"ruleId"`
		}
		dataAs(t, resp, &comments)
		require.Len(t, comments, 1)
		assert.Equal(t, "Ana logged a run for 30 min.", comments[0].Body)
		assert.Equal(t, "workout_highlight", comments[0].RuleID)
	})

	t.Run("inspect event", func(t *testing.T) {
		resp, err := runCLI(t, db, "inspect", enq.Result.EventID)
		require.NoError(t, err)
		var in struct {
			Event struct {
				Status   string `json:"status"`
				Attempts int    `json:"attempts"`
			} `json:"event"`
			RuleRuns []struct {
				RuleID   string `json:"ruleId"`
				Decision string `json:"decision"`
			} `json:"ruleRuns"`
		}
		dataAs(t, resp, &in)
		assert.Equal(t, "done", in.Event.Status)
		assert.Equal(t, 1, in.Event.Attempts)
		require.Len(t, in.RuleRuns, 2)
		for _, run := range in.RuleRuns {
			assert.Equal(t, "emitted", run.Decision, run.RuleID)
		}
	})

	t.Run("list by status", func(t *testing.T) {
		resp, err := runCLI(t, db, "inspect", "--status", "done")
		require.NoError(t, err)
		var events []map[string]any
		dataAs(t, resp, &events)
		assert.Len(t, events, 1)

		resp, err = runCLI(t, db, "inspect", "--status", "queued")
		require.NoError(t, err)
		dataAs(t, resp, &events)
		assert.Empty(t, events)
	})

	t.Run("requeue done event is not found", func(t *testing.T) {
		resp, err := runCLI(t, db, "requeue", enq.Result.EventID)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	})

	t.Run("directory show", func(t *testing.T) {
		resp, err := runCLI(t, db, "directory", "show", "L1")
		require.NoError(t, err)
		var lobby struct {
			Name    string `json:"name"`
			Members []struct {
				PlayerID string `json:"playerId"`
				UserID   string `json:"userId"`
			} `json:"members"`
		}
		dataAs(t, resp, &lobby)
		assert.Equal(t, "Iron Temple", lobby.Name)
		require.Len(t, lobby.Members, 1)
		assert.Equal(t, "u-ana", lobby.Members[0].UserID)
	})
}

func TestCommands_EnqueueRejectsInvalidEvent(t *testing.T) {
	db := newDB(t)

	resp, err := runCLI(t, db, "enqueue", "L1", "ACTIVITY_LOGGED", "A1", "--payload", `{"playerId":"p1"}`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalid, resp.Error.Code)

	_, err = runCLI(t, db, "enqueue", "L1", "ACTIVITY_LOGGED", "A1", "--payload", `{not json`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCommands_ProcessEmptyQueue(t *testing.T) {
	db := newDB(t)

	resp, err := runCLI(t, db, "process", "--lobby", "L1", "--limit", "10")
	require.NoError(t, err)
	var stats map[string]int
	dataAs(t, resp, &stats)
	assert.Equal(t, 0, stats["dequeued"])
	assert.Equal(t, 0, stats["processed"])
}

func TestCommands_Recover(t *testing.T) {
	db := newDB(t)

	resp, err := runCLI(t, db, "recover", "--older-than", "1m")
	require.NoError(t, err)
	var out struct {
		Recovered int    `json:"recovered"`
		OlderThan string `json:"olderThan"`
	}
	dataAs(t, resp, &out)
	assert.Equal(t, 0, out.Recovered)
	assert.Equal(t, "1m0s", out.OlderThan)
}

func TestCommands_UnprovisionedStoreIsUnavailable(t *testing.T) {
	t.Setenv("NARRATOR_DATABASE_AUTO_MIGRATE", "false")
	db := newDB(t)

	resp, err := runCLI(t, db, "process")
	require.Error(t, err)
	assert.Equal(t, ExitUnavailable, GetExitCode(err))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeUnavailable, resp.Error.Code)
	assert.Equal(t, map[string]any{"degraded": true}, resp.Error.Details)

	_, err = runCLI(t, db, "migrate")
	require.NoError(t, err)

	_, err = runCLI(t, db, "process")
	require.NoError(t, err)
}

func TestCommands_TextOutput(t *testing.T) {
	db := newDB(t)
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", db, "enqueue", "L1", "POT_CHANGED", "pot-1",
		"--payload", `{"previousPot":100,"newPot":150}`})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Enqueued ")
}
