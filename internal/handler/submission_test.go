package handler_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// saveRuns stores n submissions for token's user through the API.
func saveRuns(t *testing.T, env *testEnv, token string, n int) []string {
	t.Helper()
	var ids []string
	for i := 0; i < n; i++ {
		rr := env.do(t, http.MethodPost, "/api/code/run-and-save", token, `{"code":"print(1)"}`)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		ids = append(ids, decodeBody(t, rr)["submissionId"].(string))
	}
	return ids
}

func TestSubmissionHandler_Create(t *testing.T) {
	env := newTestEnv(t, okResult())
	token := env.register(t, "saver@example.com")

	rr := env.do(t, http.MethodPost, "/api/submissions", token,
		`{"code":"print(1/0)","output":"","status":"error","executionTime":0.012,"errorType":"runtime","hints":["check the divisor"]}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "runtime_error", body["status"], "legacy error status is stored as runtime_error")
	assert.Equal(t, "python", body["language"])
	assert.Equal(t, []any{"check the divisor"}, body["hints"])
	assert.Empty(t, env.exec.CapturedReq.Code, "nothing is executed")

	got := decodeBody(t, env.do(t, http.MethodGet, "/api/submissions/"+body["id"].(string), token, ""))
	assert.Equal(t, "print(1/0)", got["code"])

	t.Run("validation", func(t *testing.T) {
		for _, b := range []string{
			`{"code":"","status":"success"}`,
			`{"code":"x","status":"exploded"}`,
			`{"code":"x","status":"success","executionTime":-1}`,
			`not json`,
		} {
			rr := env.do(t, http.MethodPost, "/api/submissions", token, b)
			assert.Equal(t, http.StatusBadRequest, rr.Code, b)
		}
	})

	t.Run("requires auth", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/submissions", "", `{"code":"x","status":"success"}`)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestSubmissionHandler_List(t *testing.T) {
	env := newTestEnv(t, okResult())
	token := env.register(t, "lister@example.com")
	ids := saveRuns(t, env, token, 3)

	t.Run("paging and hasMore", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/submissions?limit=2", token, "")
		require.Equal(t, http.StatusOK, rr.Code)
		body := decodeBody(t, rr)
		assert.EqualValues(t, 3, body["total"])
		assert.EqualValues(t, 2, body["limit"])
		assert.EqualValues(t, 0, body["offset"])
		assert.Equal(t, true, body["hasMore"])

		subs := body["submissions"].([]any)
		require.Len(t, subs, 2)
		assert.Equal(t, ids[2], subs[0].(map[string]any)["id"], "newest first")
	})

	t.Run("last page", func(t *testing.T) {
		body := decodeBody(t, env.do(t, http.MethodGet, "/api/submissions?limit=2&offset=2", token, ""))
		assert.Equal(t, false, body["hasMore"])
		assert.Len(t, body["submissions"], 1)
	})

	t.Run("limit clamped", func(t *testing.T) {
		body := decodeBody(t, env.do(t, http.MethodGet, "/api/submissions?limit=5000", token, ""))
		assert.EqualValues(t, 100, body["limit"])
	})

	t.Run("status filter", func(t *testing.T) {
		body := decodeBody(t, env.do(t, http.MethodGet, "/api/submissions?status=error", token, ""))
		assert.EqualValues(t, 0, body["total"])
		assert.NotNil(t, body["submissions"], "empty list is [], not null")
	})

	t.Run("bad params", func(t *testing.T) {
		for _, q := range []string{"limit=abc", "offset=-1", "status=exploded"} {
			rr := env.do(t, http.MethodGet, "/api/submissions?"+q, token, "")
			assert.Equal(t, http.StatusBadRequest, rr.Code, q)
		}
	})

	t.Run("other users see nothing", func(t *testing.T) {
		other := env.register(t, "other@example.com")
		body := decodeBody(t, env.do(t, http.MethodGet, "/api/submissions", other, ""))
		assert.EqualValues(t, 0, body["total"])
	})
}

func TestSubmissionHandler_GetAndDelete(t *testing.T) {
	env := newTestEnv(t, okResult())
	owner := env.register(t, "owner@example.com")
	intruder := env.register(t, "intruder@example.com")
	id := saveRuns(t, env, owner, 1)[0]

	rr := env.do(t, http.MethodGet, "/api/submissions/"+id, owner, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "print(1)", decodeBody(t, rr)["code"])

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/api/submissions/"+id, intruder, "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/submissions/nope", owner, "").Code)

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodDelete, "/api/submissions/"+id, intruder, "").Code)

	rr = env.do(t, http.MethodDelete, "/api/submissions/"+id, owner, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/submissions/"+id, owner, "").Code)
}

func TestSubmissionHandler_Stats(t *testing.T) {
	env := newTestEnv(t, okResult())
	token := env.register(t, "stats@example.com")
	saveRuns(t, env, token, 2)

	rr := env.do(t, http.MethodGet, "/api/submissions/stats", token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.EqualValues(t, 2, body["totalSubmissions"])
	assert.EqualValues(t, 100, body["successRate"])
	assert.EqualValues(t, 0.1, body["avgExecutionTime"])
	assert.Equal(t, map[string]any{"python": float64(2)}, body["languages"])
}

func TestSubmissionHandler_RequiresAuth(t *testing.T) {
	env := newTestEnv(t, okResult())
	for _, path := range []string{"/api/submissions", "/api/submissions/stats", "/api/submissions/x"} {
		rr := env.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}
