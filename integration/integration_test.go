//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// TestDependencies pings every backing service the deployment wires up. Each
// subtest skips itself when its address is not configured, so a partial
// docker-compose stack still gets a useful run.
func TestDependencies(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	t.Run("postgres", func(t *testing.T) {
		dbURL := os.Getenv("DATABASE_URL")
		if dbURL == "" {
			t.Skip("DATABASE_URL not set")
		}
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			t.Fatalf("db connect failed: %v", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			t.Fatalf("db ping failed: %v", err)
		}
	})

	t.Run("kafka", func(t *testing.T) {
		brokers := strings.Split(os.Getenv("KAFKA_BROKERS"), ",")
		if len(brokers) == 0 || strings.TrimSpace(brokers[0]) == "" {
			t.Skip("KAFKA_BROKERS not set")
		}
		conn, err := kafka.Dial("tcp", strings.TrimSpace(brokers[0]))
		if err != nil {
			t.Fatalf("kafka dial failed: %v", err)
		}
		_ = conn.Close()
	})

	t.Run("redis", func(t *testing.T) {
		redisAddr := os.Getenv("REDIS_ADDR")
		if redisAddr == "" {
			t.Skip("REDIS_ADDR not set")
		}
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			t.Fatalf("redis ping failed: %v", err)
		}
	})

	t.Run("influx", func(t *testing.T) {
		influxURL := os.Getenv("INFLUX_URL")
		if influxURL == "" {
			t.Skip("INFLUX_URL not set")
		}
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(influxURL, "/")+"/health", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("influx health failed: %v", err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			t.Fatalf("influx health status: %d", resp.StatusCode)
		}
	})

	t.Run("asynq", func(t *testing.T) {
		asynqRedis := os.Getenv("ASYNQ_REDIS_ADDR")
		if asynqRedis == "" {
			t.Skip("ASYNQ_REDIS_ADDR not set")
		}
		inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: asynqRedis})
		defer inspector.Close()
		if _, err := inspector.Queues(); err != nil {
			t.Fatalf("asynq inspector failed: %v", err)
		}
	})
}

type apiClient struct {
	base   string
	apiKey string
}

func (c *apiClient) do(t *testing.T, method, path string, body any, wantStatus int) map[string]any {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s status = %d, want %d, body: %s", method, path, resp.StatusCode, wantStatus, raw)
	}
	var decoded map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode response from %s: %v", path, err)
		}
	}
	return decoded
}

func (c *apiClient) get(t *testing.T, path string, wantStatus int) map[string]any {
	return c.do(t, http.MethodGet, path, nil, wantStatus)
}

func (c *apiClient) post(t *testing.T, path string, body any, wantStatus int) map[string]any {
	return c.do(t, http.MethodPost, path, body, wantStatus)
}

// TestCaseLifecycle drives one case through the full workflow against a
// running API: register, assign, start, submit, rework, resubmit, accept.
// Needs API_BASE_URL plus API keys for an ADMIN and a WORKER account.
func TestCaseLifecycle(t *testing.T) {
	base := strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	adminKey := os.Getenv("ADMIN_API_KEY")
	workerKey := os.Getenv("WORKER_API_KEY")
	if base == "" || adminKey == "" || workerKey == "" {
		t.Skip("API_BASE_URL, ADMIN_API_KEY and WORKER_API_KEY not set")
	}
	admin := &apiClient{base: base, apiKey: adminKey}
	worker := &apiClient{base: base, apiKey: workerKey}

	me := worker.get(t, "/api/v1/me", http.StatusOK)
	workerID, _ := me["user_id"].(string)
	if workerID == "" {
		t.Fatalf("worker /me returned no user_id: %v", me)
	}

	caseUID := fmt.Sprintf("it-%d", time.Now().UnixNano())
	reg := admin.post(t, "/api/v1/admin/cases/bulk-register", map[string]any{
		"cases": []map[string]any{{
			"case_uid":     caseUID,
			"display_name": "lifecycle check " + caseUID,
			"project_name": "integration",
			"part_name":    "liver",
			"difficulty":   "NORMAL",
		}},
	}, http.StatusCreated)
	if created, _ := reg["created"].(float64); created != 1 {
		t.Fatalf("bulk-register created = %v, want 1", reg["created"])
	}

	list := admin.get(t, "/api/v1/admin/cases?status=TODO&limit=200", http.StatusOK)
	caseID := ""
	if cases, ok := list["cases"].([]any); ok {
		for _, item := range cases {
			row, _ := item.(map[string]any)
			if row["case_uid"] == caseUID {
				caseID, _ = row["case_id"].(string)
				break
			}
		}
	}
	if caseID == "" {
		t.Fatalf("registered case %s not found in TODO listing", caseUID)
	}

	assign := admin.post(t, "/api/v1/admin/cases/assign", map[string]any{
		"case_id":          caseID,
		"assigned_user_id": workerID,
	}, http.StatusOK)
	if assign["status"] != "TODO" {
		t.Fatalf("status after assign = %v, want TODO", assign["status"])
	}

	start := worker.post(t, "/api/v1/worklogs", map[string]any{
		"case_id":     caseID,
		"action_type": "START",
	}, http.StatusCreated)
	if start["action_type"] != "START" {
		t.Fatalf("worklog action = %v, want START", start["action_type"])
	}

	submitBody := map[string]any{
		"case_id":         caseID,
		"idempotency_key": caseUID + "-submit-1",
	}
	submit := worker.post(t, "/api/v1/submit", submitBody, http.StatusOK)
	if submit["case_status"] != "SUBMITTED" {
		t.Fatalf("status after submit = %v, want SUBMITTED", submit["case_status"])
	}
	if ws, ok := submit["work_seconds"].(float64); !ok || ws < 0 {
		t.Fatalf("work_seconds = %v, want >= 0", submit["work_seconds"])
	}

	// Same key again must replay, not double-submit.
	replay := worker.post(t, "/api/v1/submit", submitBody, http.StatusOK)
	if replay["event_id"] != submit["event_id"] {
		t.Fatalf("replayed event_id = %v, want %v", replay["event_id"], submit["event_id"])
	}
	if replay["worklog_id"].(float64) != 0 {
		t.Fatalf("replayed worklog_id = %v, want 0", replay["worklog_id"])
	}

	// Stale revision must be rejected without touching the case.
	staleResp := admin.post(t, "/api/v1/events", map[string]any{
		"case_id":           caseID,
		"event_type":        "REWORK_REQUESTED",
		"idempotency_key":   caseUID + "-rework-stale",
		"expected_revision": 99,
	}, http.StatusConflict)
	if errObj, ok := staleResp["error"].(map[string]any); !ok || errObj["code"] != "CONFLICT" {
		t.Fatalf("stale revision error = %v, want CONFLICT", staleResp)
	}

	rework := admin.post(t, "/api/v1/events", map[string]any{
		"case_id":           caseID,
		"event_type":        "REWORK_REQUESTED",
		"idempotency_key":   caseUID + "-rework",
		"expected_revision": 1,
		"event_code":        "SEGMENT_MISMATCH",
	}, http.StatusOK)
	if rework["case_status"] != "REWORK" {
		t.Fatalf("status after rework = %v, want REWORK", rework["case_status"])
	}
	if rework["case_revision"].(float64) != 2 {
		t.Fatalf("revision after rework = %v, want 2", rework["case_revision"])
	}

	restart := worker.post(t, "/api/v1/worklogs", map[string]any{
		"case_id":     caseID,
		"action_type": "REWORK_START",
	}, http.StatusCreated)
	if restart["action_type"] != "REWORK_START" {
		t.Fatalf("worklog action = %v, want REWORK_START", restart["action_type"])
	}

	worker.post(t, "/api/v1/submit", map[string]any{
		"case_id":         caseID,
		"idempotency_key": caseUID + "-submit-2",
	}, http.StatusOK)

	accept := admin.post(t, "/api/v1/events", map[string]any{
		"case_id":         caseID,
		"event_type":      "ACCEPTED",
		"idempotency_key": caseUID + "-accept",
	}, http.StatusOK)
	if accept["case_status"] != "ACCEPTED" {
		t.Fatalf("status after accept = %v, want ACCEPTED", accept["case_status"])
	}

	// Terminal state rejects further transitions.
	errResp := admin.post(t, "/api/v1/events", map[string]any{
		"case_id":         caseID,
		"event_type":      "REWORK_REQUESTED",
		"idempotency_key": caseUID + "-rework-after-accept",
	}, http.StatusBadRequest)
	if errObj, ok := errResp["error"].(map[string]any); !ok || errObj["code"] != "INVALID_ARGUMENT" {
		t.Fatalf("post-accept transition error = %v, want INVALID_ARGUMENT", errResp)
	}

	detail := admin.get(t, "/api/v1/admin/cases/"+caseID+"/with-metrics", http.StatusOK)
	caseObj, _ := detail["case"].(map[string]any)
	if caseObj["status"] != "ACCEPTED" {
		t.Fatalf("detail status = %v, want ACCEPTED", caseObj["status"])
	}
	metrics, _ := detail["metrics"].(map[string]any)
	if _, ok := metrics["man_days"]; !ok {
		t.Fatalf("detail metrics missing man_days: %v", detail)
	}
	worklogs, _ := detail["worklogs"].([]any)
	if len(worklogs) < 4 {
		t.Fatalf("worklog count = %d, want >= 4 (start, submit, rework start, submit)", len(worklogs))
	}
	events, _ := detail["events"].([]any)
	if len(events) < 6 {
		t.Fatalf("event count = %d, want >= 6", len(events))
	}
	first, _ := events[0].(map[string]any)
	if first["from_status"] != "TODO" || first["to_status"] != "IN_PROGRESS" {
		t.Fatalf("first event transition = %v -> %v, want TODO -> IN_PROGRESS", first["from_status"], first["to_status"])
	}
}
