package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/notifier"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/optimizer"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/platforms"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/schedules"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/scheduling"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/solver"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/timing"
	"github.com/jsimoes215/AI-Content-Automation-sub005/internal/workers"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/api/almanac"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/logging"
	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/pagination"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memStore is an in-memory schedule and trial store for handler tests
type memStore struct {
	mu        sync.Mutex
	schedules map[string]scheduling.Schedule
	items     map[string]scheduling.ScheduleItem
	trials    map[string]scheduling.OptimizationTrial
}

func newMemStore() *memStore {
	return &memStore{
		schedules: make(map[string]scheduling.Schedule),
		items:     make(map[string]scheduling.ScheduleItem),
		trials:    make(map[string]scheduling.OptimizationTrial),
	}
}

func (m *memStore) CreateSchedule(ctx context.Context, schedule *scheduling.Schedule, items []scheduling.ScheduleItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[schedule.ID] = *schedule
	for _, item := range items {
		m.items[item.ID] = item
	}
	return nil
}

func (m *memStore) GetSchedule(ctx context.Context, id string) (*scheduling.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, scheduling.NewNotFoundError("schedule %s not found", id)
	}
	return &s, nil
}

func (m *memStore) UpdateSchedule(ctx context.Context, schedule *scheduling.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[schedule.ID] = *schedule
	return nil
}

func (m *memStore) ListSchedulesPastDeadline(ctx context.Context, now time.Time) ([]scheduling.Schedule, error) {
	return nil, nil
}

func (m *memStore) GetItem(ctx context.Context, id string) (*scheduling.ScheduleItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, scheduling.NewNotFoundError("item %s not found", id)
	}
	return &item, nil
}

func (m *memStore) GetItems(ctx context.Context, ids []string) ([]scheduling.ScheduleItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []scheduling.ScheduleItem
	for _, id := range ids {
		if item, ok := m.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *memStore) UpdateItem(ctx context.Context, item *scheduling.ScheduleItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = *item
	return nil
}

func (m *memStore) ListScheduleItems(ctx context.Context, scheduleID string, params *pagination.Params) ([]scheduling.ScheduleItem, string, error) {
	items, err := m.AllScheduleItems(ctx, scheduleID)
	return items, "", err
}

func (m *memStore) AllScheduleItems(ctx context.Context, scheduleID string) ([]scheduling.ScheduleItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []scheduling.ScheduleItem
	for _, item := range m.items {
		if item.ScheduleID == scheduleID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) SaveTrial(ctx context.Context, trial *scheduling.OptimizationTrial) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trials[trial.ID] = *trial
	return nil
}

func (m *memStore) GetTrial(ctx context.Context, id string) (*scheduling.OptimizationTrial, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trial, ok := m.trials[id]
	if !ok {
		return nil, scheduling.NewNotFoundError("trial %s not found", id)
	}
	return &trial, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *memStore, *schedules.Manager) {
	t.Helper()
	logger := logging.NewLogger()
	registry := platforms.NewRegistry()
	store := newMemStore()
	model := timing.NewModel(registry, timing.DefaultConfig())
	profiles := timing.NewStore()
	slv := solver.New(model, logger, solver.DefaultConfig())
	hub := notifier.NewHub(logger)
	manager := schedules.NewManager(store, registry, hub, nil, logger, schedules.DefaultConfig())
	orch := optimizer.NewOrchestrator(model, profiles, registry, slv, store, store, manager, logger)

	h := NewAlmanacHandlers(manager, orch, profiles, hub, workers.NewPool(2, logger), nil, logger)
	router := gin.New()
	h.RegisterRoutes(router)
	router.NoRoute(h.HandleNotFound)
	return router, store, manager
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response: %v (body %s)", err, w.Body.String())
	}
}

func createScheduleBody() map[string]interface{} {
	return map[string]interface{}{
		"title":    "spring launch",
		"timezone": "UTC",
		"items": []map[string]interface{}{
			{"content_id": "c1", "platform": "youtube"},
			{"content_id": "c2", "platform": "tiktok"},
		},
	}
}

func TestCreateScheduleEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/schedules", createScheduleBody())
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}

	var resp almanac.ScheduleResponse
	decodeInto(t, w, &resp)
	if resp.Schedule == nil || resp.Schedule.State != scheduling.SchedulePending {
		t.Fatalf("unexpected schedule: %+v", resp.Schedule)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(resp.Items))
	}
}

func TestCreateScheduleEndpointValidation(t *testing.T) {
	router, _, _ := newTestRouter(t)

	body := createScheduleBody()
	body["items"] = []map[string]interface{}{}
	w := doJSON(t, router, http.MethodPost, "/schedules", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", w.Code)
	}

	var resp almanac.ErrorResponse
	decodeInto(t, w, &resp)
	if resp.Code != string(scheduling.CodeValidation) {
		t.Fatalf("error code %s, want validation", resp.Code)
	}
}

func TestGetScheduleEndpointNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/schedules/ghost", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", w.Code)
	}
}

func TestCancelScheduleEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	var created almanac.ScheduleResponse
	decodeInto(t, doJSON(t, router, http.MethodPost, "/schedules", createScheduleBody()), &created)

	w := doJSON(t, router, http.MethodPost, "/schedules/"+created.Schedule.ID+"/cancel", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}
	var resp almanac.ScheduleResponse
	decodeInto(t, w, &resp)
	if resp.Schedule.State != scheduling.ScheduleCanceled {
		t.Fatalf("state %s, want canceled", resp.Schedule.State)
	}

	// Terminal schedules cannot be canceled again
	if w := doJSON(t, router, http.MethodPost, "/schedules/"+created.Schedule.ID+"/cancel", nil); w.Code != http.StatusConflict {
		t.Fatalf("double cancel status %d, want 409", w.Code)
	}
}

func TestReportItemResultEndpoint(t *testing.T) {
	router, store, _ := newTestRouter(t)

	var created almanac.ScheduleResponse
	decodeInto(t, doJSON(t, router, http.MethodPost, "/schedules", createScheduleBody()), &created)

	item := created.Items[0]
	when := time.Now().UTC()
	item.State = scheduling.ItemScheduled
	item.ScheduledTime = &when
	if err := store.UpdateItem(context.Background(), &item); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := doJSON(t, router, http.MethodPost, "/items/"+item.ID+"/result", almanac.ItemResultRequest{
		Outcome: "published",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}
	var resp almanac.ItemResponse
	decodeInto(t, w, &resp)
	if resp.Item.State != scheduling.ItemPublished {
		t.Fatalf("item state %s, want published", resp.Item.State)
	}

	// Unknown outcome is a validation error
	w = doJSON(t, router, http.MethodPost, "/items/"+item.ID+"/result", almanac.ItemResultRequest{
		Outcome: "vanished",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad outcome status %d, want 400", w.Code)
	}
}

func TestRecommendationsEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet,
		"/recommendations?platforms=youtube&window_start=2026-03-03T00:00:00Z&window_end=2026-03-04T00:00:00Z&step_minutes=60&limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}

	var resp almanac.RecommendationsResponse
	decodeInto(t, w, &resp)
	if len(resp.Slots) != 5 {
		t.Fatalf("got %d slots, want 5", len(resp.Slots))
	}
	if resp.NextCursor == "" {
		t.Fatal("expected a next cursor for the remaining slots")
	}
	if _, ok := resp.ProfileVersions["youtube"]; !ok {
		t.Fatalf("missing profile version: %v", resp.ProfileVersions)
	}

	if w := doJSON(t, router, http.MethodGet, "/recommendations?window_start=bogus", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad window status %d, want 400", w.Code)
	}
}

func TestOptimizeScheduleEndpointPreview(t *testing.T) {
	router, store, _ := newTestRouter(t)

	var created almanac.ScheduleResponse
	decodeInto(t, doJSON(t, router, http.MethodPost, "/schedules", createScheduleBody()), &created)

	body := map[string]interface{}{
		"constraints": map[string]interface{}{
			"horizon": map[string]string{
				"start": "2026-03-03T00:00:00Z",
				"end":   "2026-03-04T00:00:00Z",
			},
		},
	}
	w := doJSON(t, router, http.MethodPost, "/schedules/"+created.Schedule.ID+"/optimize", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}

	var resp almanac.TrialResponse
	decodeInto(t, w, &resp)
	if resp.Trial == nil || resp.Trial.Applied {
		t.Fatalf("expected unapplied trial, got %+v", resp.Trial)
	}
	if len(resp.Trial.Changes) != 2 {
		t.Fatalf("got %d changes, want 2", len(resp.Trial.Changes))
	}

	// Preview must not move stored items
	for _, item := range created.Items {
		stored, _ := store.GetItem(context.Background(), item.ID)
		if stored.State != scheduling.ItemPending {
			t.Fatalf("preview mutated item %s to %s", item.ID, stored.State)
		}
	}

	// The trial is retrievable afterwards
	if w := doJSON(t, router, http.MethodGet, "/trials/"+resp.Trial.ID, nil); w.Code != http.StatusOK {
		t.Fatalf("get trial status %d", w.Code)
	}
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", w.Code)
	}
	var resp almanac.ErrorResponse
	decodeInto(t, w, &resp)
	if resp.Code != string(scheduling.CodeNotFound) {
		t.Fatalf("error code %s, want not_found", resp.Code)
	}
}
