package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"decisionengine/internal/clock"
	"decisionengine/internal/domain"
	"decisionengine/internal/ingest"
	"decisionengine/internal/notifyqueue"
	"decisionengine/internal/permanent"
	"decisionengine/internal/store"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// flakyStore fails SaveDecision for the listed users or for the next n calls.
type flakyStore struct {
	*store.MemoryStore
	mu        sync.Mutex
	failUsers map[string]bool
	failNext  int
}

func (s *flakyStore) SaveDecision(ctx context.Context, decision domain.Decision) error {
	s.mu.Lock()
	fail := s.failUsers[decision.UserID] || s.failNext > 0
	if s.failNext > 0 {
		s.failNext--
	}
	s.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return s.MemoryStore.SaveDecision(ctx, decision)
}

type failingProducer struct{ calls int }

func (p *failingProducer) Enqueue(context.Context, notifyqueue.Job) error {
	p.calls++
	return errors.New("queue unavailable")
}

func (p *failingProducer) Close() error { return nil }

func seedStore(t *testing.T) *store.MemoryStore {
	t.Helper()

	st := store.NewMemoryStore(func() time.Time { return testNow })
	rules := []domain.Rule{
		{RuleID: "R-01", Condition: "internet_today_gb > 15", Action: domain.ActionDataUsageWarning, Priority: 2, IsActive: true},
		{RuleID: "R-02", Condition: "spend_today_try > 1000", Action: domain.ActionSpendAlert, Priority: 3, IsActive: true},
		{RuleID: "R-03", Condition: "content_minutes_today > 240", Action: domain.ActionContentCooldown, Priority: 4, IsActive: true},
		{RuleID: "R-04", Condition: "internet_today_gb > 20 AND spend_today_try > 1500", Action: domain.ActionCriticalAlert, Priority: 1, IsActive: true},
	}
	for _, rule := range rules {
		if err := st.PutRule(rule); err != nil {
			t.Fatalf("put rule: %v", err)
		}
	}
	return st
}

func putState(t *testing.T, st *store.MemoryStore, state domain.UserState) {
	t.Helper()
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = testNow
	}
	state.RiskLevel = domain.DeriveRiskLevel(state)
	if err := st.PutUserState(state); err != nil {
		t.Fatalf("put state: %v", err)
	}
}

func newTestRecorder(t *testing.T, st store.Store, opts RecorderOptions) *Recorder {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = clock.Fixed{At: testNow}
	}
	recorder, err := NewRecorder(st, opts)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	return recorder
}

func TestProcessRecordsWinningRule(t *testing.T) {
	t.Parallel()

	st := seedStore(t)
	putState(t, st, domain.UserState{UserID: "U1", InternetTodayGB: 16.5})
	putState(t, st, domain.UserState{UserID: "U2", SpendTodayTRY: 1200, ContentMinutesToday: 300})
	producer := notifyqueue.NewMemoryProducer(0)
	recorder := newTestRecorder(t, st, RecorderOptions{Producer: producer})

	bundle, err := recorder.Process(context.Background(), "U1", domain.CategoryUnknown)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if bundle == nil {
		t.Fatalf("expected decision bundle")
	}
	if bundle.Decision.DecisionID != "D-901" || bundle.Action.ActionID != "A-1001" {
		t.Fatalf("unexpected ids %s/%s", bundle.Decision.DecisionID, bundle.Action.ActionID)
	}
	if bundle.Decision.SelectedAction != domain.ActionDataUsageWarning {
		t.Fatalf("unexpected action %s", bundle.Decision.SelectedAction)
	}
	if bundle.Decision.SuppressedActions != nil {
		t.Fatalf("expected nil suppressed actions, got %v", bundle.Decision.SuppressedActions)
	}
	if !strings.HasPrefix(bundle.Action.Message, "Günlük internet kullanımınız 15GB") {
		t.Fatalf("unexpected message %q", bundle.Action.Message)
	}
	if !bundle.Decision.CreatedAt.Equal(testNow) || !bundle.Action.CreatedAt.Equal(testNow) {
		t.Fatalf("records must carry clock time")
	}

	var snapshot map[string]any
	if err := json.Unmarshal(bundle.Decision.UserStateSnapshot, &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot["internet_today_gb"] != 16.5 || snapshot["user_id"] != "U1" || snapshot["risk_level"] != "HIGH" {
		t.Fatalf("unexpected snapshot %v", snapshot)
	}

	second, err := recorder.Process(context.Background(), "U2", domain.CategoryUnknown)
	if err != nil {
		t.Fatalf("process second: %v", err)
	}
	if second.Decision.DecisionID != "D-902" || second.Action.ActionID != "A-1002" {
		t.Fatalf("unexpected ids %s/%s", second.Decision.DecisionID, second.Action.ActionID)
	}
	if second.Decision.SelectedAction != domain.ActionSpendAlert {
		t.Fatalf("expected SPEND_ALERT, got %s", second.Decision.SelectedAction)
	}
	if len(second.Decision.SuppressedActions) != 1 || second.Decision.SuppressedActions[0] != domain.ActionContentCooldown {
		t.Fatalf("unexpected suppressed %v", second.Decision.SuppressedActions)
	}

	if len(st.Decisions()) != 2 || len(st.Actions()) != 2 {
		t.Fatalf("expected 2 decisions and actions, got %d/%d", len(st.Decisions()), len(st.Actions()))
	}
	jobs := producer.Jobs()
	if len(jobs) != 2 || jobs[0].ID != "A-1001" || jobs[1].Decision.DecisionID != "D-902" {
		t.Fatalf("unexpected queued jobs %+v", jobs)
	}
}

func TestProcessSeedsIDsFromExistingRecords(t *testing.T) {
	t.Parallel()

	st := seedStore(t)
	ctx := context.Background()
	if err := st.SaveDecision(ctx, domain.Decision{DecisionID: "D-1200"}); err != nil {
		t.Fatalf("save decision: %v", err)
	}
	if err := st.SaveAction(ctx, domain.Action{ActionID: "A-1005"}); err != nil {
		t.Fatalf("save action: %v", err)
	}
	putState(t, st, domain.UserState{UserID: "U1", InternetTodayGB: 16})
	recorder := newTestRecorder(t, st, RecorderOptions{})

	bundle, err := recorder.Process(ctx, "U1", domain.CategoryUnknown)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if bundle.Decision.DecisionID != "D-1201" || bundle.Action.ActionID != "A-1006" {
		t.Fatalf("unexpected ids %s/%s", bundle.Decision.DecisionID, bundle.Action.ActionID)
	}
}

func TestProcessHonoursConfiguredBaselines(t *testing.T) {
	t.Parallel()

	st := seedStore(t)
	putState(t, st, domain.UserState{UserID: "U1", InternetTodayGB: 16})
	recorder := newTestRecorder(t, st, RecorderOptions{DecisionBaseline: 10, ActionBaseline: 20})

	bundle, err := recorder.Process(context.Background(), "U1", domain.CategoryUnknown)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if bundle.Decision.DecisionID != "D-11" || bundle.Action.ActionID != "A-21" {
		t.Fatalf("unexpected ids %s/%s", bundle.Decision.DecisionID, bundle.Action.ActionID)
	}
}

func TestProcessMissingStateReturnsNil(t *testing.T) {
	t.Parallel()

	st := seedStore(t)
	recorder := newTestRecorder(t, st, RecorderOptions{})

	bundle, err := recorder.Process(context.Background(), "ghost", domain.CategoryUnknown)
	if err != nil || bundle != nil {
		t.Fatalf("expected nil result, got %+v err=%v", bundle, err)
	}
	if len(st.Decisions()) != 0 {
		t.Fatalf("no decision must be recorded")
	}
}

func TestProcessNothingTriggeredRecordsNothing(t *testing.T) {
	t.Parallel()

	st := seedStore(t)
	putState(t, st, domain.UserState{UserID: "U1", InternetTodayGB: 3, SpendTodayTRY: 20})
	recorder := newTestRecorder(t, st, RecorderOptions{})

	bundle, err := recorder.Process(context.Background(), "U1", domain.CategoryUnknown)
	if err != nil || bundle != nil {
		t.Fatalf("expected nil result, got %+v err=%v", bundle, err)
	}
	if len(st.Decisions()) != 0 || len(st.Actions()) != 0 {
		t.Fatalf("no record must be written")
	}
}

func TestProcessCategoryScopesRules(t *testing.T) {
	t.Parallel()

	st := seedStore(t)
	putState(t, st, domain.UserState{UserID: "U1", InternetTodayGB: 25, SpendTodayTRY: 1800})
	recorder := newTestRecorder(t, st, RecorderOptions{})

	bundle, err := recorder.Process(context.Background(), "U1", domain.CategoryPayment)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if bundle.Decision.SelectedAction != domain.ActionCriticalAlert {
		t.Fatalf("expected CRITICAL_ALERT, got %s", bundle.Decision.SelectedAction)
	}
	if got := strings.Join(bundle.Decision.TriggeredRules, ","); got != "R-04,R-02" {
		t.Fatalf("payment scope must drop internet-only rules, got %s", got)
	}
}

func TestProcessBurnsIDOnSaveFailure(t *testing.T) {
	t.Parallel()

	st := &flakyStore{MemoryStore: seedStore(t), failNext: 1}
	putState(t, st.MemoryStore, domain.UserState{UserID: "U1", InternetTodayGB: 16})
	recorder := newTestRecorder(t, st, RecorderOptions{})

	if _, err := recorder.Process(context.Background(), "U1", domain.CategoryUnknown); err == nil {
		t.Fatalf("expected save failure")
	}
	bundle, err := recorder.Process(context.Background(), "U1", domain.CategoryUnknown)
	if err != nil {
		t.Fatalf("process retry: %v", err)
	}
	if bundle.Decision.DecisionID != "D-902" || bundle.Action.ActionID != "A-1002" {
		t.Fatalf("failed allocation must be burned, got %s/%s", bundle.Decision.DecisionID, bundle.Action.ActionID)
	}
	if len(st.Decisions()) != 1 {
		t.Fatalf("expected one persisted decision, got %d", len(st.Decisions()))
	}
}

func TestProcessAllContinuesPastFailures(t *testing.T) {
	t.Parallel()

	st := &flakyStore{MemoryStore: seedStore(t), failUsers: map[string]bool{"U2": true}}
	putState(t, st.MemoryStore, domain.UserState{UserID: "U1", InternetTodayGB: 16})
	putState(t, st.MemoryStore, domain.UserState{UserID: "U2", SpendTodayTRY: 1500})
	putState(t, st.MemoryStore, domain.UserState{UserID: "U3", ContentMinutesToday: 500})
	putState(t, st.MemoryStore, domain.UserState{UserID: "U4"})
	recorder := newTestRecorder(t, st, RecorderOptions{})

	bundles, err := recorder.ProcessAll(context.Background(), domain.CategoryUnknown)
	if err == nil || !strings.Contains(err.Error(), "user U2") {
		t.Fatalf("expected joined error naming U2, got %v", err)
	}
	if len(bundles) != 2 {
		t.Fatalf("expected 2 bundles, got %d", len(bundles))
	}
	if bundles[0].Decision.UserID != "U1" || bundles[1].Decision.UserID != "U3" {
		t.Fatalf("unexpected bundle order %s,%s", bundles[0].Decision.UserID, bundles[1].Decision.UserID)
	}
	if bundles[1].Decision.DecisionID != "D-903" {
		t.Fatalf("U2 allocation must be burned, got %s", bundles[1].Decision.DecisionID)
	}
}

func TestProcessConcurrentCallsNeverShareIDs(t *testing.T) {
	t.Parallel()

	st := seedStore(t)
	const users = 24
	for i := 0; i < users; i++ {
		putState(t, st, domain.UserState{UserID: "U" + string(rune('A'+i)), InternetTodayGB: 16})
	}
	recorder := newTestRecorder(t, st, RecorderOptions{})

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			if _, err := recorder.Process(context.Background(), userID, domain.CategoryUnknown); err != nil {
				t.Errorf("process %s: %v", userID, err)
			}
		}("U" + string(rune('A'+i)))
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, decision := range st.Decisions() {
		if seen[decision.DecisionID] {
			t.Fatalf("duplicate decision id %s", decision.DecisionID)
		}
		seen[decision.DecisionID] = true
	}
	if len(seen) != users {
		t.Fatalf("expected %d decisions, got %d", users, len(seen))
	}
}

func TestProcessPublishFailureKeepsDecision(t *testing.T) {
	t.Parallel()

	st := seedStore(t)
	putState(t, st, domain.UserState{UserID: "U1", InternetTodayGB: 16})
	producer := &failingProducer{}
	recorder := newTestRecorder(t, st, RecorderOptions{Producer: producer})

	bundle, err := recorder.Process(context.Background(), "U1", domain.CategoryUnknown)
	if err != nil || bundle == nil {
		t.Fatalf("publish failure must not fail decision: %v", err)
	}
	if producer.calls != 1 || len(st.Actions()) != 1 {
		t.Fatalf("unexpected producer calls=%d actions=%d", producer.calls, len(st.Actions()))
	}
}

func TestMessageOverridesAndFallback(t *testing.T) {
	t.Parallel()

	st := seedStore(t)
	if err := st.PutRule(domain.Rule{RuleID: "R-09", Condition: "content_minutes_today > 1", Action: "CUSTOM_ACTION", Priority: 9, IsActive: true}); err != nil {
		t.Fatalf("put rule: %v", err)
	}
	putState(t, st, domain.UserState{UserID: "U1", InternetTodayGB: 16.5})
	putState(t, st, domain.UserState{UserID: "U2", ContentMinutesToday: 30})

	messages, err := NewMessageCatalog(map[string]string{
		"data_usage_warning": "Bugün {{fmtNumber .InternetTodayGB}} GB kullandınız.",
	}, nil)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	recorder := newTestRecorder(t, st, RecorderOptions{Messages: messages})

	first, err := recorder.Process(context.Background(), "U1", domain.CategoryUnknown)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if first.Action.Message != "Bugün 16.5 GB kullandınız." {
		t.Fatalf("unexpected override message %q", first.Action.Message)
	}

	second, err := recorder.Process(context.Background(), "U2", domain.CategoryUnknown)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if second.Action.Message != "Bildirim: CUSTOM_ACTION" {
		t.Fatalf("unexpected fallback message %q", second.Action.Message)
	}
}

func TestMessageRenderFailureFallsBackToBody(t *testing.T) {
	t.Parallel()

	messages, err := NewMessageCatalog(map[string]string{"SPEND_ALERT": "limit {{.Missing}}"}, nil)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if got := messages.Resolve(domain.ActionSpendAlert, domain.UserState{}); got != "limit {{.Missing}}" {
		t.Fatalf("expected raw body, got %q", got)
	}
	if _, err := NewMessageCatalog(map[string]string{"SPEND_ALERT": "{{"}, nil); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSimulateDoesNotPersist(t *testing.T) {
	t.Parallel()

	st := seedStore(t)
	recorder := newTestRecorder(t, st, RecorderOptions{})

	simulation, err := recorder.Simulate(context.Background(), map[string]float64{"internet_today_gb": 25, "spend_today_try": 1800}, domain.CategoryUnknown)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if simulation.Winner == nil || simulation.WouldSend != domain.ActionCriticalAlert {
		t.Fatalf("unexpected simulation %+v", simulation)
	}
	if len(simulation.Triggered) != 3 || len(simulation.Suppressed) != 2 {
		t.Fatalf("unexpected triggered/suppressed %d/%d", len(simulation.Triggered), len(simulation.Suppressed))
	}

	empty, err := recorder.Simulate(context.Background(), nil, domain.CategoryUnknown)
	if err != nil || empty.Winner != nil || empty.WouldSend != "" {
		t.Fatalf("expected empty simulation, got %+v err=%v", empty, err)
	}
	if len(st.Decisions()) != 0 {
		t.Fatalf("simulation must not persist")
	}
}

func TestPushAppliesEventAndProcesses(t *testing.T) {
	t.Parallel()

	st := seedStore(t)
	recorder := newTestRecorder(t, st, RecorderOptions{})
	ctx := context.Background()

	first := domain.Event{EventID: "E-1", UserID: "U1", Service: "superonline", Category: domain.CategoryUsage, Value: 10, Unit: "GB"}
	if err := recorder.Push(ctx, first); err != nil {
		t.Fatalf("push first: %v", err)
	}
	if len(st.Decisions()) != 0 {
		t.Fatalf("10 GB must not trigger")
	}

	second := domain.Event{EventID: "E-2", UserID: "U1", Service: "bip", Category: domain.CategoryUsage, Value: 6, Unit: "GB"}
	if err := recorder.Push(ctx, second); err != nil {
		t.Fatalf("push second: %v", err)
	}
	decisions := st.Decisions()
	if len(decisions) != 1 || decisions[0].SelectedAction != domain.ActionDataUsageWarning {
		t.Fatalf("expected DATA_USAGE_WARNING after 16 GB, got %+v", decisions)
	}

	err := recorder.Push(ctx, second)
	if !permanent.Is(err) || !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected permanent conflict for replay, got %v", err)
	}
}

func TestPushScopeByCategory(t *testing.T) {
	t.Parallel()

	event := domain.Event{EventID: "E-1", UserID: "U1", Service: "bip", Category: domain.CategoryUsage, Value: 1, Unit: "GB"}

	scopedStore := seedStore(t)
	putState(t, scopedStore, domain.UserState{UserID: "U1", SpendTodayTRY: 1200})
	scoped := newTestRecorder(t, scopedStore, RecorderOptions{ScopeByCategory: true})
	if err := scoped.Push(context.Background(), event); err != nil {
		t.Fatalf("push scoped: %v", err)
	}
	if len(scopedStore.Decisions()) != 0 {
		t.Fatalf("usage event must not re-fire spend rule when scoped")
	}

	openStore := seedStore(t)
	putState(t, openStore, domain.UserState{UserID: "U1", SpendTodayTRY: 1200})
	open := newTestRecorder(t, openStore, RecorderOptions{})
	if err := open.Push(context.Background(), event); err != nil {
		t.Fatalf("push open: %v", err)
	}
	decisions := openStore.Decisions()
	if len(decisions) != 1 || decisions[0].SelectedAction != domain.ActionSpendAlert {
		t.Fatalf("expected SPEND_ALERT without scoping, got %+v", decisions)
	}
}

func TestPushBatchSkipsReplayedEvents(t *testing.T) {
	t.Parallel()

	st := seedStore(t)
	recorder := newTestRecorder(t, st, RecorderOptions{})
	events := []domain.Event{
		{EventID: "E-1", UserID: "U1", Category: domain.CategoryPayment, Value: 600},
		{EventID: "E-1", UserID: "U1", Category: domain.CategoryPayment, Value: 600},
		{EventID: "E-2", UserID: "U1", Category: domain.CategoryPayment, Value: 500},
	}
	if err := recorder.PushBatch(context.Background(), events); err != nil {
		t.Fatalf("push batch: %v", err)
	}
	state, err := st.GetUserState(context.Background(), "U1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.SpendTodayTRY != 1100 {
		t.Fatalf("expected 1100 TRY, got %v", state.SpendTodayTRY)
	}
	if len(st.Decisions()) != 1 {
		t.Fatalf("expected one SPEND_ALERT decision, got %d", len(st.Decisions()))
	}
}

func TestPushDecisionFailureDoesNotDoubleCountRetries(t *testing.T) {
	t.Parallel()

	st := &flakyStore{MemoryStore: seedStore(t), failNext: 1}
	recorder := newTestRecorder(t, st, RecorderOptions{})
	handler := ingest.NewHTTPHandler(recorder, 1<<20, nil)
	post := func(body string) int {
		response := httptest.NewRecorder()
		handler.ServeHTTP(response, httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(body)))
		return response.Code
	}

	if code := post(`{"user_id":"U9","service":"Superonline","value":16}`); code != http.StatusAccepted {
		t.Fatalf("applied event must be accepted even when the decision fails, got %d", code)
	}
	state, err := st.GetUserState(context.Background(), "U9")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.InternetTodayGB != 16 || len(st.Decisions()) != 0 {
		t.Fatalf("expected 16 GB and no decision, got %v GB and %d decisions", state.InternetTodayGB, len(st.Decisions()))
	}

	if code := post(`{"user_id":"U9","service":"Superonline","value":16}`); code != http.StatusAccepted {
		t.Fatalf("second event: expected 202, got %d", code)
	}
	state, _ = st.GetUserState(context.Background(), "U9")
	if state.InternetTodayGB != 32 || len(st.Decisions()) != 1 {
		t.Fatalf("expected 32 GB and one decision, got %v GB and %d decisions", state.InternetTodayGB, len(st.Decisions()))
	}
}

func TestPushDecisionFailureWithEventIDIsNotRetryable(t *testing.T) {
	t.Parallel()

	st := &flakyStore{MemoryStore: seedStore(t), failNext: 1}
	recorder := newTestRecorder(t, st, RecorderOptions{})
	event := domain.Event{EventID: "E-1", UserID: "U9", Service: "superonline", Category: domain.CategoryUsage, Value: 16}

	if err := recorder.Push(context.Background(), event); err != nil {
		t.Fatalf("push must succeed once the event is applied, got %v", err)
	}
	err := recorder.Push(context.Background(), event)
	if reason, ok := permanent.ReasonOf(err); !ok || reason != permanent.ReasonReplayed {
		t.Fatalf("expected replayed rejection, got %v", err)
	}

	bundle, err := recorder.Process(context.Background(), "U9", domain.CategoryUnknown)
	if err != nil || bundle == nil {
		t.Fatalf("re-evaluation must record the missed decision: %v", err)
	}
	if bundle.Decision.DecisionID != "D-902" {
		t.Fatalf("failed allocation must stay burned, got %s", bundle.Decision.DecisionID)
	}
}

func TestPushBatchKeepsGoingAfterDecisionFailure(t *testing.T) {
	t.Parallel()

	st := &flakyStore{MemoryStore: seedStore(t), failNext: 1}
	recorder := newTestRecorder(t, st, RecorderOptions{})
	events := []domain.Event{
		{EventID: "E-1", UserID: "U1", Category: domain.CategoryPayment, Value: 1100},
		{EventID: "E-2", UserID: "U2", Category: domain.CategoryPayment, Value: 1200},
	}
	if err := recorder.PushBatch(context.Background(), events); err != nil {
		t.Fatalf("push batch: %v", err)
	}
	for _, userID := range []string{"U1", "U2"} {
		state, err := st.GetUserState(context.Background(), userID)
		if err != nil {
			t.Fatalf("get state %s: %v", userID, err)
		}
		if state.SpendTodayTRY < 1100 {
			t.Fatalf("event for %s not applied: %+v", userID, state)
		}
	}
	decisions := st.Decisions()
	if len(decisions) != 1 || decisions[0].UserID != "U2" {
		t.Fatalf("expected only U2 decision, got %+v", decisions)
	}
}

func TestPushRejectsInvalidEventAsPermanent(t *testing.T) {
	t.Parallel()

	st := seedStore(t)
	recorder := newTestRecorder(t, st, RecorderOptions{})

	err := recorder.Push(context.Background(), domain.Event{EventID: "E-1", UserID: "U1", Category: domain.CategoryUsage, Value: -3})
	if reason, ok := permanent.ReasonOf(err); !ok || reason != permanent.ReasonInvalid {
		t.Fatalf("expected invalid rejection, got %v", err)
	}
	if st.EventCount() != 0 {
		t.Fatalf("invalid event must not reach the store")
	}

	batch := []domain.Event{
		{EventID: "E-2", UserID: "", Category: domain.CategoryUsage, Value: 1},
		{EventID: "E-3", UserID: "U1", Category: domain.CategoryUsage, Value: 1},
	}
	if err := recorder.PushBatch(context.Background(), batch); err != nil {
		t.Fatalf("invalid batch member must be skipped, got %v", err)
	}
	if st.EventCount() != 1 {
		t.Fatalf("expected one applied event, got %d", st.EventCount())
	}
}

type listFailingStore struct {
	*store.MemoryStore
}

func (listFailingStore) ListUserIDs(context.Context) ([]string, error) {
	return nil, errors.New("connection reset")
}

func TestProcessAllReportsUnavailableUserList(t *testing.T) {
	t.Parallel()

	recorder := newTestRecorder(t, listFailingStore{MemoryStore: seedStore(t)}, RecorderOptions{})
	bundles, err := recorder.ProcessAll(context.Background(), domain.CategoryUnknown)
	if !errors.Is(err, ErrUserListUnavailable) || bundles != nil {
		t.Fatalf("expected ErrUserListUnavailable, got %v (%d bundles)", err, len(bundles))
	}
}
