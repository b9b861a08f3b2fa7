package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bitfantasy/vendo/internal/shared/relay"
	"github.com/bitfantasy/vendo/internal/srm/entity"
	"github.com/bitfantasy/vendo/internal/srm/scoring"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var errFakeNotFound = errors.New("record not found")

type fakeStore struct {
	records     map[string]entity.SupplierEvaluation
	createCalls int
	updateCalls int
	deleteCalls int
	failWrites  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]entity.SupplierEvaluation)}
}

func (s *fakeStore) Create(_ context.Context, eval *entity.SupplierEvaluation) error {
	s.createCalls++
	if s.failWrites {
		return errors.New("store unavailable")
	}
	s.records[eval.ID] = *eval
	return nil
}

func (s *fakeStore) Update(_ context.Context, eval *entity.SupplierEvaluation) error {
	s.updateCalls++
	if s.failWrites {
		return errors.New("store unavailable")
	}
	s.records[eval.ID] = *eval
	return nil
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*entity.SupplierEvaluation, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, errFakeNotFound
	}
	cp := rec
	return &cp, nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	s.deleteCalls++
	if s.failWrites {
		return errors.New("store unavailable")
	}
	delete(s.records, id)
	return nil
}

func (s *fakeStore) FindBySupplier(_ context.Context, supplierID string) ([]entity.SupplierEvaluation, error) {
	var out []entity.SupplierEvaluation
	for _, rec := range s.records {
		if rec.SupplierID == supplierID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeRelay struct {
	calls chan *relay.Envelope
	fail  bool
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{calls: make(chan *relay.Envelope, 8)}
}

func (r *fakeRelay) SendEvaluation(_ context.Context, env *relay.Envelope) error {
	r.calls <- env
	if r.fail {
		return errors.New("relay unreachable")
	}
	return nil
}

func allCaps() Capabilities {
	return Capabilities{CanCreate: true, CanView: true, CanEdit: true, CanDelete: true}
}

func testDeps(store Store, dispatcher Dispatcher) Deps {
	return Deps{
		Registry:     scoring.Default(),
		Store:        store,
		Relay:        dispatcher,
		Logger:       zap.NewNop(),
		RelayTimeout: 100 * time.Millisecond,
	}
}

func strp(s string) *string        { return &s }
func timep(t time.Time) *time.Time { return &t }

func seedRecord(store *fakeStore, id string, date time.Time) {
	store.records[id] = entity.SupplierEvaluation{
		ID:                 id,
		SupplierID:         "sup-001",
		EvaluatorID:        "user-001",
		EvaluationDate:     date,
		QualityRating:      string(scoring.LevelMedium),
		AvailabilityRating: string(scoring.LevelMedium),
		TimelinessRating:   string(scoring.LevelMedium),
		PriceRating:        string(scoring.LevelMedium),
		LifecycleState:     entity.LifecycleViewing,
	}
}

func TestCreateSaveComputesScoreAndTier(t *testing.T) {
	store := newFakeStore()
	c, err := NewCreate(testDeps(store, nil), "current", allCaps())
	if err != nil {
		t.Fatalf("NewCreate: %v", err)
	}
	if c.State() != StateCreating {
		t.Fatalf("state = %s, want creating", c.State())
	}

	err = c.Apply(&Patch{
		SupplierID:         strp("sup-001"),
		EvaluationDate:     timep(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		QualityRating:      strp(string(scoring.LevelHigh)),
		AvailabilityRating: strp(string(scoring.LevelHigh)),
		TimelinessRating:   strp(string(scoring.LevelHigh)),
		PriceRating:        strp(string(scoring.LevelHigh)),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if sp := c.ScorePercent(); sp == nil || *sp != 100 {
		t.Fatalf("score = %v, want 100", sp)
	}
	if c.Tier() != "A" {
		t.Fatalf("tier = %s, want A", c.Tier())
	}
	if c.StatusText() != "eligible for immediate contracting" {
		t.Fatalf("unexpected status text %q", c.StatusText())
	}

	if err := c.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if c.State() != StateViewing {
		t.Fatalf("state after save = %s, want viewing", c.State())
	}
	if store.createCalls != 1 {
		t.Fatalf("createCalls = %d, want 1", store.createCalls)
	}

	saved := store.records[c.Record().ID]
	if saved.Score == nil || *saved.Score != 1.0 {
		t.Fatalf("persisted score = %v, want 1.0", saved.Score)
	}
	if saved.Tier != "A" {
		t.Fatalf("persisted tier = %s, want A", saved.Tier)
	}
}

func TestCreateSaveRequiresSupplier(t *testing.T) {
	store := newFakeStore()
	c, _ := NewCreate(testDeps(store, nil), "current", allCaps())

	err := c.Save(context.Background())
	if !IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if store.createCalls != 0 {
		t.Fatalf("store was called despite validation failure")
	}
}

func TestDirtyGating(t *testing.T) {
	store := newFakeStore()
	seedRecord(store, "eval-001", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))

	c, err := Load(context.Background(), testDeps(store, nil), "eval-001", "", allCaps())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.State() != StateViewing {
		t.Fatalf("state = %s, want viewing", c.State())
	}

	if err := c.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	// 解锁后未做任何修改：保存不可用
	if c.CanSave() {
		t.Fatal("CanSave = true with no changes")
	}
	if err := c.Save(context.Background()); !errors.Is(err, ErrNotDirty) {
		t.Fatalf("Save = %v, want ErrNotDirty", err)
	}

	// 改一项评级后保存可用
	if err := c.Apply(&Patch{QualityRating: strp(string(scoring.LevelHigh))}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !c.CanSave() {
		t.Fatal("CanSave = false after a rating change")
	}

	if err := c.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if c.State() != StateViewing {
		t.Fatalf("state after save = %s, want viewing", c.State())
	}

	// 保存后基线已重置：再次解锁时保存重新不可用
	if err := c.Unlock(); err != nil {
		t.Fatalf("Unlock after save: %v", err)
	}
	if c.CanSave() {
		t.Fatal("CanSave = true right after rebaseline")
	}
}

func TestEpochGuardRejectsCrossEpochSave(t *testing.T) {
	store := newFakeStore()
	seedRecord(store, "eval-002", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	c, err := Load(context.Background(), testDeps(store, nil), "eval-002", "2025", allCaps())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := c.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	// 把日期改到绑定版本适用年份之外
	err = c.Apply(&Patch{EvaluationDate: timep(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	err = c.Save(context.Background())
	if !IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if store.updateCalls != 0 {
		t.Fatalf("store write happened despite epoch guard: %d calls", store.updateCalls)
	}
	if c.State() != StateEditing {
		t.Fatalf("state = %s, want editing", c.State())
	}
}

func TestRelayFailureDoesNotAffectSave(t *testing.T) {
	store := newFakeStore()
	dispatcher := newFakeRelay()
	dispatcher.fail = true

	core, logs := observer.New(zap.WarnLevel)
	deps := testDeps(store, dispatcher)
	deps.Logger = zap.New(core)

	c, _ := NewCreate(deps, "current", allCaps())
	err := c.Apply(&Patch{
		SupplierID:     strp("sup-001"),
		EvaluationDate: timep(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		QualityRating:  strp(string(scoring.LevelHigh)),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if err := c.Save(context.Background()); err != nil {
		t.Fatalf("Save reported failure despite committed write: %v", err)
	}
	if c.State() != StateViewing {
		t.Fatalf("state = %s, want viewing", c.State())
	}

	select {
	case env := <-dispatcher.calls:
		if env.Kind != relay.KindSupplierEvaluation {
			t.Fatalf("envelope kind = %s", env.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay was never dispatched")
	}

	// 投递失败只应产生一条告警日志
	deadline := time.Now().Add(2 * time.Second)
	for logs.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if logs.Len() == 0 {
		t.Fatal("expected a warn log for the relay failure")
	}
}

func TestRelayNotDispatchedWhenStoreFails(t *testing.T) {
	store := newFakeStore()
	store.failWrites = true
	dispatcher := newFakeRelay()

	c, _ := NewCreate(testDeps(store, dispatcher), "current", allCaps())
	_ = c.Apply(&Patch{
		SupplierID:    strp("sup-001"),
		QualityRating: strp(string(scoring.LevelHigh)),
	})

	if err := c.Save(context.Background()); err == nil {
		t.Fatal("expected persistence error")
	}
	if c.State() != StateCreating {
		t.Fatalf("state = %s, want creating after failed save", c.State())
	}

	select {
	case <-dispatcher.calls:
		t.Fatal("relay dispatched despite store failure")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDeleteIsTwoStep(t *testing.T) {
	store := newFakeStore()
	seedRecord(store, "eval-003", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))

	c, _ := Load(context.Background(), testDeps(store, nil), "eval-003", "", allCaps())

	// 查看态不允许发起删除
	if err := c.RequestDelete(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("RequestDelete in viewing = %v, want ErrInvalidState", err)
	}

	_ = c.Unlock()

	// 未发起就确认
	if err := c.ConfirmDelete(context.Background()); !errors.Is(err, ErrConfirmRequired) {
		t.Fatalf("ConfirmDelete without request = %v, want ErrConfirmRequired", err)
	}

	if err := c.RequestDelete(); err != nil {
		t.Fatalf("RequestDelete: %v", err)
	}
	if err := c.ConfirmDelete(context.Background()); err != nil {
		t.Fatalf("ConfirmDelete: %v", err)
	}
	if c.State() != StateDeleted {
		t.Fatalf("state = %s, want deleted", c.State())
	}
	if _, ok := store.records["eval-003"]; ok {
		t.Fatal("record still present after delete")
	}
}

func TestCapabilityGating(t *testing.T) {
	store := newFakeStore()
	seedRecord(store, "eval-004", time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))

	if _, err := NewCreate(testDeps(store, nil), "current", Capabilities{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("NewCreate without capability = %v, want ErrForbidden", err)
	}

	viewOnly := Capabilities{CanView: true}
	c, err := Load(context.Background(), testDeps(store, nil), "eval-004", "", viewOnly)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := c.Unlock(); !errors.Is(err, ErrForbidden) {
		t.Fatalf("Unlock without edit capability = %v, want ErrForbidden", err)
	}

	noDelete := Capabilities{CanView: true, CanEdit: true}
	c2, _ := Load(context.Background(), testDeps(store, nil), "eval-004", "", noDelete)
	_ = c2.Unlock()
	if err := c2.RequestDelete(); !errors.Is(err, ErrForbidden) {
		t.Fatalf("RequestDelete without delete capability = %v, want ErrForbidden", err)
	}
}

func TestFieldSafetyDowngradesThroughController(t *testing.T) {
	store := newFakeStore()
	c, _ := NewCreate(testDeps(store, nil), "current", allCaps())

	applied := true
	err := c.Apply(&Patch{
		SupplierID:         strp("sup-001"),
		EvaluationDate:     timep(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		QualityRating:      strp(string(scoring.LevelHigh)),
		AvailabilityRating: strp(string(scoring.LevelHigh)),
		TimelinessRating:   strp(string(scoring.LevelHigh)),
		PriceRating:        strp(string(scoring.LevelHigh)),
		FieldSafetyApplied: &applied,
		FieldSafetyRating:  strp("C"),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if sp := c.ScorePercent(); sp == nil || *sp != 100 {
		t.Fatalf("score = %v, want 100", sp)
	}
	if c.Tier() != "C" {
		t.Fatalf("tier = %s, want C (field safety downgrade)", c.Tier())
	}
}

func TestDateChangeRescoresUnderResolvedModel(t *testing.T) {
	store := newFakeStore()
	seedRecord(store, "eval-005", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

	c, _ := Load(context.Background(), testDeps(store, nil), "eval-005", "current", allCaps())
	_ = c.Unlock()

	// 全 medium：2025版值表得 75，现行版值表得 70
	_ = c.Apply(&Patch{EvaluationDate: timep(time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC))})
	if sp := c.ScorePercent(); sp == nil || *sp != 75 {
		t.Fatalf("2025-dated score = %v, want 75", sp)
	}

	_ = c.Apply(&Patch{EvaluationDate: timep(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))})
	if sp := c.ScorePercent(); sp == nil || *sp != 70 {
		t.Fatalf("2026-dated score = %v, want 70", sp)
	}
}

func TestApplyRejectsUnknownLevel(t *testing.T) {
	store := newFakeStore()
	c, _ := NewCreate(testDeps(store, nil), "current", allCaps())

	err := c.Apply(&Patch{QualityRating: strp("excellent")})
	if !IsValidation(err) {
		t.Fatalf("expected ValidationError for unknown level, got %v", err)
	}
}
