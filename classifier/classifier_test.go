package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"mlserve/dataset"
	"mlserve/db"
)

var setosa = Flower{SepalLength: 5.1, SepalWidth: 3.5, PetalLength: 1.4, PetalWidth: 0.2}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []db.TrainingLog
	err     error
}

func (r *fakeRecorder) SaveTrainingLog(_ context.Context, entry db.TrainingLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, entry)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Notify(event string, _ interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func loadIris(t *testing.T) *dataset.Dataset {
	t.Helper()
	data, err := dataset.LoadIris()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return data
}

func seeded(seed int64) func() *rand.Rand {
	return func() *rand.Rand { return rand.New(rand.NewSource(seed)) }
}

func TestFlowerStorePredictBeforeTrain(t *testing.T) {
	for _, kind := range []Kind{DecisionTree, RandomForest} {
		t.Run(string(kind), func(t *testing.T) {
			store, err := NewFlowerStore(kind, loadIris(t))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, err := store.Predict(setosa); !errors.Is(err, ErrModelNotTrained) {
				t.Fatalf("expected ErrModelNotTrained, got %v", err)
			}
			snap := store.Status()
			if snap.Status != Untrained || snap.Accuracy != nil || snap.TrainedAt != nil {
				t.Fatalf("unexpected snapshot before training: %+v", snap)
			}
		})
	}
}

func TestFlowerStoreTrainAndPredict(t *testing.T) {
	for _, kind := range []Kind{DecisionTree, RandomForest} {
		t.Run(string(kind), func(t *testing.T) {
			store, err := NewFlowerStore(kind, loadIris(t),
				WithLogger(zaptest.NewLogger(t)),
				WithRand(seeded(7)),
				WithForestTrees(15))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			accuracy, err := store.Train(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if accuracy < 0.8 || accuracy > 1 {
				t.Errorf("accuracy %.3f out of expected range", accuracy)
			}
			class, err := store.Predict(setosa)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if class != "setosa" {
				t.Errorf("expected setosa, got %s", class)
			}

			snap := store.Status()
			if snap.Status != Trained || snap.Accuracy == nil || *snap.Accuracy != accuracy {
				t.Errorf("unexpected snapshot after training: %+v", snap)
			}
			if snap.Source != sourceTrain || snap.Generation != 1 {
				t.Errorf("unexpected source/generation: %s/%d", snap.Source, snap.Generation)
			}
		})
	}
}

func TestFlowerStoreRetrainStaysTrained(t *testing.T) {
	store, err := NewFlowerStore(DecisionTree, loadIris(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := store.Train(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if store.Status().Status != Trained {
			t.Fatalf("store left Trained after retrain %d", i)
		}
	}
	if got := store.Status().Generation; got != 3 {
		t.Errorf("expected generation 3, got %d", got)
	}
}

func TestNewFlowerStoreRejectsUnknownKind(t *testing.T) {
	if _, err := NewFlowerStore(SurvivalTree, loadIris(t)); err == nil {
		t.Fatal("expected error for survival kind")
	}
	if _, err := NewFlowerStore(DecisionTree, &dataset.Dataset{}); err == nil {
		t.Fatal("expected error for empty dataset")
	}
}

func TestPredictionCacheInvalidatedOnTrain(t *testing.T) {
	store, err := NewFlowerStore(DecisionTree, loadIris(t), WithCacheSize(8))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Train(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := store.Predict(setosa); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := store.cache.len(); got != 1 {
		t.Fatalf("expected 1 cached prediction, got %d", got)
	}
	if _, err := store.Train(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := store.cache.len(); got != 0 {
		t.Fatalf("expected cache purged after retrain, got %d entries", got)
	}
}

func TestHooksReceiveTrainingEvents(t *testing.T) {
	recorder := &fakeRecorder{}
	notifier := &fakeNotifier{}
	store, err := NewFlowerStore(DecisionTree, loadIris(t),
		WithRecorder(recorder), WithNotifier(notifier))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Train(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recorder.entries) != 1 {
		t.Fatalf("expected 1 training log entry, got %d", len(recorder.entries))
	}
	entry := recorder.entries[0]
	if entry.ModelName != "decision_tree" || entry.Source != sourceTrain || entry.Accuracy == nil {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.TrainRows != 75 || entry.TestRows != 75 {
		t.Errorf("expected 75/75 split, got %d/%d", entry.TrainRows, entry.TestRows)
	}
	if len(notifier.events) != 1 || notifier.events[0] != "model.trained" {
		t.Errorf("unexpected events: %v", notifier.events)
	}
}

func TestRecorderFailureDoesNotFailTrain(t *testing.T) {
	recorder := &fakeRecorder{err: errors.New("disk full")}
	store, err := NewFlowerStore(DecisionTree, loadIris(t),
		WithLogger(zaptest.NewLogger(t)), WithRecorder(recorder))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Train(context.Background()); err != nil {
		t.Fatalf("train failed because of recorder: %v", err)
	}
	if store.Status().Status != Trained {
		t.Fatal("expected store to be trained")
	}
}

func TestConcurrentTrainAndPredict(t *testing.T) {
	store, err := NewFlowerStore(DecisionTree, loadIris(t), WithCacheSize(16))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Train(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := store.Train(context.Background()); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := store.Predict(setosa); err != nil {
				errs <- err
			}
			snap := store.Status()
			if snap.Status == Trained && snap.Accuracy == nil {
				errs <- errors.New("trained snapshot without accuracy")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func newSurvivalStore(t *testing.T, opts ...Option) *SurvivalStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models", "titanic_dt.gob")
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	store, err := NewSurvivalStore(dataset.TitanicSource{}, path, opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return store
}

var thirdClassMale = Passenger{Pclass: 3, Sex: 0, Age: 22, SibSp: 1}

func TestSurvivalStoreTrainIsDeterministic(t *testing.T) {
	first := newSurvivalStore(t)
	second := newSurvivalStore(t)

	a1, err := first.Train(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a2, err := second.Train(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a1 != a2 {
		t.Fatalf("expected identical accuracy, got %.4f and %.4f", a1, a2)
	}

	r1, err := first.Predict(thirdClassMale)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r2, err := second.Predict(thirdClassMale)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r1 != r2 {
		t.Fatalf("expected identical predictions, got %s and %s", r1, r2)
	}
	if r1 != survived && r1 != death {
		t.Fatalf("unexpected result %q", r1)
	}
}

func TestSurvivalStoreBeforeTrain(t *testing.T) {
	store := newSurvivalStore(t)
	if _, err := store.Predict(thirdClassMale); !errors.Is(err, ErrModelNotTrained) {
		t.Fatalf("expected ErrModelNotTrained from Predict, got %v", err)
	}
	if err := store.Save(); !errors.Is(err, ErrModelNotTrained) {
		t.Fatalf("expected ErrModelNotTrained from Save, got %v", err)
	}
	if _, err := os.Stat(store.ArtifactPath()); !os.IsNotExist(err) {
		t.Fatalf("expected no artifact, stat returned %v", err)
	}
}

func TestSurvivalStoreLoadMissingArtifact(t *testing.T) {
	store := newSurvivalStore(t)
	err := store.Load(context.Background())
	if !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
	if store.Status().Status != Untrained {
		t.Fatal("expected store to remain untrained")
	}
}

func TestSurvivalStoreLoadCorruptArtifact(t *testing.T) {
	store := newSurvivalStore(t)
	if err := os.MkdirAll(filepath.Dir(store.ArtifactPath()), 0o755); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(store.ArtifactPath(), []byte("not a model"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Load(context.Background()); !errors.Is(err, ErrArtifactCorrupt) {
		t.Fatalf("expected ErrArtifactCorrupt, got %v", err)
	}
	if store.Status().Status != Untrained {
		t.Fatal("expected store to remain untrained")
	}
}

func TestSurvivalStoreSaveLoadRoundTrip(t *testing.T) {
	recorder := &fakeRecorder{}
	notifier := &fakeNotifier{}
	trained := newSurvivalStore(t)
	if _, err := trained.Train(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := trained.Save(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, err := trained.Predict(thirdClassMale)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := NewSurvivalStore(dataset.TitanicSource{}, trained.ArtifactPath(),
		WithRecorder(recorder), WithNotifier(notifier))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := loaded.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := loaded.Predict(thirdClassMale)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("expected %s after load, got %s", want, got)
	}

	snap := loaded.Status()
	if snap.Status != Trained || snap.Accuracy != nil || snap.Source != sourceLoad {
		t.Errorf("unexpected snapshot after load: %+v", snap)
	}
	if len(recorder.entries) != 1 || recorder.entries[0].Accuracy != nil {
		t.Errorf("expected one load entry without accuracy, got %+v", recorder.entries)
	}
	if len(notifier.events) != 1 || notifier.events[0] != "model.loaded" {
		t.Errorf("unexpected events: %v", notifier.events)
	}
}

func TestSurvivalStoreReloadIfChanged(t *testing.T) {
	writer := newSurvivalStore(t)
	reader, err := NewSurvivalStore(dataset.TitanicSource{}, writer.ArtifactPath())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if reloaded, err := reader.ReloadIfChanged(context.Background()); err != nil || reloaded {
		t.Fatalf("expected no reload without artifact, got %v/%v", reloaded, err)
	}

	if _, err := writer.Train(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := writer.Save(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reloaded, err := writer.ReloadIfChanged(context.Background()); err != nil || reloaded {
		t.Fatalf("writer should not reload its own artifact, got %v/%v", reloaded, err)
	}

	reloaded, err := reader.ReloadIfChanged(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reloaded || reader.Status().Status != Trained {
		t.Fatal("expected reader to load the new artifact")
	}
	if reloaded, _ := reader.ReloadIfChanged(context.Background()); reloaded {
		t.Fatal("expected second check to be a no-op")
	}
}

func TestFitStatusText(t *testing.T) {
	tests := []struct {
		status FitStatus
		want   string
	}{
		{Untrained, "untrained"},
		{Trained, "trained"},
		{FitStatus(9), "FitStatus(9)"},
	}
	for _, tt := range tests {
		text, err := tt.status.MarshalText()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(text) != tt.want {
			t.Errorf("expected %s, got %s", tt.want, text)
		}
	}
}

func TestFitStatusRoundTrip(t *testing.T) {
	for _, status := range []FitStatus{Untrained, Trained} {
		text, err := status.MarshalText()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var decoded FitStatus
		if err := decoded.UnmarshalText(text); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if decoded != status {
			t.Errorf("expected %v, got %v", status, decoded)
		}
	}

	var status FitStatus
	if err := status.UnmarshalText([]byte("FitStatus(9)")); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestSnapshotJSONRoundTrip(t *testing.T) {
	accuracy := 0.75
	want := Snapshot{Name: "titanic", Kind: SurvivalTree, Status: Trained, Accuracy: &accuracy, Source: sourceTrain, Generation: 2}
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Snapshot
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != Trained || got.Kind != SurvivalTree || got.Accuracy == nil || *got.Accuracy != accuracy {
		t.Errorf("unexpected snapshot after round trip: %+v", got)
	}
}
