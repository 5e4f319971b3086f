package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmatrack/pharmatrack-backend/internal/pharmacy/repository"
	"github.com/pharmatrack/pharmatrack-backend/pkg/logger"
)

type fakeDemandStore struct {
	samples    map[string][]repository.TrainingSample
	quantities map[string][]float64
	requesters map[string][]repository.RequesterQuantity
	cache      map[string]*repository.CachedPrediction

	cacheReads  int
	cacheWrites int
}

func newFakeDemandStore() *fakeDemandStore {
	return &fakeDemandStore{
		samples:    map[string][]repository.TrainingSample{},
		quantities: map[string][]float64{},
		requesters: map[string][]repository.RequesterQuantity{},
		cache:      map[string]*repository.CachedPrediction{},
	}
}

func cacheKey(itemID string, date time.Time) string {
	return itemID + "|" + date.Format("2006-01-02")
}

func (s *fakeDemandStore) TrainingSamples(_ context.Context, itemID string) ([]repository.TrainingSample, error) {
	return s.samples[itemID], nil
}

func (s *fakeDemandStore) QuantityHistory(_ context.Context, itemID, _ string) ([]float64, error) {
	return s.quantities[itemID], nil
}

func (s *fakeDemandStore) RequesterHistory(_ context.Context, itemID, _ string) ([]repository.RequesterQuantity, error) {
	return s.requesters[itemID], nil
}

func (s *fakeDemandStore) GetCached(_ context.Context, itemID string, targetDate time.Time) (*repository.CachedPrediction, error) {
	s.cacheReads++
	return s.cache[cacheKey(itemID, targetDate)], nil
}

func (s *fakeDemandStore) UpsertCached(_ context.Context, p *repository.CachedPrediction) error {
	s.cacheWrites++
	s.cache[cacheKey(p.ItemID, p.TargetDate)] = p
	return nil
}

func (s *fakeDemandStore) InvalidateCache(_ context.Context, itemID string) error {
	for key := range s.cache {
		if len(key) >= len(itemID) && key[:len(itemID)] == itemID {
			delete(s.cache, key)
		}
	}
	return nil
}

type fakeAnomalyStore struct {
	findings []*repository.AnomalyFinding
}

func (s *fakeAnomalyStore) Create(_ context.Context, f *repository.AnomalyFinding) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	s.findings = append(s.findings, f)
	return nil
}

func (s *fakeAnomalyStore) List(_ context.Context, unresolvedOnly bool, _ int) ([]*repository.AnomalyFinding, error) {
	out := []*repository.AnomalyFinding{}
	for _, f := range s.findings {
		if unresolvedOnly && f.Resolved {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (s *fakeAnomalyStore) Resolve(_ context.Context, id, resolvedBy string) (*repository.AnomalyFinding, error) {
	for _, f := range s.findings {
		if f.ID == id {
			now := time.Now()
			f.Resolved = true
			f.ResolvedBy = &resolvedBy
			f.ResolvedAt = &now
			return f, nil
		}
	}
	return nil, nil
}

type fakeCatalog struct {
	items []*repository.InventoryItem
}

func (s *fakeCatalog) GetByID(_ context.Context, id string) (*repository.InventoryItem, error) {
	for _, item := range s.items {
		if item.ID == id {
			copied := *item
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeCatalog) List(_ context.Context, page, perPage int, _ string) ([]*repository.InventoryItem, int64, error) {
	if page > 1 {
		return nil, int64(len(s.items)), nil
	}
	return s.items, int64(len(s.items)), nil
}

func newDemandFixture(catalog *fakeCatalog) (*DemandService, *fakeDemandStore, *fakeAnomalyStore) {
	log := logger.New("test", "test")
	store := newFakeDemandStore()
	anomalies := &fakeAnomalyStore{}
	if catalog == nil {
		catalog = &fakeCatalog{}
	}
	svc := NewDemandService(store, anomalies, catalog, NewRecorder(&fakeActivityStore{}, log), nil, log)
	return svc, store, anomalies
}

// constantSamples builds n observations of the same quantity spread across
// months, weekdays and seasons
func constantSamples(n, quantity int) []repository.TrainingSample {
	samples := make([]repository.TrainingSample, n)
	for i := range samples {
		month := i%12 + 1
		samples[i] = repository.TrainingSample{
			Month:     month,
			DayOfWeek: i % 7,
			Season:    seasonOf(time.Month(month)),
			Quantity:  quantity,
		}
	}
	return samples
}

func TestPredictDemand_InsufficientData(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newDemandFixture(nil)
	store.samples["item-1"] = constantSamples(9, 10)

	prediction, err := svc.PredictDemand(ctx, "item-1", 30)
	require.NoError(t, err)

	assert.Equal(t, 0, prediction.PredictedDemand)
	assert.Equal(t, 0.0, prediction.Confidence)
	assert.Equal(t, "Insufficient historical data for accurate prediction", prediction.Message)
	assert.Zero(t, store.cacheWrites, "degraded answers are not cached")
}

func TestPredictDemand_FitsConstantHistory(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newDemandFixture(nil)
	store.samples["item-1"] = constantSamples(12, 10)

	prediction, err := svc.PredictDemand(ctx, "item-1", 30)
	require.NoError(t, err)

	assert.Equal(t, 10, prediction.PredictedDemand)
	assert.Equal(t, 0.5, prediction.Confidence, "confidence floors at 0.5")
	assert.Equal(t, 12, prediction.DataPoints)
	assert.Equal(t, 1, store.cacheWrites)
}

func TestPredictDemand_ConfidenceCapsAt95(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newDemandFixture(nil)
	store.samples["item-1"] = constantSamples(200, 25)

	prediction, err := svc.PredictDemand(ctx, "item-1", 30)
	require.NoError(t, err)

	assert.Equal(t, 25, prediction.PredictedDemand)
	assert.Equal(t, 0.95, prediction.Confidence)
}

func TestPredictDemand_ReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newDemandFixture(nil)
	store.samples["item-1"] = constantSamples(50, 10)

	first, err := svc.PredictDemand(ctx, "item-1", 30)
	require.NoError(t, err)
	require.Equal(t, 1, store.cacheWrites)

	second, err := svc.PredictDemand(ctx, "item-1", 30)
	require.NoError(t, err)

	assert.Equal(t, first.PredictedDemand, second.PredictedDemand)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, 1, store.cacheWrites, "second call must be served from cache")
}

func TestDetectAnomaly_NeedsHistory(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newDemandFixture(nil)
	store.quantities["item-1"] = []float64{10}

	report, err := svc.DetectAnomaly(ctx, "item-1", "doc-1", 100, "")
	require.NoError(t, err)

	assert.False(t, report.IsAnomaly)
	assert.Equal(t, 0.0, report.Score)
	assert.Equal(t, "Need at least 2 historical requests for comparison", report.Reason)
}

func TestDetectAnomaly_FlatHistoryDeviation(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newDemandFixture(nil)
	store.quantities["item-1"] = []float64{10, 10, 10, 10}

	report, err := svc.DetectAnomaly(ctx, "item-1", "doc-1", 50, "")
	require.NoError(t, err)

	assert.True(t, report.IsAnomaly)
	assert.Equal(t, 3.0, report.ZScore, "zero variance with a differing quantity forces a clear outlier")
	assert.Equal(t, 0.75, report.Score)
	require.Len(t, report.Reasons, 1)
	assert.Contains(t, report.Reasons[0], "Z-score")
}

func TestDetectAnomaly_FlatHistoryMatch(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newDemandFixture(nil)
	store.quantities["item-1"] = []float64{10, 10, 10}

	report, err := svc.DetectAnomaly(ctx, "item-1", "doc-1", 10, "")
	require.NoError(t, err)

	assert.False(t, report.IsAnomaly)
	assert.Equal(t, 0.0, report.ZScore)
	assert.Equal(t, 0.0, report.Score)
}

func TestDetectAnomaly_ScoreFloorForClearOutliers(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newDemandFixture(nil)
	// mean 10, population std dev 5
	store.quantities["item-1"] = []float64{5, 15, 5, 15}

	// z = |23-10|/5 = 2.6, raw score 0.65 lifts to 0.75
	report, err := svc.DetectAnomaly(ctx, "item-1", "doc-1", 23, "")
	require.NoError(t, err)

	assert.True(t, report.IsAnomaly)
	assert.Equal(t, 2.6, report.ZScore)
	assert.Equal(t, 0.75, report.Score)
}

func TestDetectAnomaly_ScoreScalesWithZ(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newDemandFixture(nil)
	// mean 10, population std dev 5
	store.quantities["item-1"] = []float64{5, 15, 5, 15}

	// z = |30-10|/5 = 4.0, score caps at 1.0
	report, err := svc.DetectAnomaly(ctx, "item-1", "doc-1", 30, "")
	require.NoError(t, err)

	assert.True(t, report.IsAnomaly)
	assert.Equal(t, 4.0, report.ZScore)
	assert.Equal(t, 1.0, report.Score)
	assert.Equal(t, 10.0, report.Mean)
	assert.Equal(t, 5.0, report.StdDev)
}

func TestDetectAnomaly_RequesterConcentration(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newDemandFixture(nil)

	quantities := make([]float64, 12)
	requesters := make([]repository.RequesterQuantity, 12)
	for i := range requesters {
		quantities[i] = 10
		doctor := "doc-other"
		if i < 7 {
			doctor = "doc-heavy"
		}
		requesters[i] = repository.RequesterQuantity{DoctorID: doctor, Quantity: 10}
	}
	store.quantities["item-1"] = quantities
	store.requesters["item-1"] = requesters

	report, err := svc.DetectAnomaly(ctx, "item-1", "doc-heavy", 10, "")
	require.NoError(t, err)

	assert.True(t, report.IsAnomaly)
	assert.Equal(t, 0.6, report.Score)
	require.Len(t, report.Reasons, 1)
	assert.Contains(t, report.Reasons[0], "frequently")

	// The same quantity from a light requester is unremarkable.
	report, err = svc.DetectAnomaly(ctx, "item-1", "doc-other", 10, "")
	require.NoError(t, err)
	assert.False(t, report.IsAnomaly)
}

func TestOptimalReorder(t *testing.T) {
	ctx := context.Background()
	item := &repository.InventoryItem{ID: "item-1", Name: "Saline", Stock: 20, MinStock: 15}
	svc, store, _ := newDemandFixture(&fakeCatalog{items: []*repository.InventoryItem{item}})
	store.samples["item-1"] = constantSamples(50, 50)

	suggestion, err := svc.OptimalReorder(ctx, "item-1")
	require.NoError(t, err)

	assert.Equal(t, 20, suggestion.CurrentStock)
	assert.Equal(t, 15, suggestion.MinStock)
	assert.Equal(t, 50, suggestion.PredictedDemand)
	// safety stock = max(15, 50*0.3) = 15, optimal = 65, reorder = 45
	assert.Equal(t, 65, suggestion.OptimalStock)
	assert.Equal(t, 45, suggestion.RecommendedReorder)
	assert.Equal(t, 0.5, suggestion.Confidence)
}

func TestOptimalReorder_NeverNegative(t *testing.T) {
	ctx := context.Background()
	item := &repository.InventoryItem{ID: "item-1", Name: "Saline", Stock: 500, MinStock: 5}
	svc, store, _ := newDemandFixture(&fakeCatalog{items: []*repository.InventoryItem{item}})
	store.samples["item-1"] = constantSamples(50, 50)

	suggestion, err := svc.OptimalReorder(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, 0, suggestion.RecommendedReorder)
}

func TestTrainModels(t *testing.T) {
	ctx := context.Background()
	trained := &repository.InventoryItem{ID: "item-trained", Name: "Saline"}
	sparse := &repository.InventoryItem{ID: "item-sparse", Name: "Gauze"}
	svc, store, _ := newDemandFixture(&fakeCatalog{items: []*repository.InventoryItem{trained, sparse}})
	store.samples["item-trained"] = constantSamples(40, 12)
	store.samples["item-sparse"] = constantSamples(3, 5)

	results, err := svc.TrainModels(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byItem := map[string]TrainingResult{}
	for _, r := range results {
		byItem[r.ItemID] = r
	}

	assert.Equal(t, "trained", byItem["item-trained"].Status)
	assert.Equal(t, 40, byItem["item-trained"].DataPoints)
	assert.Equal(t, "insufficient_data", byItem["item-sparse"].Status)
}

func TestEvaluateRequest_PersistsSignificantFindings(t *testing.T) {
	ctx := context.Background()
	svc, store, anomalies := newDemandFixture(nil)
	store.quantities["item-1"] = []float64{10, 10, 10, 10}

	item := &repository.InventoryItem{ID: "item-1", Name: "Morphine 10mg"}
	req := &repository.Request{ID: "req-1", ItemID: "item-1", DoctorID: "doc-1", Quantity: 80}

	svc.EvaluateRequest(ctx, req, item)

	require.Len(t, anomalies.findings, 1)
	finding := anomalies.findings[0]
	assert.Equal(t, "req-1", finding.RequestID)
	assert.Equal(t, 0.75, finding.Score)
	assert.Equal(t, 3.0, finding.ZScore)
}

func TestEvaluateRequest_IgnoresUnremarkableRequests(t *testing.T) {
	ctx := context.Background()
	svc, store, anomalies := newDemandFixture(nil)
	store.quantities["item-1"] = []float64{10, 10, 10, 10}

	item := &repository.InventoryItem{ID: "item-1", Name: "Saline"}
	req := &repository.Request{ID: "req-1", ItemID: "item-1", DoctorID: "doc-1", Quantity: 10}

	svc.EvaluateRequest(ctx, req, item)

	assert.Empty(t, anomalies.findings)
}
