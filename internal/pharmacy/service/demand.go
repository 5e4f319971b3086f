package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"

	"github.com/pharmatrack/pharmatrack-backend/internal/pharmacy/events"
	"github.com/pharmatrack/pharmatrack-backend/internal/pharmacy/repository"
	"github.com/pharmatrack/pharmatrack-backend/pkg/logger"
)

const (
	// Minimum approved requests before the regression is trusted at all
	minTrainingSamples = 10

	// Minimum history before a request can be scored against its baseline
	minAnomalyHistory = 2

	// Z-score beyond which a quantity counts as anomalous
	anomalyZThreshold = 2.0

	// Safety stock as a fraction of predicted demand
	safetyStockFactor = 0.3
)

// DemandStore reads historical demand data and manages the prediction cache
type DemandStore interface {
	TrainingSamples(ctx context.Context, itemID string) ([]repository.TrainingSample, error)
	QuantityHistory(ctx context.Context, itemID, excludeRequestID string) ([]float64, error)
	RequesterHistory(ctx context.Context, itemID, excludeRequestID string) ([]repository.RequesterQuantity, error)
	GetCached(ctx context.Context, itemID string, targetDate time.Time) (*repository.CachedPrediction, error)
	UpsertCached(ctx context.Context, p *repository.CachedPrediction) error
	InvalidateCache(ctx context.Context, itemID string) error
}

// AnomalyStore persists anomaly findings
type AnomalyStore interface {
	Create(ctx context.Context, f *repository.AnomalyFinding) error
	List(ctx context.Context, unresolvedOnly bool, limit int) ([]*repository.AnomalyFinding, error)
	Resolve(ctx context.Context, id, resolvedBy string) (*repository.AnomalyFinding, error)
}

// CatalogStore is the read-only item surface the demand service needs
type CatalogStore interface {
	GetByID(ctx context.Context, id string) (*repository.InventoryItem, error)
	List(ctx context.Context, page, perPage int, category string) ([]*repository.InventoryItem, int64, error)
}

// DemandPrediction is an advisory demand estimate
type DemandPrediction struct {
	PredictedDemand int     `json:"predicted_demand"`
	Confidence      float64 `json:"confidence"`
	DataPoints      int     `json:"data_points,omitempty"`
	Message         string  `json:"message"`
}

// AnomalyReport scores one request against the item's history
type AnomalyReport struct {
	IsAnomaly bool     `json:"is_anomaly"`
	Score     float64  `json:"score"`
	ZScore    float64  `json:"z_score"`
	Mean      float64  `json:"mean"`
	StdDev    float64  `json:"std_dev"`
	Reasons   []string `json:"reasons"`
	Reason    string   `json:"reason,omitempty"`
}

// ReorderSuggestion recommends how much of an item to reorder
type ReorderSuggestion struct {
	CurrentStock       int     `json:"current_stock"`
	MinStock           int     `json:"min_stock"`
	PredictedDemand    int     `json:"predicted_demand"`
	OptimalStock       int     `json:"optimal_stock"`
	RecommendedReorder int     `json:"recommended_reorder"`
	Confidence         float64 `json:"confidence"`
}

// TrainingResult reports the training outcome for one item
type TrainingResult struct {
	ItemID     string `json:"item_id"`
	Status     string `json:"status"`
	DataPoints int    `json:"data_points"`
}

// DemandService provides advisory demand prediction, reorder suggestions and
// anomaly scoring. It is read-only with respect to items and requests; its
// failures degrade to zero-confidence answers rather than errors.
type DemandService struct {
	store     DemandStore
	anomalies AnomalyStore
	catalog   CatalogStore
	recorder  *Recorder
	publisher *events.PharmacyEventPublisher
	logger    *logger.Logger
	now       func() time.Time
}

// NewDemandService creates a new demand service
func NewDemandService(
	store DemandStore,
	anomalies AnomalyStore,
	catalog CatalogStore,
	recorder *Recorder,
	publisher *events.PharmacyEventPublisher,
	log *logger.Logger,
) *DemandService {
	return &DemandService{
		store:     store,
		anomalies: anomalies,
		catalog:   catalog,
		recorder:  recorder,
		publisher: publisher,
		logger:    log,
		now:       time.Now,
	}
}

// PredictDemand estimates demand for an item daysAhead days out. Results are
// cached per item and target date; the cache is read-through and staleness
// within a day is acceptable.
func (s *DemandService) PredictDemand(ctx context.Context, itemID string, daysAhead int) (*DemandPrediction, error) {
	if daysAhead < 1 {
		daysAhead = 30
	}
	targetDate := s.targetDate(daysAhead)

	cached, err := s.store.GetCached(ctx, itemID, targetDate)
	if err != nil {
		s.logger.Warn().Err(err).Str("item_id", itemID).Msg("prediction cache read failed")
	}
	if cached != nil {
		return &DemandPrediction{
			PredictedDemand: cached.PredictedDemand,
			Confidence:      cached.Confidence,
			DataPoints:      cached.DataPoints,
			Message:         "Prediction based on historical patterns",
		}, nil
	}

	samples, err := s.store.TrainingSamples(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if len(samples) < minTrainingSamples {
		return &DemandPrediction{
			PredictedDemand: 0,
			Confidence:      0.0,
			Message:         "Insufficient historical data for accurate prediction",
		}, nil
	}

	predicted, ok := s.fitAndPredict(samples)
	if !ok {
		return &DemandPrediction{
			PredictedDemand: 0,
			Confidence:      0.0,
			Message:         "Could not fit a model to the available history",
		}, nil
	}

	confidence := math.Min(0.95, math.Max(0.5, float64(len(samples))/100.0))
	demand := int(math.Round(predicted))
	if demand < 0 {
		demand = 0
	}

	if err := s.store.UpsertCached(ctx, &repository.CachedPrediction{
		ItemID:          itemID,
		TargetDate:      targetDate,
		PredictedDemand: demand,
		Confidence:      round2(confidence),
		DataPoints:      len(samples),
	}); err != nil {
		s.logger.Warn().Err(err).Str("item_id", itemID).Msg("prediction cache write failed")
	}

	return &DemandPrediction{
		PredictedDemand: demand,
		Confidence:      round2(confidence),
		DataPoints:      len(samples),
		Message:         "Prediction based on historical patterns",
	}, nil
}

// fitAndPredict fits a least squares regression of quantity on month, day of
// week and season, then evaluates it at the current date's features
func (s *DemandService) fitAndPredict(samples []repository.TrainingSample) (float64, bool) {
	n := len(samples)
	design := mat.NewDense(n, 4, nil)
	target := mat.NewDense(n, 1, nil)

	for i, sample := range samples {
		design.Set(i, 0, 1.0)
		design.Set(i, 1, float64(sample.Month))
		design.Set(i, 2, float64(sample.DayOfWeek))
		design.Set(i, 3, float64(sample.Season))
		target.Set(i, 0, float64(sample.Quantity))
	}

	var qr mat.QR
	qr.Factorize(design)

	var coef mat.Dense
	if err := qr.SolveTo(&coef, false, target); err != nil {
		s.logger.Warn().Err(err).Msg("least squares solve failed")
		return 0, false
	}

	now := s.now()
	features := []float64{1.0, float64(int(now.Month())), float64(int(now.Weekday())), float64(seasonOf(now.Month()))}

	var predicted float64
	for j, f := range features {
		predicted += coef.At(j, 0) * f
	}

	return predicted, true
}

// DetectAnomaly scores a request quantity against the item's request history.
// The request being evaluated is excluded from its own baseline.
func (s *DemandService) DetectAnomaly(ctx context.Context, itemID, doctorID string, quantity int, excludeRequestID string) (*AnomalyReport, error) {
	history, err := s.store.QuantityHistory(ctx, itemID, excludeRequestID)
	if err != nil {
		return nil, err
	}

	if len(history) < minAnomalyHistory {
		return &AnomalyReport{
			IsAnomaly: false,
			Score:     0.0,
			Reasons:   []string{},
			Reason:    "Need at least 2 historical requests for comparison",
		}, nil
	}

	mean, err := stats.Mean(history)
	if err != nil {
		return nil, err
	}
	stdDev, err := stats.StandardDeviationPopulation(history)
	if err != nil {
		return nil, err
	}

	var zScore float64
	if stdDev > 0 {
		zScore = math.Abs((float64(quantity) - mean) / stdDev)
	} else if float64(quantity) != mean {
		// Flat history makes any deviation a clear outlier.
		zScore = 3.0
	}

	isAnomaly := false
	score := 0.0
	reasons := []string{}

	if zScore > anomalyZThreshold {
		isAnomaly = true
		score = math.Min(1.0, zScore/4.0)

		// A clear outlier can still land a mathematically low score;
		// lift it so reviewers see it.
		if zScore > 2.5 && score < 0.7 {
			score = 0.75
		}

		reasons = append(reasons, fmt.Sprintf("Unusually high quantity requested (Z-score: %.2f)", zScore))
	}

	requesters, err := s.store.RequesterHistory(ctx, itemID, excludeRequestID)
	if err != nil {
		return nil, err
	}

	doctorCount := 0
	for _, r := range requesters {
		if r.DoctorID == doctorID {
			doctorCount++
		}
	}
	total := len(requesters)
	if total > 10 && float64(doctorCount)/float64(total) > 0.5 {
		isAnomaly = true
		score = math.Max(score, 0.6)
		reasons = append(reasons, "Unusual pattern: This doctor requests this item frequently")
	}

	return &AnomalyReport{
		IsAnomaly: isAnomaly,
		Score:     round4(score),
		ZScore:    round2(zScore),
		Mean:      round2(mean),
		StdDev:    round2(stdDev),
		Reasons:   reasons,
	}, nil
}

// OptimalReorder recommends a reorder quantity for an item based on the
// 30-day demand prediction plus safety stock
func (s *DemandService) OptimalReorder(ctx context.Context, itemID string) (*ReorderSuggestion, error) {
	item, err := s.catalog.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	prediction, err := s.PredictDemand(ctx, itemID, 30)
	if err != nil {
		return nil, err
	}

	demand := prediction.PredictedDemand
	// Truncation, not rounding: callers compare suggestions against
	// historical figures computed the same way.
	safetyStock := int(float64(demand) * safetyStockFactor)
	if item.MinStock > safetyStock {
		safetyStock = item.MinStock
	}
	optimalStock := demand + safetyStock

	reorder := optimalStock - item.Stock
	if reorder < 0 {
		reorder = 0
	}

	return &ReorderSuggestion{
		CurrentStock:       item.Stock,
		MinStock:           item.MinStock,
		PredictedDemand:    demand,
		OptimalStock:       optimalStock,
		RecommendedReorder: reorder,
		Confidence:         prediction.Confidence,
	}, nil
}

// TrainModels refits predictions for every item. Per-item failures are
// reported in the result rather than aborting the run.
func (s *DemandService) TrainModels(ctx context.Context) ([]TrainingResult, error) {
	results := []TrainingResult{}

	page := 1
	for {
		items, total, err := s.catalog.List(ctx, page, 100, "")
		if err != nil {
			return nil, err
		}

		for _, item := range items {
			if err := s.store.InvalidateCache(ctx, item.ID); err != nil {
				s.logger.Warn().Err(err).Str("item_id", item.ID).Msg("cache invalidation failed")
			}

			prediction, err := s.PredictDemand(ctx, item.ID, 30)
			if err != nil {
				s.logger.Warn().Err(err).Str("item_id", item.ID).Msg("training failed")
				results = append(results, TrainingResult{ItemID: item.ID, Status: "insufficient_data"})
				continue
			}

			status := "trained"
			if prediction.PredictedDemand == 0 && prediction.Confidence == 0 {
				status = "insufficient_data"
			}
			results = append(results, TrainingResult{
				ItemID:     item.ID,
				Status:     status,
				DataPoints: prediction.DataPoints,
			})
		}

		if int64(page*100) >= total || len(items) == 0 {
			break
		}
		page++
	}

	return results, nil
}

// EvaluateRequest scores a freshly created request and persists a finding
// when the score is significant. Called by the lifecycle engine after the
// transition commits; all failures are swallowed.
func (s *DemandService) EvaluateRequest(ctx context.Context, req *repository.Request, item *repository.InventoryItem) {
	report, err := s.DetectAnomaly(ctx, req.ItemID, req.DoctorID, req.Quantity, req.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("request_id", req.ID).Msg("anomaly evaluation failed")
		return
	}

	if !report.IsAnomaly || report.Score <= 0.5 {
		return
	}

	finding := &repository.AnomalyFinding{
		RequestID: req.ID,
		ItemID:    req.ItemID,
		DoctorID:  req.DoctorID,
		Quantity:  req.Quantity,
		Score:     report.Score,
		ZScore:    report.ZScore,
		Reasons:   report.Reasons,
	}

	if err := s.anomalies.Create(ctx, finding); err != nil {
		s.logger.Error().Err(err).Str("request_id", req.ID).Msg("failed to persist anomaly finding")
		return
	}

	s.publisher.PublishAnomalyDetected(ctx, finding, item.Name)
}

// ListAnomalies lists persisted findings
func (s *DemandService) ListAnomalies(ctx context.Context, unresolvedOnly bool, limit int) ([]*repository.AnomalyFinding, error) {
	return s.anomalies.List(ctx, unresolvedOnly, limit)
}

// ResolveAnomaly marks a finding as reviewed
func (s *DemandService) ResolveAnomaly(ctx context.Context, id, actorID, actorName string) (*repository.AnomalyFinding, error) {
	finding, err := s.anomalies.Resolve(ctx, id, actorName)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, repository.ActionAnomalyResolved, "anomaly", id, actorID, actorName, nil)

	return finding, nil
}

// targetDate normalizes the prediction horizon to a date cache key
func (s *DemandService) targetDate(daysAhead int) time.Time {
	t := s.now().UTC().AddDate(0, 0, daysAhead)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func seasonOf(m time.Month) int {
	switch {
	case m >= time.March && m <= time.May:
		return 1
	case m >= time.June && m <= time.August:
		return 2
	case m >= time.September && m <= time.November:
		return 3
	default:
		return 4
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
