package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tomtat/tomtat/internal/domain"
	"github.com/tomtat/tomtat/internal/ports"
)

// HistoryStore persists history records in the summary_history collection.
type HistoryStore struct {
	coll *mongo.Collection
}

// historyQuery translates a filter into a query document.
func historyQuery(f domain.HistoryFilter) bson.M {
	q := bson.M{}
	if f.UserID != "" {
		q["user_id"] = f.UserID
	}
	if f.Model != "" {
		q["model_used"] = f.Model
	}
	if f.Rating != "" {
		q["feedback.rating"] = string(f.Rating)
	}
	if f.HasFeedback != nil {
		if *f.HasFeedback {
			q["feedback"] = bson.M{"$ne": nil}
		} else {
			q["feedback"] = nil
		}
	}
	if f.From != nil || f.To != nil {
		created := bson.M{}
		if f.From != nil {
			created["$gte"] = *f.From
		}
		if f.To != nil {
			created["$lte"] = *f.To
		}
		q["created_at"] = created
	}
	return q
}

func (s *HistoryStore) Insert(ctx context.Context, rec domain.HistoryRecord) error {
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("mongodb: inserting history: %w", err)
	}
	return nil
}

func (s *HistoryStore) Get(ctx context.Context, id string) (domain.HistoryRecord, error) {
	var rec domain.HistoryRecord
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.HistoryRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.HistoryRecord{}, fmt.Errorf("mongodb: finding history: %w", err)
	}
	return rec, nil
}

func (s *HistoryStore) List(ctx context.Context, filter domain.HistoryFilter, page, pageSize int) ([]domain.HistoryRecord, int, error) {
	q := historyQuery(filter)
	total, err := s.coll.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("mongodb: counting history: %w", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(max(page-1, 0) * pageSize)).
		SetLimit(int64(pageSize))
	recs, err := s.find(ctx, q, opts)
	if err != nil {
		return nil, 0, err
	}
	return recs, int(total), nil
}

func (s *HistoryStore) find(ctx context.Context, q bson.M, opts *options.FindOptions) ([]domain.HistoryRecord, error) {
	cur, err := s.coll.Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: finding history: %w", err)
	}
	recs := []domain.HistoryRecord{}
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("mongodb: decoding history: %w", err)
	}
	return recs, nil
}

func (s *HistoryStore) SetFeedback(ctx context.Context, id string, fb domain.Feedback) error {
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"feedback": fb}})
	if err != nil {
		return fmt.Errorf("mongodb: saving feedback: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *HistoryStore) ListBadFeedback(ctx context.Context, userID, model string, limit int) ([]domain.HistoryRecord, error) {
	q := historyQuery(domain.HistoryFilter{UserID: userID, Model: model, Rating: domain.RatingBad})
	opts := options.Find().SetSort(bson.D{{Key: "feedback.feedback_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.find(ctx, q, opts)
}

func (s *HistoryStore) Delete(ctx context.Context, userID string, ids ...string) (int, error) {
	q := bson.M{"_id": bson.M{"$in": ids}}
	if userID != "" {
		q["user_id"] = userID
	}
	res, err := s.coll.DeleteMany(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("mongodb: deleting history: %w", err)
	}
	return int(res.DeletedCount), nil
}

func (s *HistoryStore) DeleteMatching(ctx context.Context, filter domain.HistoryFilter) (int, error) {
	res, err := s.coll.DeleteMany(ctx, historyQuery(filter))
	if err != nil {
		return 0, fmt.Errorf("mongodb: deleting history: %w", err)
	}
	return int(res.DeletedCount), nil
}

// statsPipeline groups a user's records by model.
func statsPipeline(userID string) mongo.Pipeline {
	countRating := func(r domain.Rating) bson.M {
		return bson.M{"$sum": bson.M{"$cond": bson.A{
			bson.M{"$eq": bson.A{"$feedback.rating", string(r)}}, 1, 0,
		}}}
	}
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user_id": userID}}},
		{{Key: "$group", Value: bson.M{
			"_id":                    "$model_used",
			"count":                  bson.M{"$sum": 1},
			"avg_compression_ratio":  bson.M{"$avg": "$metrics.compression_ratio"},
			"avg_processing_time_ms": bson.M{"$avg": "$metrics.processing_time_ms"},
			"good":                   countRating(domain.RatingGood),
			"bad":                    countRating(domain.RatingBad),
			"neutral":                countRating(domain.RatingNeutral),
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
}

func (s *HistoryStore) Stats(ctx context.Context, userID string) (domain.Analytics, error) {
	cur, err := s.coll.Aggregate(ctx, statsPipeline(userID))
	if err != nil {
		return domain.Analytics{}, fmt.Errorf("mongodb: aggregating history: %w", err)
	}
	models := []domain.ModelStats{}
	if err := cur.All(ctx, &models); err != nil {
		return domain.Analytics{}, fmt.Errorf("mongodb: decoding stats: %w", err)
	}

	out := domain.Analytics{Models: models}
	for i := range out.Models {
		m := &out.Models[i]
		m.AvgCompressionRatio = domain.Round(m.AvgCompressionRatio, 2)
		m.AvgProcessingTimeMs = domain.Round(m.AvgProcessingTimeMs, 2)
		out.TotalSummaries += m.Count
		out.WithFeedback += m.Good + m.Bad + m.Neutral
	}
	return out, nil
}

var _ ports.HistoryStore = (*HistoryStore)(nil)
