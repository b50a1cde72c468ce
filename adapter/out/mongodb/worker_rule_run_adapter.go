package mongodb

import (
	"context"
	"time"

	"crm_worker/core/domain"
	"crm_worker/core/port/out"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionRuleRuns = "rule_runs"

// RuleRunAdapter implements out.RunLog using MongoDB.
type RuleRunAdapter struct {
	collection *mongo.Collection
	retention  time.Duration
	now        func() time.Time
}

// NewRuleRunAdapter creates the adapter. Documents expire after retention.
func NewRuleRunAdapter(db *mongo.Database, retention time.Duration) *RuleRunAdapter {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &RuleRunAdapter{
		collection: db.Collection(collectionRuleRuns),
		retention:  retention,
		now:        time.Now,
	}
}

// EnsureIndexes creates the lookup and TTL indexes.
func (a *RuleRunAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "email_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "matched_rules", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// ruleRunDocument is the stored form of one processed message.
type ruleRunDocument struct {
	EmailID      int64             `bson:"email_id"`
	Success      bool              `bson:"success"`
	Skipped      bool              `bson:"skipped,omitempty"`
	Error        string            `bson:"error,omitempty"`
	MatchedRules []int64           `bson:"matched_rules"`
	Results      []ruleResultDoc   `bson:"results"`
	Source       string            `bson:"source,omitempty"`
	SubSource    string            `bson:"sub_source,omitempty"`
	Stage        string            `bson:"stage,omitempty"`
	MappedFields map[string]string `bson:"mapped_fields,omitempty"`
	DurationMs   int64             `bson:"duration_ms"`
	CreatedAt    time.Time         `bson:"created_at"`
	ExpiresAt    time.Time         `bson:"expires_at"`
}

type ruleResultDoc struct {
	RuleID  int64  `bson:"rule_id"`
	Rule    string `bson:"rule"`
	Action  string `bson:"action"`
	Success bool   `bson:"success"`
	Code    string `bson:"code,omitempty"`
	Error   string `bson:"error,omitempty"`
	Created bool   `bson:"created,omitempty"`
}

func toDocument(r *domain.EmailResult, now time.Time, retention time.Duration) *ruleRunDocument {
	doc := &ruleRunDocument{
		EmailID:      r.EmailID,
		Success:      r.Success,
		Skipped:      r.Skipped,
		Error:        r.Error,
		MatchedRules: r.MatchedRules,
		Results:      make([]ruleResultDoc, 0, len(r.RuleResults)),
		DurationMs:   r.Duration.Milliseconds(),
		CreatedAt:    now,
		ExpiresAt:    now.Add(retention),
	}
	if doc.MatchedRules == nil {
		doc.MatchedRules = []int64{}
	}
	if m := r.CategoryMapping; m != nil {
		doc.Source = m.Source
		doc.SubSource = m.SubSource
		doc.Stage = m.Stage
		doc.MappedFields = m.MappedFields
	}
	for _, rr := range r.RuleResults {
		doc.Results = append(doc.Results, ruleResultDoc{
			RuleID:  rr.RuleID,
			Rule:    rr.RuleName,
			Action:  string(rr.Action),
			Success: rr.Result.Success,
			Code:    rr.Result.Code,
			Error:   rr.Result.Error,
			Created: rr.Result.Created,
		})
	}
	return doc
}

func (a *RuleRunAdapter) Record(ctx context.Context, result *domain.EmailResult) error {
	_, err := a.collection.InsertOne(ctx, toDocument(result, a.now(), a.retention))
	return err
}

// RuleRun is a stored run as returned to API callers.
type RuleRun struct {
	EmailID      int64             `json:"email_id"`
	Success      bool              `json:"success"`
	Skipped      bool              `json:"skipped,omitempty"`
	Error        string            `json:"error,omitempty"`
	MatchedRules []int64           `json:"matched_rules"`
	Results      []RuleRunResult   `json:"results"`
	MappedFields map[string]string `json:"mapped_fields,omitempty"`
	DurationMs   int64             `json:"duration_ms"`
	CreatedAt    time.Time         `json:"created_at"`
}

type RuleRunResult struct {
	RuleID  int64  `json:"rule_id"`
	Rule    string `json:"rule"`
	Action  string `json:"action"`
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Recent returns the newest runs for a message.
func (a *RuleRunAdapter) Recent(ctx context.Context, emailID int64, limit int64) ([]RuleRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cursor, err := a.collection.Find(ctx, bson.M{"email_id": emailID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []ruleRunDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	runs := make([]RuleRun, 0, len(docs))
	for _, d := range docs {
		run := RuleRun{
			EmailID:      d.EmailID,
			Success:      d.Success,
			Skipped:      d.Skipped,
			Error:        d.Error,
			MatchedRules: d.MatchedRules,
			Results:      make([]RuleRunResult, 0, len(d.Results)),
			MappedFields: d.MappedFields,
			DurationMs:   d.DurationMs,
			CreatedAt:    d.CreatedAt,
		}
		for _, r := range d.Results {
			run.Results = append(run.Results, RuleRunResult{
				RuleID: r.RuleID, Rule: r.Rule, Action: r.Action,
				Success: r.Success, Code: r.Code, Error: r.Error,
			})
		}
		runs = append(runs, run)
	}
	return runs, nil
}

var _ out.RunLog = (*RuleRunAdapter)(nil)
