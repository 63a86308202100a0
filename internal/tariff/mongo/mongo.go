// Package mongo serves tariffs from a MongoDB collection, typically the
// secondary store fed by carrier-side exports.
package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"deliverycost/internal/tariff"
)

// DefaultCollection is the collection tariffs are read from.
const DefaultCollection = "tariffs"

// document is the stored shape of a tariff.
type document struct {
	Service     string             `bson:"service"`
	WilayaCode  int                `bson:"wilayaCode"`
	WilayaName  string             `bson:"wilayaName,omitempty"`
	Commune     string             `bson:"commune"`
	CommuneKey  string             `bson:"communeKey"`
	HomePrice   int64              `bson:"homePrice"`
	OfficePrice int64              `bson:"officePrice"`
	Supplements tariff.Supplements `bson:"supplements,omitempty"`
	UpdatedAt   time.Time          `bson:"updatedAt,omitempty"`
}

func (d document) record() tariff.Record {
	return tariff.Record{
		Service:     d.Service,
		WilayaCode:  d.WilayaCode,
		WilayaName:  d.WilayaName,
		Commune:     d.Commune,
		HomePrice:   d.HomePrice,
		OfficePrice: d.OfficePrice,
		Supplements: d.Supplements,
		Source:      "mongo",
	}
}

func newDocument(r tariff.Record, now time.Time) document {
	key := r.Key()
	return document{
		Service:     key.Service,
		WilayaCode:  key.WilayaCode,
		WilayaName:  r.WilayaName,
		Commune:     r.Commune,
		CommuneKey:  key.Commune,
		HomePrice:   r.HomePrice,
		OfficePrice: r.OfficePrice,
		Supplements: r.Supplements,
		UpdatedAt:   now,
	}
}

// Source reads tariffs from one collection.
type Source struct {
	collection *mongo.Collection
}

func New(db *mongo.Database, collection string) *Source {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Source{collection: db.Collection(collection)}
}

func (s *Source) Name() string { return "mongo" }

// EnsureIndexes creates the unique lookup index.
func (s *Source) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "service", Value: 1},
			{Key: "wilayaCode", Value: 1},
			{Key: "communeKey", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (s *Source) FetchTariff(ctx context.Context, service string, wilayaCode int, commune string) (*tariff.Record, error) {
	key := tariff.NewKey(service, wilayaCode, commune)
	var doc document
	err := s.collection.FindOne(ctx, bson.M{
		"service":    key.Service,
		"wilayaCode": key.WilayaCode,
		"communeKey": key.Commune,
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r := doc.record()
	return &r, nil
}

func (s *Source) ListTariffs(ctx context.Context, service string, wilayaCode int) ([]tariff.Record, error) {
	filter := bson.M{
		"service":    strings.ToLower(strings.TrimSpace(service)),
		"wilayaCode": wilayaCode,
	}
	cursor, err := s.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "communeKey", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]tariff.Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.record())
	}
	return out, nil
}

// Upsert replaces the documents of the given records and returns how many
// were written.
func (s *Source) Upsert(ctx context.Context, records []tariff.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	models := make([]mongo.WriteModel, 0, len(records))
	for _, r := range records {
		doc := newDocument(r, now)
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{
				"service":    doc.Service,
				"wilayaCode": doc.WilayaCode,
				"communeKey": doc.CommuneKey,
			}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	res, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, err
	}
	return int(res.UpsertedCount + res.MatchedCount), nil
}
