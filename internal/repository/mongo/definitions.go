package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"torrentstream/aggregator/internal/domain"
	"torrentstream/aggregator/internal/registry"
)

// DefinitionRepository stores user-defined Torznab providers.
type DefinitionRepository struct {
	collection *mongo.Collection
}

type definitionDoc struct {
	ID        string `bson:"_id"`
	Name      string `bson:"name"`
	BaseURL   string `bson:"baseUrl"`
	APIKey    string `bson:"apiKey,omitempty"`
	Category  string `bson:"category"`
	CreatedAt int64  `bson:"createdAt"`
	UpdatedAt int64  `bson:"updatedAt"`
}

func NewDefinitionRepository(client *mongo.Client, dbName, collectionName string) *DefinitionRepository {
	if collectionName == "" {
		collectionName = "providers"
	}
	return &DefinitionRepository{collection: client.Database(dbName).Collection(collectionName)}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *DefinitionRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: 1}},
	})
	return err
}

func (r *DefinitionRepository) ListDefinitions(ctx context.Context) ([]domain.ProviderDefinition, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []definitionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	defs := make([]domain.ProviderDefinition, 0, len(docs))
	for _, doc := range docs {
		defs = append(defs, fromDoc(doc))
	}
	return defs, nil
}

// SaveDefinition upserts def by id.
func (r *DefinitionRepository) SaveDefinition(ctx context.Context, def domain.ProviderDefinition) error {
	doc := toDoc(def)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (r *DefinitionRepository) DeleteDefinition(ctx context.Context, id string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return registry.ErrNotFound
	}
	return nil
}

func toDoc(def domain.ProviderDefinition) definitionDoc {
	created := def.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return definitionDoc{
		ID:        def.ID,
		Name:      def.Name,
		BaseURL:   def.BaseURL,
		APIKey:    def.APIKey,
		Category:  string(def.Category),
		CreatedAt: created.UnixMilli(),
		UpdatedAt: time.Now().UTC().UnixMilli(),
	}
}

func fromDoc(doc definitionDoc) domain.ProviderDefinition {
	return domain.ProviderDefinition{
		ID:        doc.ID,
		Name:      doc.Name,
		BaseURL:   doc.BaseURL,
		APIKey:    doc.APIKey,
		Category:  domain.Category(doc.Category),
		CreatedAt: time.UnixMilli(doc.CreatedAt).UTC(),
	}
}
