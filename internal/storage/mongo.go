package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"task-api/internal/logger"
	"task-api/internal/models"
)

type taskDocument struct {
	ID          primitive.ObjectID `bson:"_id"`
	Description string             `bson:"description"`
	Completed   bool               `bson:"completed"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

func (d taskDocument) task() models.Task {
	return models.Task{
		ID:          d.ID.Hex(),
		Description: d.Description,
		Completed:   d.Completed,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// MongoStorage keeps one document per task in a single collection.
// Ids are ObjectID hex strings; anything else never matches.
type MongoStorage struct {
	client     *mongo.Client
	coll       *mongo.Collection
	database   string
	collection string
}

var _ Store = (*MongoStorage)(nil)

func NewMongoStorage(ctx context.Context, uri, database, collection string) (*MongoStorage, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect to mongo")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "ping mongo")
	}

	logger.Info(ctx, "mongo connected", "database", database, "collection", collection)
	return &MongoStorage{
		client:     client,
		coll:       client.Database(database).Collection(collection),
		database:   database,
		collection: collection,
	}, nil
}

// Migrate creates the collection when it is missing.
func (m *MongoStorage) Migrate(ctx context.Context) error {
	db := m.client.Database(m.database)
	names, err := db.ListCollectionNames(ctx, bson.M{"name": m.collection})
	if err != nil {
		return errors.Wrap(err, "list collections")
	}
	if len(names) > 0 {
		return nil
	}
	return errors.Wrapf(db.CreateCollection(ctx, m.collection), "create collection %s", m.collection)
}

func (m *MongoStorage) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func newTaskDocument(t models.NewTask, now time.Time) taskDocument {
	return taskDocument{
		ID:          primitive.NewObjectID(),
		Description: t.Description,
		Completed:   t.Completed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// objectIDs de-duplicates ids and drops those that are not valid hex.
func objectIDs(ids []string) []primitive.ObjectID {
	return lo.FilterMap(lo.Uniq(ids), func(id string, _ int) (primitive.ObjectID, bool) {
		oid, err := primitive.ObjectIDFromHex(id)
		return oid, err == nil
	})
}

func (m *MongoStorage) Insert(ctx context.Context, t models.NewTask) (*models.Task, error) {
	doc := newTaskDocument(t, time.Now().UTC().Truncate(time.Millisecond))
	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		return nil, errors.Wrap(err, "insert task")
	}
	task := doc.task()
	return &task, nil
}

// InsertMany runs one ordered insert. Mongo stops at the first failing
// document without undoing earlier ones.
func (m *MongoStorage) InsertMany(ctx context.Context, ts []models.NewTask) ([]models.Task, error) {
	if len(ts) == 0 {
		return []models.Task{}, nil
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	docs := make([]interface{}, 0, len(ts))
	tasks := make([]models.Task, 0, len(ts))
	for _, t := range ts {
		doc := newTaskDocument(t, now)
		docs = append(docs, doc)
		tasks = append(tasks, doc.task())
	}

	if _, err := m.coll.InsertMany(ctx, docs); err != nil {
		return nil, errors.Wrap(err, "insert tasks")
	}
	return tasks, nil
}

func (m *MongoStorage) decodeOne(res *mongo.SingleResult, op, id string) (*models.Task, error) {
	var doc taskDocument
	if err := res.Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "%s task %s", op, id)
	}
	task := doc.task()
	return &task, nil
}

func (m *MongoStorage) FindByID(ctx context.Context, id string) (*models.Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	return m.decodeOne(m.coll.FindOne(ctx, bson.M{"_id": oid}), "find", id)
}

func (m *MongoStorage) FindByIDAndUpdate(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	if patch.IsEmpty() {
		return m.FindByID(ctx, id)
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Completed != nil {
		set["completed"] = *patch.Completed
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	return m.decodeOne(m.coll.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}, opts), "update", id)
}

func (m *MongoStorage) FindByIDAndDelete(ctx context.Context, id string) (*models.Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}
	return m.decodeOne(m.coll.FindOneAndDelete(ctx, bson.M{"_id": oid}), "delete", id)
}

func (m *MongoStorage) FindIn(ctx context.Context, ids []string) ([]models.Task, error) {
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return []models.Task{}, nil
	}

	cursor, err := m.coll.Find(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return nil, errors.Wrap(err, "find tasks")
	}

	var docs []taskDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode tasks")
	}
	return lo.Map(docs, func(d taskDocument, _ int) models.Task { return d.task() }), nil
}

func (m *MongoStorage) UpdateMany(ctx context.Context, ids []string, completed bool) (models.UpdateSummary, error) {
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return models.UpdateSummary{Acknowledged: true}, nil
	}

	update := bson.M{"$set": bson.M{"completed": completed, "updated_at": time.Now().UTC()}}
	filter := bson.M{"_id": bson.M{"$in": oids}}

	res, err := m.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return models.UpdateSummary{}, errors.Wrap(err, "update tasks")
	}
	return models.UpdateSummary{
		Acknowledged:  true,
		MatchedCount:  res.MatchedCount,
		ModifiedCount: res.ModifiedCount,
	}, nil
}

func (m *MongoStorage) DeleteMany(ctx context.Context, ids []string) (models.DeleteSummary, error) {
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return models.DeleteSummary{Acknowledged: true}, nil
	}

	res, err := m.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": oids}})
	if err != nil {
		return models.DeleteSummary{}, errors.Wrap(err, "delete tasks")
	}
	return models.DeleteSummary{Acknowledged: true, DeletedCount: res.DeletedCount}, nil
}
