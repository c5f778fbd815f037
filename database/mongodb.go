package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/trdSystemDev/Medko-Prescricao/config"
	"github.com/trdSystemDev/Medko-Prescricao/normalize"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBClient stores rows as documents. The collection is expected to
// carry a unique index on the natural key.
type MongoDBClient struct {
	URI        string
	DBName     string
	Collection string
	Client     *mongo.Client
	coll       *mongo.Collection
}

// creating a new MongoDbClient using manual parameters
func NewMongoDBClient(uri, dbname, collection string) *MongoDBClient {
	return &MongoDBClient{
		URI:        uri,
		DBName:     dbname,
		Collection: collection,
	}
}

// creating a new MongoDBClient from a parsed DATABASE_URL
func NewMongoDBClientFromConnection(conn *config.Connection, collection string) *MongoDBClient {
	return &MongoDBClient{
		URI:        conn.MongoURI(),
		DBName:     conn.Database,
		Collection: collection,
	}
}

func (m *MongoDBClient) Name() string { return config.BackendMongoDB }

// connecting to mongoDB
func (m *MongoDBClient) Connect(ctx context.Context) error {
	if m.DBName == "" {
		return fmt.Errorf("mongodb connection string must name a database")
	}

	//setting timeout for connection
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(m.URI))
	if err != nil {
		return fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	//checking connection
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	m.Client = client
	m.coll = client.Database(m.DBName).Collection(m.Collection)

	slog.Debug("connected to mongodb", "database", m.DBName, "collection", m.Collection)
	return nil
}

// closing the mongodb connection
func (m *MongoDBClient) Close() error {
	if m.Client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return m.Client.Disconnect(ctx)
	}
	return nil
}

// InsertBatch writes the rows with an ordered InsertMany. Every document gets
// its _id up front so that a rejected batch can be removed again.
func (m *MongoDBClient) InsertBatch(ctx context.Context, rows []normalize.Row) InsertResult {
	if m.coll == nil {
		return insertFailed(fmt.Errorf("mongodb connection not established"))
	}
	if len(rows) == 0 {
		return insertOK(0)
	}

	ids := make([]primitive.ObjectID, len(rows))
	docs := make([]any, len(rows))
	for i := range rows {
		ids[i] = primitive.NewObjectID()
		docs[i] = toDocument(ids[i], &rows[i])
	}

	_, err := m.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	if err == nil {
		return insertOK(len(rows))
	}

	// ordered inserts stop at the first failure, the prefix before it is already written
	if _, delErr := m.coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); delErr != nil {
		return insertFailed(fmt.Errorf("batch insert failed, %v; cleanup failed, %w", err, delErr))
	}
	if mongo.IsDuplicateKeyError(err) {
		return insertConflict(err)
	}
	return insertFailed(err)
}

func (m *MongoDBClient) InsertRow(ctx context.Context, row normalize.Row) InsertResult {
	if m.coll == nil {
		return insertFailed(fmt.Errorf("mongodb connection not established"))
	}
	if _, err := m.coll.InsertOne(ctx, toDocument(primitive.NewObjectID(), &row)); err != nil {
		return classifyMongo(err)
	}
	return insertOK(1)
}

func (m *MongoDBClient) CountRows(ctx context.Context) (int64, error) {
	if m.coll == nil {
		return 0, fmt.Errorf("mongodb connection not established")
	}
	n, err := m.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("failed to count documents in %s, %w", m.Collection, err)
	}
	return n, nil
}

func classifyMongo(err error) InsertResult {
	if mongo.IsDuplicateKeyError(err) {
		return insertConflict(err)
	}
	return insertFailed(err)
}

// toDocument keeps the column order of the SQL tables; null cells are stored as null
func toDocument(id primitive.ObjectID, row *normalize.Row) bson.D {
	doc := make(bson.D, 0, normalize.ColumnCount+1)
	doc = append(doc, bson.E{Key: "_id", Value: id})
	for i, col := range normalize.Columns {
		doc = append(doc, bson.E{Key: col, Value: row[i]})
	}
	return doc
}
