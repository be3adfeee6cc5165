// Package mongo stores records as documents in MongoDB, one collection per
// record kind plus users and sessions.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/storage"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store wraps MongoDB operations
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ storage.Store = (*Store)(nil)

// New connects to uri, checks the connection and ensures indexes on dbName.
func New(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err = client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := &Store{client: client, db: client.Database(dbName)}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection("users").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	for _, k := range core.Kinds() {
		_, err := s.db.Collection(string(k)).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
		})
		if err != nil {
			return fmt.Errorf("create %s index: %w", k, err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return core.Persistence("ping", s.client.Ping(ctx, nil))
}

func (s *Store) InsertRecord(ctx context.Context, rec core.Record) error {
	doc, err := toDoc(rec)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(string(rec.Kind())).InsertOne(ctx, doc)
	return core.Persistence("insert "+string(rec.Kind()), err)
}

func (s *Store) GetRecord(ctx context.Context, kind core.Kind, id string) (core.Record, error) {
	res := s.db.Collection(string(kind)).FindOne(ctx, bson.M{"_id": id})
	rec, err := decodeRecord(kind, res)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &core.NotFoundError{Kind: string(kind), ID: id}
	}
	if err != nil {
		return nil, core.Persistence("get "+string(kind), err)
	}
	return rec, nil
}

// dateField is the document field the filter's date bounds apply to.
var dateField = map[core.Kind]string{
	core.KindTransaction: "date",
	core.KindSavings:     "createdAt",
	core.KindBill:        "dueDate",
}

func (s *Store) ListRecords(ctx context.Context, userID string, kind core.Kind, f core.Filter) ([]core.Record, error) {
	filter := bson.M{"userId": userID}
	dates := bson.M{}
	if !f.From.IsZero() {
		dates["$gte"] = f.From
	}
	if !f.To.IsZero() {
		dates["$lte"] = f.To
	}
	if len(dates) > 0 {
		filter[dateField[kind]] = dates
	}
	if kind == core.KindTransaction {
		if f.Category != "" {
			filter["category"] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(f.Category) + "$", Options: "i"}
		}
		if f.Type != "" {
			filter["type"] = string(f.Type)
		}
	}

	opts := options.Find().SetSort(sortFor(f.Order, dateField[kind]))
	if f.Limit > 0 {
		opts = opts.SetLimit(int64(f.Limit))
	}

	cursor, err := s.db.Collection(string(kind)).Find(ctx, filter, opts)
	if err != nil {
		return nil, core.Persistence("list "+string(kind), err)
	}
	defer cursor.Close(ctx)

	out := []core.Record{}
	for cursor.Next(ctx) {
		rec, err := decodeRecord(kind, cursor)
		if err != nil {
			return nil, core.Persistence("decode "+string(kind), err)
		}
		out = append(out, rec)
	}
	if err := cursor.Err(); err != nil {
		return nil, core.Persistence("list "+string(kind), err)
	}
	return out, nil
}

func sortFor(o core.Order, dateField string) bson.D {
	switch o {
	case core.OrderCreatedAsc:
		return bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}
	case core.OrderDateDesc:
		return bson.D{{Key: dateField, Value: -1}, {Key: "_id", Value: -1}}
	case core.OrderDateAsc:
		return bson.D{{Key: dateField, Value: 1}, {Key: "_id", Value: 1}}
	}
	return bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}
}

// ReplaceRecord swaps the document only when both id and owner match. The
// stored creation time is kept.
func (s *Store) ReplaceRecord(ctx context.Context, rec core.Record) error {
	doc, err := toDoc(rec)
	if err != nil {
		return err
	}
	set, err := toSet(doc)
	if err != nil {
		return core.Persistence("encode "+string(rec.Kind()), err)
	}
	h := rec.Header()
	res, err := s.db.Collection(string(rec.Kind())).UpdateOne(ctx,
		bson.M{"_id": h.ID, "userId": h.UserID},
		bson.M{"$set": set})
	if err != nil {
		return core.Persistence("update "+string(rec.Kind()), err)
	}
	if res.MatchedCount == 0 {
		return &core.NotFoundError{Kind: string(rec.Kind()), ID: h.ID}
	}
	return nil
}

func (s *Store) DeleteRecord(ctx context.Context, userID string, kind core.Kind, id string) error {
	res, err := s.db.Collection(string(kind)).DeleteOne(ctx, bson.M{"_id": id, "userId": userID})
	if err != nil {
		return core.Persistence("delete "+string(kind), err)
	}
	if res.DeletedCount == 0 {
		return &core.NotFoundError{Kind: string(kind), ID: id}
	}
	return nil
}

func (s *Store) ListBillsDueBefore(ctx context.Context, before time.Time) ([]*core.Bill, error) {
	opts := options.Find().SetSort(bson.D{{Key: "dueDate", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(string(core.KindBill)).Find(ctx, bson.M{"dueDate": bson.M{"$lte": before}}, opts)
	if err != nil {
		return nil, core.Persistence("list due bills", err)
	}
	defer cursor.Close(ctx)

	bills := []*core.Bill{}
	for cursor.Next(ctx) {
		var d billDoc
		if err := cursor.Decode(&d); err != nil {
			return nil, core.Persistence("decode bills", err)
		}
		bills = append(bills, d.record())
	}
	if err := cursor.Err(); err != nil {
		return nil, core.Persistence("list due bills", err)
	}
	return bills, nil
}

func (s *Store) CreateUser(ctx context.Context, u core.User) error {
	_, err := s.db.Collection("users").InsertOne(ctx, fromUser(u))
	if mongo.IsDuplicateKeyError(err) {
		return storage.ErrUsernameTaken
	}
	return core.Persistence("create user", err)
}

func (s *Store) GetUser(ctx context.Context, id string) (core.User, error) {
	return s.findUser(ctx, bson.M{"_id": id}, id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	return s.findUser(ctx, bson.M{"username": username}, username)
}

func (s *Store) findUser(ctx context.Context, filter bson.M, key string) (core.User, error) {
	var d userDoc
	err := s.db.Collection("users").FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.User{}, &core.NotFoundError{Kind: "user", ID: key}
	}
	if err != nil {
		return core.User{}, core.Persistence("get user", err)
	}
	return d.user(), nil
}

func (s *Store) ListUsers(ctx context.Context) ([]core.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.db.Collection("users").Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, core.Persistence("list users", err)
	}
	defer cursor.Close(ctx)

	users := []core.User{}
	for cursor.Next(ctx) {
		var d userDoc
		if err := cursor.Decode(&d); err != nil {
			return nil, core.Persistence("decode user", err)
		}
		users = append(users, d.user())
	}
	if err := cursor.Err(); err != nil {
		return nil, core.Persistence("list users", err)
	}
	return users, nil
}

func (s *Store) SetUserRole(ctx context.Context, id string, role core.Role, now time.Time) error {
	res, err := s.db.Collection("users").UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"role": string(role), "updatedAt": now.UTC()}})
	if err != nil {
		return core.Persistence("set user role", err)
	}
	if res.MatchedCount == 0 {
		return &core.NotFoundError{Kind: "user", ID: id}
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess core.Session) error {
	_, err := s.db.Collection("sessions").ReplaceOne(ctx,
		bson.M{"_id": sess.Token},
		sessionDoc{Token: sess.Token, UserID: sess.UserID, ExpiresAt: sess.ExpiresAt},
		options.Replace().SetUpsert(true))
	return core.Persistence("create session", err)
}

func (s *Store) GetSession(ctx context.Context, token string) (core.Session, error) {
	var d sessionDoc
	err := s.db.Collection("sessions").FindOne(ctx, bson.M{"_id": token}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Session{}, &core.NotFoundError{Kind: "session", ID: "(redacted)"}
	}
	if err != nil {
		return core.Session{}, core.Persistence("get session", err)
	}
	return core.Session{Token: d.Token, UserID: d.UserID, ExpiresAt: d.ExpiresAt.UTC()}, nil
}

// Drop removes the whole database. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}
