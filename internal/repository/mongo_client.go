package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"flanner/internal/domain"
)

const (
	recipesCollection     = "recipes"
	ingredientsCollection = "ingredients"

	defaultMongoTimeout = 10 * time.Second
)

// mongoCollection is the subset of *mongo.Collection used by MongoStore.
type mongoCollection interface {
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// MongoStore keeps recipes and ingredients in two MongoDB collections.
type MongoStore struct {
	db          *mongo.Database
	recipes     mongoCollection
	ingredients mongoCollection
	timeout     time.Duration
}

// NewMongoStore binds the store to db. A zero timeout uses a 10s per-call default.
func NewMongoStore(db *mongo.Database, timeout time.Duration) (*MongoStore, error) {
	if db == nil {
		return nil, errors.New("repository: mongo database must not be nil")
	}
	s, err := newMongoStore(db.Collection(recipesCollection), db.Collection(ingredientsCollection), timeout)
	if err != nil {
		return nil, err
	}
	s.db = db
	return s, nil
}

func newMongoStore(recipes, ingredients mongoCollection, timeout time.Duration) (*MongoStore, error) {
	if recipes == nil || ingredients == nil {
		return nil, errors.New("repository: mongo collections must not be nil")
	}
	if timeout <= 0 {
		timeout = defaultMongoTimeout
	}
	return &MongoStore{recipes: recipes, ingredients: ingredients, timeout: timeout}, nil
}

var mongoIndexes = []struct {
	Collection string
	Index      mongo.IndexModel
}{
	{recipesCollection, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetName("idx_recipes_name"),
	}},
	{ingredientsCollection, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetName("idx_ingredients_name"),
	}},
}

// EnsureIndexes creates the name indexes. It is safe to call on every start.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	for _, m := range mongoIndexes {
		if _, err := s.db.Collection(m.Collection).Indexes().CreateOne(ctx, m.Index); err != nil {
			return fmt.Errorf("repository: EnsureIndexes %s: %w", m.Collection, err)
		}
	}
	return nil
}

func (s *MongoStore) InsertRecipes(ctx context.Context, recipes []domain.Recipe) error {
	docs := make([]interface{}, 0, len(recipes))
	for _, r := range recipes {
		docs = append(docs, r)
	}
	if err := s.insertMany(ctx, s.recipes, docs); err != nil {
		return fmt.Errorf("repository: InsertRecipes: %w", err)
	}
	return nil
}

func (s *MongoStore) InsertIngredients(ctx context.Context, ingredients []domain.Ingredient) error {
	docs := make([]interface{}, 0, len(ingredients))
	for _, ing := range ingredients {
		docs = append(docs, ing)
	}
	if err := s.insertMany(ctx, s.ingredients, docs); err != nil {
		return fmt.Errorf("repository: InsertIngredients: %w", err)
	}
	return nil
}

func (s *MongoStore) insertMany(ctx context.Context, coll mongoCollection, docs []interface{}) error {
	if len(docs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	return err
}

// FindRecipes returns all recipes in insertion order.
func (s *MongoStore) FindRecipes(ctx context.Context) ([]domain.Recipe, error) {
	var out []domain.Recipe
	if err := s.findAll(ctx, s.recipes, &out); err != nil {
		return nil, fmt.Errorf("repository: FindRecipes: %w", err)
	}
	return out, nil
}

// FindIngredients returns all ingredients in insertion order.
func (s *MongoStore) FindIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	var out []domain.Ingredient
	if err := s.findAll(ctx, s.ingredients, &out); err != nil {
		return nil, fmt.Errorf("repository: FindIngredients: %w", err)
	}
	return out, nil
}

func (s *MongoStore) findAll(ctx context.Context, coll mongoCollection, results interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	cur, err := coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return err
	}
	return cur.All(ctx, results)
}
