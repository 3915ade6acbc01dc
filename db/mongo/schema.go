package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CollectionRules lists the ascending compound indexes of one collection.
// Each inner slice is one index, fields in key order.
type CollectionRules struct {
	Unique [][]string `json:"unique,omitempty" yaml:"unique,omitempty"`
	Index  [][]string `json:"index,omitempty" yaml:"index,omitempty"`
}

// Schema maps collection names to their index rules.
type Schema map[string]CollectionRules

// Server codes for an index that exists with different options or name.
const (
	codeIndexOptionsConflict  = 85
	codeIndexKeySpecsConflict = 86
)

// IndexModels turns rules into driver index models, unique indexes first.
// Empty field lists are skipped.
func IndexModels(rules CollectionRules) []mongo.IndexModel {
	models := make([]mongo.IndexModel, 0, len(rules.Unique)+len(rules.Index))
	for _, fields := range rules.Unique {
		if len(fields) == 0 {
			continue
		}
		models = append(models, mongo.IndexModel{
			Keys:    ascending(fields),
			Options: options.Index().SetUnique(true),
		})
	}
	for _, fields := range rules.Index {
		if len(fields) == 0 {
			continue
		}
		models = append(models, mongo.IndexModel{Keys: ascending(fields)})
	}
	return models
}

func ascending(fields []string) bson.D {
	keys := make(bson.D, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, bson.E{Key: f, Value: 1})
	}
	return keys
}

// RegisterSchema records schema and creates its indexes. Creating an index
// that already exists is a no-op on the server; conflicting definitions are
// logged and skipped so startup can continue.
func (c *Connection) RegisterSchema(ctx context.Context, schema Schema) error {
	c.mu.Lock()
	for name, rules := range schema {
		c.schema[name] = rules
	}
	c.mu.Unlock()

	for name, rules := range schema {
		coll := c.db.Collection(name)
		for _, model := range IndexModels(rules) {
			if _, err := coll.Indexes().CreateOne(ctx, model); err != nil {
				if isIndexConflict(err) {
					c.log.Warn().Err(err).
						Str("collection", name).
						Str("keys", describeKeys(model.Keys)).
						Msg("index already exists with different options")
					continue
				}
				return fmt.Errorf("mongo: create index on %s: %w", name, err)
			}
		}
	}
	return nil
}

func isIndexConflict(err error) bool {
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == codeIndexOptionsConflict || cmdErr.Code == codeIndexKeySpecsConflict
	}
	return false
}

func describeKeys(keys any) string {
	d, ok := keys.(bson.D)
	if !ok {
		return fmt.Sprint(keys)
	}
	names := make([]string, len(d))
	for i, e := range d {
		names[i] = e.Key
	}
	return strings.Join(names, ",")
}
