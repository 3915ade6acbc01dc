package mongo

import (
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
)

var ErrInvalidObjectID = errors.New("mongo: invalid ObjectId")

// ParseObjectID decodes a 24-character hex ObjectId.
func ParseObjectID(hex string) (bson.ObjectID, error) {
	id, err := bson.ObjectIDFromHex(hex)
	if err != nil {
		return bson.NilObjectID, ErrInvalidObjectID
	}
	return id, nil
}

// IsObjectID reports whether s parses as an ObjectId.
func IsObjectID(s string) bool {
	_, err := ParseObjectID(s)
	return err == nil
}
