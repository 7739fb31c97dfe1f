// toolkit/db/mongodb/keyset.go
package mongodb

import (
	"encoding/base64"
	"encoding/json"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// KeysetWindow composes a two-clause $or for stable keyset pagination on (field, _id).
// dir must be "lt" or "gt".
func KeysetWindow(field, dir, key string, id any) bson.M {
	op := "$gt"
	if dir == "lt" {
		op = "$lt"
	}
	return bson.M{"$or": []bson.M{
		{field: bson.M{op: key}},
		{field: key, "_id": bson.M{op: id}},
	}}
}

// Cursor is a keyset position: the sort key of the last item seen plus its
// _id as the tiebreak.
type Cursor struct {
	Key string             `json:"k"`
	ID  primitive.ObjectID `json:"id"`
}

// EncodeCursor encodes a (key, id) pair into a URL-safe string.
func EncodeCursor(key string, id primitive.ObjectID) string {
	b, _ := json.Marshal(Cursor{Key: key, ID: id})
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor decodes a cursor string; returns false on invalid input.
func DecodeCursor(s string) (Cursor, bool) {
	if s == "" {
		return Cursor{}, false
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, false
	}
	var out Cursor
	if err := json.Unmarshal(b, &out); err != nil {
		return Cursor{}, false
	}
	if out.ID.IsZero() {
		return Cursor{}, false
	}
	return out, true
}
