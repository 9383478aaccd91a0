package guid

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// MarshalBSONValue stores the GUID in its text form, so stored peers stay human-readable.
func (g PeerGUID) MarshalBSONValue() (bsontype.Type, []byte, error) {
	text, err := g.MarshalText()
	if err != nil {
		return 0, nil, err
	}

	return bson.MarshalValue(string(text))
}

func (g *PeerGUID) UnmarshalBSONValue(t bsontype.Type, b []byte) error {
	var s string

	if err := bson.UnmarshalValue(t, b, &s); err != nil {
		return err
	}

	return g.UnmarshalText([]byte(s))
}
