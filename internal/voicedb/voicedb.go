package voicedb

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Vector is a fixed-dimension voice embedding.
type Vector []float64

// Clone returns an independent copy of the vector.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// DB maps speaker identities to their enrolled embeddings. Speakers iterate in
// enrollment order, which downstream tie-breaking depends on.
type DB struct {
	order   []string
	vectors map[string][]Vector
}

func NewDB() *DB {
	return &DB{vectors: make(map[string][]Vector)}
}

// Append adds a vector to the speaker's sequence, registering the speaker on
// first enrollment.
func (db *DB) Append(speaker string, vec Vector) {
	if _, ok := db.vectors[speaker]; !ok {
		db.order = append(db.order, speaker)
	}
	db.vectors[speaker] = append(db.vectors[speaker], vec)
}

// Speakers returns speaker identities in enrollment order.
func (db *DB) Speakers() []string {
	return db.order
}

// Vectors returns the enrolled embeddings for a speaker, oldest first.
func (db *DB) Vectors(speaker string) []Vector {
	return db.vectors[speaker]
}

func (db *DB) Empty() bool {
	return len(db.order) == 0
}

// Size returns the total number of enrolled vectors across all speakers.
func (db *DB) Size() int {
	n := 0
	for _, vecs := range db.vectors {
		n += len(vecs)
	}
	return n
}

// Clone deep-copies the database.
func (db *DB) Clone() *DB {
	out := NewDB()
	for _, speaker := range db.order {
		for _, vec := range db.vectors[speaker] {
			out.Append(speaker, vec.Clone())
		}
	}
	return out
}

// MarshalJSON serializes the database as a plain speaker -> vectors object,
// keys in enrollment order. The format matches the legacy embeddings.json
// layout and must stay stable.
func (db *DB) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, speaker := range db.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(speaker)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		vecs, err := json.Marshal(db.vectors[speaker])
		if err != nil {
			return nil, err
		}
		buf.Write(vecs)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes the speaker object token by token so that key order in
// the file becomes enrollment order in memory.
func (db *DB) UnmarshalJSON(data []byte) error {
	db.order = nil
	db.vectors = make(map[string][]Vector)

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		speaker, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected speaker key, got %v", tok)
		}
		var vecs []Vector
		if err := dec.Decode(&vecs); err != nil {
			return fmt.Errorf("decode vectors for %q: %w", speaker, err)
		}
		if len(vecs) == 0 {
			// keep speakers with no samples rather than dropping them
			if _, ok := db.vectors[speaker]; !ok {
				db.order = append(db.order, speaker)
				db.vectors[speaker] = []Vector{}
			}
			continue
		}
		for _, vec := range vecs {
			db.Append(speaker, vec)
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
