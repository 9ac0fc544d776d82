package store

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/starweaver/starweaver/internal/constellation"
	"github.com/starweaver/starweaver/internal/errors"
	"github.com/starweaver/starweaver/internal/logging"
)

// Key scheme, "|" separated. Constellation IDs never contain "|".
//
//	c|<id> → serialized constellation document
//	m|<id> → Manifest JSON
const (
	prefixDocument = "c|"
	prefixManifest = "m|"
)

// Manifest is the listing row stored next to each document. It carries just
// enough to render a store listing without decoding snapshots.
type Manifest struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Tasks     int       `json:"tasks"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a LevelDB-backed snapshot store for constellations.
type Store struct {
	db     *leveldb.DB
	logger *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open opens (or creates) the store database at path. path is a directory;
// LevelDB creates it when absent.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.NewValidationError("store path must not be empty").
			WithField("path")
	}

	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "open snapshot store %s", path)
	}

	s := &Store{
		db:     db,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("store")
	return s, nil
}

// Save writes the constellation's current snapshot, overwriting any previous
// one. The document and its manifest row land in one batch.
func (s *Store) Save(c *constellation.Constellation) error {
	if c == nil {
		return errors.NewValidationError("constellation must not be nil").
			WithField("constellation")
	}

	data, err := c.Serialize()
	if err != nil {
		return errors.Wrapf(err, "serialize constellation %s", c.ID())
	}
	row, err := json.Marshal(Manifest{
		ID:        c.ID(),
		Name:      c.Name(),
		State:     string(c.State()),
		Tasks:     c.TaskCount(),
		UpdatedAt: c.UpdatedAt(),
	})
	if err != nil {
		return errors.Wrapf(err, "encode manifest for %s", c.ID())
	}

	batch := new(leveldb.Batch)
	batch.Put([]byte(prefixDocument+c.ID()), data)
	batch.Put([]byte(prefixManifest+c.ID()), row)
	if err := s.db.Write(batch, nil); err != nil {
		return errors.Wrapf(err, "persist constellation %s", c.ID())
	}

	s.logger.Debug("snapshot saved",
		"constellation_id", c.ID(), "state", string(c.State()), "tasks", c.TaskCount())
	return nil
}

// Load revives a stored constellation. Options are passed through to the
// rebuild, the stored ID wins over WithID.
func (s *Store) Load(id string, opts ...constellation.Option) (*constellation.Constellation, error) {
	data, err := s.get(id)
	if err != nil {
		return nil, err
	}
	c, err := constellation.Deserialize(data, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "rebuild constellation %s", id)
	}
	return c, nil
}

// LoadDocument returns the stored snapshot as a decoded document, without
// reviving a live constellation.
func (s *Store) LoadDocument(id string) (*constellation.Document, error) {
	data, err := s.get(id)
	if err != nil {
		return nil, err
	}
	doc, err := constellation.DecodeDocument(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decode constellation %s", id)
	}
	return doc, nil
}

// List returns the manifest rows of every stored constellation, newest
// first.
func (s *Store) List() ([]Manifest, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefixManifest)), nil)
	defer iter.Release()

	var out []Manifest
	for iter.Next() {
		var m Manifest
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			s.logger.Warn("undecodable manifest row skipped",
				"key", string(iter.Key()), "error", err)
			continue
		}
		out = append(out, m)
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "scan manifests")
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Delete removes a stored constellation and its manifest row.
func (s *Store) Delete(id string) error {
	if _, err := s.get(id); err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Delete([]byte(prefixDocument + id))
	batch.Delete([]byte(prefixManifest + id))
	if err := s.db.Write(batch, nil); err != nil {
		return errors.Wrapf(err, "delete constellation %s", id)
	}

	s.logger.Debug("snapshot deleted", "constellation_id", id)
	return nil
}

// Close closes the underlying database. The store is unusable afterwards.
func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "close snapshot store")
}

func (s *Store) get(id string) ([]byte, error) {
	if id == "" {
		return nil, errors.NewValidationError("constellation ID must not be empty").
			WithField("id")
	}
	data, err := s.db.Get([]byte(prefixDocument+id), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, errors.NewNotFoundError("constellation", id)
		}
		return nil, errors.Wrapf(err, "read constellation %s", id)
	}
	return data, nil
}
