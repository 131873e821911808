// Package codecache stores materialized class units on disk, one file per
// class identifier, and keeps an index mapping operation names to the class
// identifier they were materialized under.
package codecache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/grussorusso/offloadledge/internal/cache"
)

var ErrNotFound = errors.New("class unit not found")
var ErrInvalidClassID = errors.New("invalid class identifier")

const unitExt = ".java"

const (
	opPrefix   = "op/"
	unitPrefix = "unit/"
)

// a class identifier is a plain Java identifier, so it maps to exactly one
// file name in the units directory
var classIDPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Unit is a materialized, compile-ready source artifact.
type Unit struct {
	ClassID     string
	Location    string
	Transformed bool // produced by the transformer, as opposed to found on disk
	Digest      string
	StoredAt    time.Time
}

type Options struct {
	Dir             string // class units directory
	IndexDir        string // badger directory; empty keeps the index in memory
	FrontSize       int
	FrontExpiration time.Duration
	FrontCleanup    time.Duration
}

type Cache struct {
	dir   string
	db    *badger.DB
	front *cache.Cache[*Unit]
}

func Open(opts Options) (*Cache, error) {
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create units directory: %v", err)
	}

	var bopts badger.Options
	if opts.IndexDir == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.IndexDir)
	}
	bopts = bopts.WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("could not open units index: %v", err)
	}

	return &Cache{
		dir:   opts.Dir,
		db:    db,
		front: cache.New[*Unit](opts.FrontExpiration, opts.FrontCleanup, opts.FrontSize),
	}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Dir returns the class units directory.
func (c *Cache) Dir() string {
	return c.dir
}

func (c *Cache) location(classID string) string {
	return filepath.Join(c.dir, classID+unitExt)
}

// Exists reports whether a unit has been materialized for classID.
func (c *Cache) Exists(classID string) bool {
	_, err := c.Lookup(classID)
	return err == nil
}

// LocationOf returns where the unit for classID is stored.
func (c *Cache) LocationOf(classID string) (string, error) {
	u, err := c.Lookup(classID)
	if err != nil {
		return "", err
	}
	return u.Location, nil
}

// Lookup returns the unit for classID, consulting the in-memory front, then
// the index, then the units directory. Units removed from the directory
// behind the cache's back are reported as not found.
func (c *Cache) Lookup(classID string) (*Unit, error) {
	if !classIDPattern.MatchString(classID) {
		return nil, fmt.Errorf("%q: %w", classID, ErrInvalidClassID)
	}
	if u, ok := c.front.Get(classID); ok {
		if _, err := os.Stat(u.Location); err == nil {
			return u, nil
		}
		c.front.Delete(classID)
	}

	loc := c.location(classID)
	if _, err := os.Stat(loc); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", classID, ErrNotFound)
		}
		return nil, err
	}

	u, err := c.indexedUnit(classID)
	if err != nil {
		// the file was deployed without going through Store
		u = &Unit{ClassID: classID, Location: loc}
	}
	c.front.Set(classID, u, cache.DefaultExpiration)
	return u, nil
}

// Store writes content as the unit for classID and returns its location.
// An existing unit is overwritten; concurrent stores for the same identifier
// are last-writer-wins.
func (c *Cache) Store(classID string, content string) (string, error) {
	if !classIDPattern.MatchString(classID) {
		return "", fmt.Errorf("%q: %w", classID, ErrInvalidClassID)
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	sum := sha256.Sum256([]byte(content))
	digest := hex.EncodeToString(sum[:])

	if prev, err := c.indexedUnit(classID); err == nil && prev.Digest != digest {
		log.Printf("Overwriting class unit %s with different content", classID)
	}

	loc := c.location(classID)
	tmp, err := os.CreateTemp(c.dir, classID+".*.tmp")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), loc); err != nil {
		return "", err
	}

	u := &Unit{ClassID: classID, Location: loc, Transformed: true, Digest: digest, StoredAt: time.Now()}
	payload, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(unitPrefix+classID), payload)
	})
	if err != nil {
		return "", fmt.Errorf("could not index unit %s: %v", classID, err)
	}
	c.front.Set(classID, u, cache.DefaultExpiration)
	return loc, nil
}

func (c *Cache) indexedUnit(classID string) (*Unit, error) {
	var u Unit
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(unitPrefix + classID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &u)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s: %w", classID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Alias records that operation is served by the unit classID.
func (c *Cache) Alias(operation, classID string) error {
	if operation == "" || operation == classID {
		return nil
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(opPrefix+operation), []byte(classID))
	})
}

// Resolve returns the class identifier an operation was materialized under.
func (c *Cache) Resolve(operation string) (string, bool) {
	var classID string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(opPrefix + operation))
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		classID = string(v)
		return err
	})
	if err != nil {
		return "", false
	}
	return classID, true
}

// List returns every unit in the units directory, sorted by class identifier.
func (c *Cache) List() ([]Unit, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}
	units := make([]Unit, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, unitExt) {
			continue
		}
		u, err := c.Lookup(strings.TrimSuffix(name, unitExt))
		if err != nil {
			continue
		}
		units = append(units, *u)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].ClassID < units[j].ClassID })
	return units, nil
}
