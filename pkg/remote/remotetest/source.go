// Package remotetest provides an in-memory legacy system for tests.
package remotetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ha1tch/hotelmig/pkg/remote"
)

// Record is one legacy record. Links use []interface{}{id, "name"}, unset
// values use false or are left out, x2many fields use []int.
type Record map[string]interface{}

// Source implements remote.Source over in-memory models
type Source struct {
	mu       sync.Mutex
	models   map[string][]Record
	xmlIDs   map[string]map[int]string
	failures map[string]error
	calls    map[string]int
	version  string
}

var _ remote.Source = (*Source)(nil)

// New creates an empty legacy system
func New() *Source {
	return &Source{
		models:   make(map[string][]Record),
		xmlIDs:   make(map[string]map[int]string),
		failures: make(map[string]error),
		calls:    make(map[string]int),
		version:  "10.0",
	}
}

// Add appends records to a model; every record needs an "id".
func (s *Source) Add(model string, records ...Record) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.models[model] = append(s.models[model], records...)
	sort.SliceStable(s.models[model], func(i, j int) bool {
		return toInt(s.models[model][i]["id"]) < toInt(s.models[model][j]["id"])
	})
	return s
}

// SetExternalID registers a "module.name" identifier for a record
func (s *Source) SetExternalID(model string, id int, xmlID string) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.xmlIDs[model] == nil {
		s.xmlIDs[model] = make(map[int]string)
	}
	s.xmlIDs[model][id] = xmlID
	return s
}

// FailOn makes every call touching model return err
func (s *Source) FailOn(model string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[model] = err
}

// Calls returns how many calls touched model
func (s *Source) Calls(model string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[model]
}

func (s *Source) Version() string {
	return s.version
}

func (s *Source) Logout(ctx context.Context) error {
	return nil
}

func (s *Source) enter(model string) error {
	s.calls[model]++
	if err, ok := s.failures[model]; ok {
		return err
	}
	return nil
}

func (s *Source) Search(ctx context.Context, model string, domain remote.Domain) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(model); err != nil {
		return nil, err
	}

	ids := []int{}
	for _, rec := range s.models[model] {
		if matches(rec, domain) {
			ids = append(ids, toInt(rec["id"]))
		}
	}
	return ids, nil
}

func (s *Source) SearchRead(ctx context.Context, model string, domain remote.Domain, fields []string, out interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(model); err != nil {
		return err
	}

	rows := []Record{}
	for _, rec := range s.models[model] {
		if matches(rec, domain) {
			rows = append(rows, project(rec, fields))
		}
	}
	return decode(rows, out)
}

func (s *Source) Read(ctx context.Context, model string, ids []int, fields []string, out interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(model); err != nil {
		return err
	}

	wanted := make(map[int]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	rows := []Record{}
	for _, rec := range s.models[model] {
		if wanted[toInt(rec["id"])] {
			rows = append(rows, project(rec, fields))
		}
	}
	return decode(rows, out)
}

func (s *Source) ExternalIDs(ctx context.Context, model string, ids []int) (map[int]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter("ir.model.data"); err != nil {
		return nil, err
	}

	result := make(map[int]string)
	for _, id := range ids {
		if xmlID, ok := s.xmlIDs[model][id]; ok {
			result[id] = xmlID
		}
	}
	return result, nil
}

func project(rec Record, fields []string) Record {
	if len(fields) == 0 {
		return rec
	}
	out := Record{"id": rec["id"]}
	for _, f := range fields {
		if v, ok := rec[f]; ok {
			out[f] = v
		}
	}
	return out
}

func decode(rows []Record, out interface{}) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("%w: %v", remote.ErrProtocol, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", remote.ErrProtocol, err)
	}
	return nil
}
