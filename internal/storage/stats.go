package storage

import (
	"context"
	"math"

	"github.com/starford/folio/internal/deriver"
	"github.com/starford/folio/internal/models"
)

// Stats aggregates the current record set.
type Stats struct {
	Total           int            `json:"total"`
	ByCategory      map[string]int `json:"byCategory"`
	ByAuthor        map[string]int `json:"byAuthor"`
	TotalWords      int            `json:"totalWords"`
	AverageReadTime int            `json:"averageReadTime"`
}

// Stats recomputes statistics over List.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	recs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return ComputeStats(recs), nil
}

// ComputeStats derives statistics from recs.
func ComputeStats(recs []*models.Record) *Stats {
	st := &Stats{
		Total:      len(recs),
		ByCategory: make(map[string]int),
		ByAuthor:   make(map[string]int),
	}
	readTime := 0
	for _, r := range recs {
		st.ByCategory[string(r.Category)]++
		st.ByAuthor[r.Author]++
		st.TotalWords += deriver.WordCount(r.Content)
		readTime += r.ReadTime
	}
	if len(recs) > 0 {
		st.AverageReadTime = int(math.Round(float64(readTime) / float64(len(recs))))
	}
	return st
}
