package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate_EmptyListHeaderOnly(t *testing.T) {
	source := Header{"region", "count"}

	got, err := Aggregate(source, nil, AggregateOptions{Name: "merged"})
	require.NoError(t, err)

	assert.Equal(t, source, got.Header)
	assert.Empty(t, got.Rows)
	assert.Equal(t, "merged", got.Name)
}

func TestAggregate_EmptyListRequired(t *testing.T) {
	_, err := Aggregate(Header{"region"}, nil, AggregateOptions{RequireMatches: true})
	assert.ErrorIs(t, err, ErrNoPartitionsFound)
}

func TestAggregate_ConcatenatesInOrder(t *testing.T) {
	source := Header{"region", "count"}
	p1 := Table{
		Name:   "part_A",
		Header: Header{"region", "count"},
		Rows:   []Row{{"A", int64(1)}, {"A", int64(2)}, {"A", int64(3)}},
		Filter: &Filter{},
	}
	p2 := Table{Name: "part_B", Header: Header{"region", "count"}}
	p3 := Table{
		Name:   "part_C",
		Header: Header{"renamed", "columns"},
		Rows:   []Row{{"C", int64(4)}, {"C", int64(5)}},
		Filter: &Filter{Criteria: []Criteria{{Column: 0, Label: "renamed", Equals: "C"}}},
	}

	got, err := Aggregate(source, []Table{p1, p2, p3}, AggregateOptions{})
	require.NoError(t, err)

	assert.Equal(t, source, got.Header, "header comes from the source table")
	require.Len(t, got.Rows, 5)
	assert.Equal(t, []Row{
		{"A", int64(1)}, {"A", int64(2)}, {"A", int64(3)},
		{"C", int64(4)}, {"C", int64(5)},
	}, got.Rows)
	assert.Nil(t, got.Filter)
}

func TestAggregate_PassesDuplicatesThrough(t *testing.T) {
	part := Table{Rows: []Row{{"A", int64(1)}}}

	got, err := Aggregate(Header{"region", "count"}, []Table{part, part}, AggregateOptions{})
	require.NoError(t, err)
	assert.Equal(t, []Row{{"A", int64(1)}, {"A", int64(1)}}, got.Rows)
}

func TestAggregate_RoundTripsPartition(t *testing.T) {
	master := regionTable()

	parts, err := Partition(master, "region")
	require.NoError(t, err)

	tables := make([]Table, len(parts))
	for i, p := range parts {
		tables[i] = Table{Name: "分割_" + p.Key, Header: master.Header, Rows: p.Rows}
	}

	merged, err := Aggregate(master.Header, tables, AggregateOptions{})
	require.NoError(t, err)

	assert.Equal(t, master.Len(), merged.Len())
	assert.ElementsMatch(t, master.Rows, merged.Rows)
}

func TestStripFilter_KeepsRows(t *testing.T) {
	in := Table{
		Rows:   []Row{{"A"}, {"B"}},
		Filter: &Filter{Criteria: []Criteria{{Column: 0, Equals: "A"}}},
	}

	out := StripFilter(in)
	assert.Nil(t, out.Filter)
	assert.Equal(t, in.Rows, out.Rows)
	assert.NotNil(t, in.Filter, "input is not modified")
}
