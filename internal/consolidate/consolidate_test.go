package consolidate

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nconklindev/conso2b/internal/types"
)

type mockLoader struct {
	mock.Mock
}

func (m *mockLoader) Sheets(fd types.FileDescriptor) ([]string, error) {
	args := m.Called(fd.Name)
	sheets, _ := args.Get(0).([]string)
	return sheets, args.Error(1)
}

func (m *mockLoader) Load(fd types.FileDescriptor, sheet string, log *types.ProcessingLog) (*types.Table, error) {
	args := m.Called(fd.Name, sheet)
	table, _ := args.Get(0).(*types.Table)
	return table, args.Error(1)
}

// fakeLoader serves fixed tables keyed by "file/sheet".
type fakeLoader struct {
	sheets map[string][]string
	tables map[string]*types.Table
}

func (f *fakeLoader) Sheets(fd types.FileDescriptor) ([]string, error) {
	s, ok := f.sheets[fd.Name]
	if !ok {
		return nil, errors.New("unreadable")
	}
	return s, nil
}

func (f *fakeLoader) Load(fd types.FileDescriptor, sheet string, _ *types.ProcessingLog) (*types.Table, error) {
	t, ok := f.tables[fd.Name+"/"+sheet]
	if !ok {
		return nil, fmt.Errorf("no table for %s/%s", fd.Name, sheet)
	}
	return t, nil
}

func files(names ...string) []types.FileDescriptor {
	fds := make([]types.FileDescriptor, len(names))
	for i, n := range names {
		fds[i] = types.FileDescriptor{Name: n}
	}
	return fds
}

func messages(log *types.ProcessingLog) []string {
	var out []string
	for _, e := range log.Entries() {
		out = append(out, e.Message)
	}
	return out
}

func TestUnion(t *testing.T) {
	tests := []struct {
		name     string
		tables   []*types.Table
		expected *types.Table
	}{
		{
			name: "Disjoint columns filled with sentinel",
			tables: []*types.Table{
				{Columns: []string{"A", "B"}, Rows: [][]string{{"1", "2"}}},
				{Columns: []string{"A", "C"}, Rows: [][]string{{"3", "4"}}},
			},
			expected: &types.Table{
				Columns: []string{"A", "B", "C"},
				Rows:    [][]string{{"1", "2", "-"}, {"3", "-", "4"}},
			},
		},
		{
			name: "Reordered columns realigned",
			tables: []*types.Table{
				{Columns: []string{"A", "B"}, Rows: [][]string{{"1", "2"}}},
				{Columns: []string{"B", "A"}, Rows: [][]string{{"4", "3"}}},
			},
			expected: &types.Table{
				Columns: []string{"A", "B"},
				Rows:    [][]string{{"1", "2"}, {"3", "4"}},
			},
		},
		{
			name:     "No tables",
			tables:   nil,
			expected: &types.Table{Columns: nil, Rows: [][]string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Union(tt.tables, "-"))
		})
	}
}

func TestTag(t *testing.T) {
	table := &types.Table{Columns: []string{"h1"}, Rows: [][]string{{"1"}, {"2"}}}

	tagged, err := Tag(table, "Jan.xlsx", "B2B")

	require.NoError(t, err)
	assert.Equal(t, []string{"SourceFile", "SheetName", "h1"}, tagged.Columns)
	assert.Equal(t, [][]string{{"Jan.xlsx", "B2B", "1"}, {"Jan.xlsx", "B2B", "2"}}, tagged.Rows)
	assert.Equal(t, []string{"h1"}, table.Columns)

	_, err = Tag(&types.Table{Columns: []string{"SheetName"}, Rows: [][]string{{"x"}}}, "a", "b")
	assert.Error(t, err)
}

func TestConsolidateEndToEnd(t *testing.T) {
	l := &mockLoader{}
	l.On("Sheets", "Jan.xlsx").Return([]string{"B2B"}, nil)
	l.On("Sheets", "Feb.xlsx").Return([]string{"B2B"}, nil)
	l.On("Load", "Jan.xlsx", "B2B").Return(&types.Table{Columns: []string{"h1", "h2"}, Rows: [][]string{{"1", "2"}}}, nil)
	l.On("Load", "Feb.xlsx", "B2B").Return(&types.Table{Columns: []string{"h1", "h3"}, Rows: [][]string{{"3", "4"}}}, nil)

	res, err := New(l, Options{}).Consolidate(context.Background(), files("Jan.xlsx", "Feb.xlsx"), []string{"B2B"}, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"SourceFile", "SheetName", "h1", "h2", "h3"}, res.Table.Columns)
	assert.Equal(t, [][]string{
		{"Jan.xlsx", "B2B", "1", "2", "-"},
		{"Feb.xlsx", "B2B", "3", "-", "4"},
	}, res.Table.Rows)
	assert.Equal(t, []string{
		"Loaded Jan.xlsx - B2B: 1 rows",
		"Loaded Feb.xlsx - B2B: 1 rows",
		"Consolidation complete: 2 total rows",
	}, messages(res.Log))
	assert.Equal(t, types.Summary{Rows: 2, Columns: 5, UniqueSheets: 1}, res.Summary())
	assert.NotEmpty(t, res.RunID)
	l.AssertExpectations(t)
}

func TestConsolidateSkipsMissingSheet(t *testing.T) {
	l := &mockLoader{}
	l.On("Sheets", "Mar.xlsx").Return([]string{"Read me", "B2B"}, nil)
	l.On("Load", "Mar.xlsx", "B2B").Return(&types.Table{Columns: []string{"h1"}, Rows: [][]string{{"9"}}}, nil)

	res, err := New(l, Options{}).Consolidate(context.Background(), files("Mar.xlsx"), []string{"B2B", "B2C"}, nil)

	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Mar.xlsx", "B2B", "9"}}, res.Table.Rows)

	warnings := res.Log.Filter(types.KindSheetNotFound)
	require.Len(t, warnings, 1)
	assert.Equal(t, types.SeverityWarning, warnings[0].Severity)
	assert.Equal(t, "B2C", warnings[0].Sheet)
	assert.Equal(t, "Sheet 'B2C' not found in Mar.xlsx", warnings[0].Message)
	l.AssertNotCalled(t, "Load", "Mar.xlsx", "B2C")
}

func TestConsolidateContinuesPastFailures(t *testing.T) {
	l := &mockLoader{}
	l.On("Sheets", "bad.xlsx").Return(nil, errors.New("zip: not a valid zip file"))
	l.On("Sheets", "empty.csv").Return([]string{"CSV"}, nil)
	l.On("Sheets", "broken.csv").Return([]string{"CSV"}, nil)
	l.On("Sheets", "ok.csv").Return([]string{"CSV"}, nil)
	l.On("Load", "empty.csv", "CSV").Return(&types.Table{Columns: []string{"a"}}, nil)
	l.On("Load", "broken.csv", "CSV").Return(nil, errors.New("parse csv: bad quote"))
	l.On("Load", "ok.csv", "CSV").Return(&types.Table{Columns: []string{"a"}, Rows: [][]string{{"1"}}}, nil)

	res, err := New(l, Options{Workers: 2}).Consolidate(context.Background(),
		files("bad.xlsx", "empty.csv", "broken.csv", "ok.csv"), []string{"CSV"}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Table.Len())
	assert.Equal(t, []string{
		"Error reading sheets from bad.xlsx: zip: not a valid zip file",
		"Sheet 'CSV' not found in bad.xlsx",
		"No data in empty.csv - CSV",
		"Error loading broken.csv - CSV: parse csv: bad quote",
		"Loaded ok.csv - CSV: 1 rows",
		"Consolidation complete: 1 total rows",
	}, messages(res.Log))
	assert.Len(t, res.Log.Filter(types.KindEmptyResult), 1)
	assert.Len(t, res.Log.Filter(types.KindIngest), 1)
}

func TestConsolidateProvenanceCollision(t *testing.T) {
	l := &mockLoader{}
	l.On("Sheets", "odd.csv").Return([]string{"CSV"}, nil)
	l.On("Load", "odd.csv", "CSV").Return(&types.Table{Columns: []string{"SourceFile"}, Rows: [][]string{{"x"}}}, nil)

	res, err := New(l, Options{}).Consolidate(context.Background(), files("odd.csv"), []string{"CSV"}, nil)

	assert.ErrorIs(t, err, ErrNoData)
	assert.Nil(t, res.Table)
	require.Len(t, res.Log.Filter(types.KindIngest), 1)
}

func TestConsolidateNoData(t *testing.T) {
	tests := []struct {
		name   string
		files  []types.FileDescriptor
		sheets []string
	}{
		{"No files", nil, []string{"B2B"}},
		{"No sheets", files("Jan.xlsx"), nil},
		{"Sheet absent everywhere", files("Jan.xlsx"), []string{"B2C"}},
	}

	l := &fakeLoader{sheets: map[string][]string{"Jan.xlsx": {"B2B"}}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New(l, Options{}).Consolidate(context.Background(), tt.files, tt.sheets, nil)

			require.ErrorIs(t, err, ErrNoData)
			require.NotNil(t, res)
			assert.Nil(t, res.Table)
			assert.Equal(t, types.Summary{}, res.Summary())
			entries := res.Log.Entries()
			require.NotEmpty(t, entries)
			assert.Equal(t, types.SeverityError, entries[len(entries)-1].Severity)
		})
	}
}

func TestConsolidateParallelMatchesSequential(t *testing.T) {
	l := &fakeLoader{
		sheets: map[string][]string{},
		tables: map[string]*types.Table{},
	}
	var names []string
	for i := range 12 {
		name := fmt.Sprintf("f%02d.xlsx", i)
		names = append(names, name)
		l.sheets[name] = []string{"B2B", "CDNR"}
		l.tables[name+"/B2B"] = &types.Table{
			Columns: []string{"id", fmt.Sprintf("c%d", i%3)},
			Rows:    [][]string{{fmt.Sprint(i), "x"}, {fmt.Sprint(i), "y"}},
		}
		if i%2 == 0 {
			l.tables[name+"/CDNR"] = &types.Table{Columns: []string{"note"}, Rows: [][]string{{name}}}
		}
	}
	fds := files(names...)
	sheets := []string{"B2B", "CDNR"}

	seq, err := New(l, Options{Workers: 1}).Consolidate(context.Background(), fds, sheets, nil)
	require.NoError(t, err)
	par, err := New(l, Options{Workers: 8}).Consolidate(context.Background(), fds, sheets, nil)
	require.NoError(t, err)

	assert.Equal(t, seq.Table, par.Table)
	assert.Equal(t, messages(seq.Log), messages(par.Log))
	assert.Equal(t, 30, par.Table.Len())
}

func TestConsolidateProgress(t *testing.T) {
	l := &fakeLoader{
		sheets: map[string][]string{"a.csv": {"CSV"}, "b.csv": {"CSV"}, "c.csv": {"CSV"}, "d.csv": {"CSV"}},
		tables: map[string]*types.Table{
			"a.csv/CSV": {Columns: []string{"x"}, Rows: [][]string{{"1"}}},
		},
	}
	progress := make(chan float64, 16)

	_, err := New(l, Options{Workers: 4}).Consolidate(context.Background(),
		files("a.csv", "b.csv", "c.csv", "d.csv"), []string{"CSV", "B2B"}, progress)
	require.NoError(t, err)
	close(progress)

	var got []float64
	for p := range progress {
		got = append(got, p)
	}
	require.Len(t, got, 8)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i], got[i-1])
	}
	assert.InDelta(t, 1.0, got[len(got)-1], 1e-9)
}

func TestConsolidateProgressSmallBuffer(t *testing.T) {
	tests := []struct {
		name   string
		buffer int
	}{
		{"Unbuffered", 0},
		{"Single slot", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &fakeLoader{
				sheets: map[string][]string{"a.csv": {"CSV"}, "b.csv": {"CSV"}, "c.csv": {"CSV"}},
				tables: map[string]*types.Table{
					"a.csv/CSV": {Columns: []string{"x"}, Rows: [][]string{{"1"}}},
				},
			}
			progress := make(chan float64, tt.buffer)
			received := make(chan []float64)
			go func() {
				var got []float64
				for p := range progress {
					got = append(got, p)
				}
				received <- got
			}()

			_, err := New(l, Options{Workers: 3}).Consolidate(context.Background(),
				files("a.csv", "b.csv", "c.csv"), []string{"CSV", "B2B"}, progress)
			close(progress)
			require.NoError(t, err)

			got := <-received
			require.Len(t, got, 6)
			assert.InDelta(t, 1.0, got[len(got)-1], 1e-9)
		})
	}
}

func TestConsolidateCancelled(t *testing.T) {
	l := &fakeLoader{sheets: map[string][]string{"a.csv": {"CSV"}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(l, Options{}).Consolidate(ctx, files("a.csv"), []string{"CSV"}, nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res.Table)
}

func TestCatalog(t *testing.T) {
	l := &fakeLoader{sheets: map[string][]string{
		"Jan.xlsx": {"Read me", "B2B", "B2BA"},
		"Feb.xlsx": {"B2B", "CDNR"},
		"Mar.csv":  {"CSV"},
	}}
	log := types.NewProcessingLog(nil, nil)

	cat := Catalog(l, files("Jan.xlsx", "Feb.xlsx", "Mar.csv", "bad.xlsx"), log)

	assert.Equal(t, []string{"B2B", "B2BA", "CDNR", "CSV", "Read me"}, cat.Sheets)
	assert.Equal(t, 2, cat.FileCount["B2B"])
	assert.Equal(t, 1, cat.FileCount["CSV"])
	assert.Equal(t, []string{"B2B", "CDNR"}, cat.PerFile["Feb.xlsx"])
	assert.Contains(t, cat.PerFile, "bad.xlsx")
	require.Equal(t, 1, log.Len())
	assert.Equal(t, types.KindSheetList, log.Entries()[0].Kind)
}
