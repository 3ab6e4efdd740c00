package models

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/classr/internal/domain"
	"github.com/yungbote/classr/internal/jobs/runtime"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func fixture(t *testing.T) (vocabDir, input string) {
	t.Helper()
	root := t.TempDir()
	vocabDir = filepath.Join(root, "vocab-1")
	writeFile(t, filepath.Join(vocabDir, "keywords.csv"), "keyword,class\nprinter,HARDWARE\npassword,ACCESS\n")
	input = filepath.Join(root, "tickets.csv")
	writeFile(t, input, "id,desc,res,label\n1,Printer jammed,replaced toner,HARDWARE\n2,forgot my PASSWORD,reset,ACCESS\n3,slow laptop,,HARDWARE\n")
	return vocabDir, input
}

func TestKeywordClassify(t *testing.T) {
	vocab, input := fixture(t)
	work := t.TempDir()
	h := runtime.NewHandle(context.Background(), runtime.HandleOptions{
		Job:     types.Job{UID: "j", Status: types.JobScheduled},
		WorkDir: work,
	})

	err := NewKeyword().Classify(context.Background(), h, ClassifyInput{
		Meta:          map[string]string{"default_class": "OTHER"},
		ResourcePaths: map[string]string{VocabRole: vocab},
		InputPath:     input,
		OutputPath:    h.OutputPath(),
		DescCol:       "desc",
		ResCol:        "res",
		OutClassCol:   "class",
	})
	require.NoError(t, err)
	assert.Equal(t, types.JobDone, h.Last().Status)
	assert.Equal(t, 100, h.Last().Percentage)

	f, err := os.Open(h.OutputPath())
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"id", "desc", "res", "label", "class"}, records[0])
	assert.Equal(t, "HARDWARE", records[1][4])
	assert.Equal(t, "ACCESS", records[2][4])
	assert.Equal(t, "OTHER", records[3][4])
}

func TestKeywordClassifyMissingColumn(t *testing.T) {
	vocab, input := fixture(t)
	h := runtime.NewHandle(context.Background(), runtime.HandleOptions{
		Job:     types.Job{UID: "j", Status: types.JobScheduled},
		WorkDir: t.TempDir(),
	})
	err := NewKeyword().Classify(context.Background(), h, ClassifyInput{
		ResourcePaths: map[string]string{VocabRole: vocab},
		InputPath:     input,
		OutputPath:    h.OutputPath(),
		DescCol:       "summary",
		OutClassCol:   "class",
	})
	assert.True(t, errors.Is(err, types.ErrWorkUnit), "got %v", err)
}

func TestKeywordTrainScoresLabelledSet(t *testing.T) {
	vocab, input := fixture(t)
	h := runtime.NewHandle(context.Background(), runtime.HandleOptions{
		Job: types.Job{UID: "j", Status: types.JobScheduled},
	})
	res, err := NewKeyword().Train(context.Background(), h, TrainInput{
		ResourcePaths: map[string]string{VocabRole: vocab},
		InputPath:     input,
		DescCol:       "desc",
		ResCol:        "res",
		LabelCol:      "label",
	})
	require.NoError(t, err)
	require.NotNil(t, res.TrainingSetSize)
	require.NotNil(t, res.TestAccuracy)
	assert.Equal(t, 3, *res.TrainingSetSize)
	assert.InDelta(t, 2.0/3.0, *res.TestAccuracy, 1e-9)
	assert.False(t, h.Terminal())
}

func TestRegistryRejectsUnknownType(t *testing.T) {
	r := NewDefaultRegistry()
	_, err := r.Get("BERT")
	assert.True(t, errors.Is(err, types.ErrWorkUnit))
	a, err := r.Get(KeywordType)
	require.NoError(t, err)
	assert.Equal(t, KeywordType, a.Type())
	assert.Error(t, r.Register(NewKeyword()))
}
