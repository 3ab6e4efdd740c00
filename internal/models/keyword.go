package models

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	types "github.com/yungbote/classr/internal/domain"
	"github.com/yungbote/classr/internal/jobs/runtime"
	"github.com/yungbote/classr/internal/platform/pointers"
)

const (
	KeywordType = "KEYWORD"

	// Resource role holding the keyword table.
	VocabRole = "vocab"

	defaultKeywordsFile = "keywords.csv"
)

// Keyword labels rows by the first keyword (from the vocab table, in file
// order) found in the description or resolution text.
//
// Meta keys:
//
//	keywords_file  file name inside the vocab resource (default keywords.csv)
//	default_class  label for rows with no keyword hit (default "")
type Keyword struct{}

func NewKeyword() *Keyword { return &Keyword{} }

func (k *Keyword) Type() string { return KeywordType }

type keywordRule struct {
	keyword string
	class   string
}

func (k *Keyword) Train(ctx context.Context, h *runtime.Handle, in TrainInput) (TrainResult, error) {
	_ = h.UpdateProgress(5, "Loading vocabulary", types.JobRunning)
	rules, err := loadRules(in.ResourcePaths, in.Meta)
	if err != nil {
		return TrainResult{}, err
	}
	res := TrainResult{TrainingSetSize: pointers.Int(len(rules))}
	if strings.TrimSpace(in.InputPath) == "" {
		return res, nil
	}

	_ = h.UpdateProgress(20, "Scoring labelled set", types.JobRunning)
	header, rows, err := readCSV(in.InputPath)
	if err != nil {
		return TrainResult{}, err
	}
	descIdx, resIdx, err := textColumns(header, in.DescCol, in.ResCol)
	if err != nil {
		return TrainResult{}, err
	}
	labelIdx := indexOf(header, in.LabelCol)
	if labelIdx < 0 {
		return TrainResult{}, fmt.Errorf("%w: label column %q not found", types.ErrWorkUnit, in.LabelCol)
	}

	hits := 0
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return TrainResult{}, err
		}
		if match(rules, rowText(row, descIdx, resIdx), in.Meta["default_class"]) == cell(row, labelIdx) {
			hits++
		}
		reportEvery(h, i, len(rows), 20, 90, "Scored")
	}
	res.TrainingSetSize = pointers.Int(len(rows))
	if len(rows) > 0 {
		res.TestAccuracy = pointers.Float64(float64(hits) / float64(len(rows)))
	}
	return res, nil
}

func (k *Keyword) Classify(ctx context.Context, h *runtime.Handle, in ClassifyInput) error {
	_ = h.UpdateProgress(1, "Loading vocabulary", types.JobRunning)
	rules, err := loadRules(in.ResourcePaths, in.Meta)
	if err != nil {
		return err
	}

	_ = h.UpdateProgress(5, "Reading input", types.JobRunning)
	header, rows, err := readCSV(in.InputPath)
	if err != nil {
		return err
	}
	descIdx, resIdx, err := textColumns(header, in.DescCol, in.ResCol)
	if err != nil {
		return err
	}
	outCol := strings.TrimSpace(in.OutClassCol)
	if outCol == "" {
		return fmt.Errorf("%w: output class column required", types.ErrWorkUnit)
	}

	out, err := os.Create(in.OutputPath)
	if err != nil {
		return fmt.Errorf("%w: create output: %v", types.ErrIO, err)
	}
	defer out.Close()
	w := csv.NewWriter(out)

	outIdx := indexOf(header, outCol)
	outHeader := header
	if outIdx < 0 {
		outHeader = append(append([]string{}, header...), outCol)
	}
	if err := w.Write(outHeader); err != nil {
		return fmt.Errorf("%w: write output: %v", types.ErrIO, err)
	}

	def := in.Meta["default_class"]
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		class := match(rules, rowText(row, descIdx, resIdx), def)
		record := append([]string{}, row...)
		if outIdx >= 0 {
			for len(record) <= outIdx {
				record = append(record, "")
			}
			record[outIdx] = class
		} else {
			record = append(record, class)
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("%w: write output: %v", types.ErrIO, err)
		}
		reportEvery(h, i, len(rows), 10, 95, "Classified")
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: flush output: %v", types.ErrIO, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: close output: %v", types.ErrIO, err)
	}
	return h.UpdateProgress(100, fmt.Sprintf("Classified %d rows", len(rows)), types.JobDone)
}

func loadRules(resourcePaths map[string]string, meta map[string]string) ([]keywordRule, error) {
	root := strings.TrimSpace(resourcePaths[VocabRole])
	if root == "" {
		return nil, fmt.Errorf("%w: classifier has no %q resource", types.ErrWorkUnit, VocabRole)
	}
	path := root
	if fi, err := os.Stat(root); err == nil && fi.IsDir() {
		name := strings.TrimSpace(meta["keywords_file"])
		if name == "" {
			name = defaultKeywordsFile
		}
		path = filepath.Join(root, name)
	}
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	all := rows
	if !(len(header) >= 2 && strings.EqualFold(header[0], "keyword") && strings.EqualFold(header[1], "class")) {
		all = append([][]string{header}, rows...)
	}
	rules := make([]keywordRule, 0, len(all))
	for _, r := range all {
		if len(r) < 2 {
			continue
		}
		kw := strings.ToLower(strings.TrimSpace(r[0]))
		if kw == "" {
			continue
		}
		rules = append(rules, keywordRule{keyword: kw, class: strings.TrimSpace(r[1])})
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: vocabulary %s has no keywords", types.ErrWorkUnit, path)
	}
	return rules, nil
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open %s: %v", types.ErrIO, filepath.Base(path), err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("%w: %s is empty", types.ErrWorkUnit, filepath.Base(path))
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: parse %s: %v", types.ErrWorkUnit, filepath.Base(path), err)
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: parse %s: %v", types.ErrWorkUnit, filepath.Base(path), err)
	}
	return header, rows, nil
}

func textColumns(header []string, descCol, resCol string) (int, int, error) {
	descIdx := indexOf(header, descCol)
	if descIdx < 0 {
		return 0, 0, fmt.Errorf("%w: description column %q not found", types.ErrWorkUnit, descCol)
	}
	resIdx := -1
	if strings.TrimSpace(resCol) != "" {
		resIdx = indexOf(header, resCol)
		if resIdx < 0 {
			return 0, 0, fmt.Errorf("%w: resolution column %q not found", types.ErrWorkUnit, resCol)
		}
	}
	return descIdx, resIdx, nil
}

func indexOf(header []string, col string) int {
	col = strings.TrimSpace(col)
	if col == "" {
		return -1
	}
	for i, h := range header {
		if strings.TrimSpace(h) == col {
			return i
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func rowText(row []string, descIdx, resIdx int) string {
	return strings.ToLower(cell(row, descIdx) + " " + cell(row, resIdx))
}

func match(rules []keywordRule, text, def string) string {
	for _, r := range rules {
		if strings.Contains(text, r.keyword) {
			return r.class
		}
	}
	return def
}

// reportEvery emits a Running update roughly every tenth of the rows, scaled into [from, to].
func reportEvery(h *runtime.Handle, i, total, from, to int, verb string) {
	if total == 0 {
		return
	}
	step := total / 10
	if step < 1 {
		step = 1
	}
	done := i + 1
	if done%step != 0 && done != total {
		return
	}
	pct := from + (to-from)*done/total
	_ = h.UpdateProgress(pct, fmt.Sprintf("%s %d/%d", verb, done, total), types.JobRunning)
}
