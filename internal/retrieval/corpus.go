package retrieval

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Corpus names
const (
	CorpusPhilosophy = "philosophy"
	CorpusPortfolio  = "portfolio"
	CorpusMacro      = "macro"
)

//go:embed data/*.yaml
var embedded embed.FS

// Document is one retrievable record.
type Document struct {
	ID      string   `yaml:"id"`
	Persona string   `yaml:"persona,omitempty"`
	Region  string   `yaml:"region,omitempty"`
	Period  string   `yaml:"period,omitempty"`
	Title   string   `yaml:"title"`
	Text    string   `yaml:"text"`
	Tags    []string `yaml:"tags,omitempty"`
	Sectors []string `yaml:"sectors,omitempty"`

	corpus string
}

// Corpus returns the corpus the document was loaded from.
func (d Document) Corpus() string { return d.corpus }

// Partition is "<corpus>/<persona|region>", or the bare corpus name when the
// document carries neither.
func (d Document) Partition() string {
	switch {
	case d.Persona != "":
		return d.corpus + "/" + d.Persona
	case d.Region != "":
		return d.corpus + "/" + d.Region
	default:
		return d.corpus
	}
}

type corpusFile struct {
	Documents []Document `yaml:"documents"`
}

// LoadCorpora reads philosophy, portfolio and macro documents. An empty dir
// uses the embedded defaults.
func LoadCorpora(dir string) ([]Document, error) {
	var fsys fs.FS
	prefix := "data"
	if dir != "" {
		fsys = os.DirFS(dir)
		prefix = "."
	} else {
		fsys = embedded
	}

	var docs []Document
	for _, name := range []string{CorpusPhilosophy, CorpusPortfolio, CorpusMacro} {
		raw, err := fs.ReadFile(fsys, prefix+"/"+name+".yaml")
		if err != nil {
			return nil, fmt.Errorf("read %s corpus: %w", name, err)
		}
		var f corpusFile
		if err := yaml.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("parse %s corpus: %w", name, err)
		}
		for _, d := range f.Documents {
			d.corpus = name
			d.Text = strings.TrimSpace(d.Text)
			docs = append(docs, d)
		}
	}
	return docs, nil
}

// byRecency orders documents newest period first. Periods are "YYYYQn" so
// lexical order is chronological.
func byRecency(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Period > docs[j].Period })
}
