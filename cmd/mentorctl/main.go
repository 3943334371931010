// Command mentorctl inspects the offline parts of the mentor pipeline:
// intent classification, retrieval planning and the lexical corpora.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mentorchat/backend/internal/intent"
	"mentorchat/backend/internal/retrieval"
)

var (
	corpusDir string
	output    string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mentorctl",
		Short:         "Inspect classification, routing and corpora",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&corpusDir, "corpus-dir", os.Getenv("CORPUS_DIR"), "directory with philosophy.yaml, portfolio.yaml and macro.yaml (default: built-in corpora)")
	root.PersistentFlags().StringVarP(&output, "output", "o", "json", "output format: json or yaml")

	root.AddCommand(newClassifyCmd(), newPlanCmd(), newCorpusCmd())
	return root
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Classify a message into intent and entities",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return render(cmd.OutOrStdout(), intent.Classify(strings.Join(args, " ")))
		},
	}
}

func newPlanCmd() *cobra.Command {
	var personaID string
	var widen bool
	cmd := &cobra.Command{
		Use:   "plan <text>",
		Short: "Show the retrieval plan a message would produce",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			res := intent.Classify(text)
			router := retrieval.DefaultRouter()
			plan := router.Route(res.Intent, res.Entities, personaID, text)
			if widen {
				plan = router.Widen(plan)
			}
			return render(cmd.OutOrStdout(), plan)
		},
	}
	cmd.Flags().StringVarP(&personaID, "persona", "p", "buffett", "persona id")
	cmd.Flags().BoolVar(&widen, "widen", false, "show the refine-pass plan")
	return cmd
}

func newCorpusCmd() *cobra.Command {
	corpus := &cobra.Command{
		Use:   "corpus",
		Short: "Inspect the retrieval corpora",
	}

	corpus.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Count documents per partition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			idx, err := loadIndex()
			if err != nil {
				return err
			}
			counts := map[string]int{}
			for _, d := range idx.Documents("") {
				counts[d.Partition()]++
			}
			return render(cmd.OutOrStdout(), counts)
		},
	})

	var partition string
	var topK int
	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Score a query against a partition with BM25",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := loadIndex()
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), idx.Retrieve(cmd.Context(), partition, strings.Join(args, " "), topK))
		},
	}
	search.Flags().StringVar(&partition, "partition", "", "partition such as philosophy/buffett or macro/KR (default: all)")
	search.Flags().IntVarP(&topK, "top", "k", 5, "number of snippets")
	corpus.AddCommand(search)

	return corpus
}

func loadIndex() (*retrieval.Index, error) {
	docs, err := retrieval.LoadCorpora(corpusDir)
	if err != nil {
		return nil, fmt.Errorf("load corpora: %w", err)
	}
	return retrieval.NewIndex(docs), nil
}

func render(w io.Writer, v any) error {
	switch output {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
}
