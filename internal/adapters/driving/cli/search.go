package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	searchLimit int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the knowledge base",
	Long: `Performs hybrid search over the knowledge base index.
Each chunk is scored by embedding similarity and by TF-IDF similarity;
the higher of the two ranks it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 3, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

type searchHit struct {
	Source  string  `json:"source"`
	Ordinal int     `json:"ordinal"`
	Score   float64 `json:"score"`
	Dense   float64 `json:"dense"`
	Lexical float64 `json:"lexical"`
	Content string  `json:"content"`
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := wire(ctx, needKnowledge); err != nil {
		return err
	}
	defer closeApp()

	query := strings.Join(args, " ")
	results, err := knowledgeSearch.Search(ctx, query, searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	hits := make([]searchHit, len(results))
	for i, r := range results {
		hits[i] = searchHit{
			Source:  r.Chunk.SourceID,
			Ordinal: r.Chunk.Ordinal,
			Score:   r.Score,
			Dense:   r.Dense,
			Lexical: r.Lexical,
			Content: r.Chunk.Content,
		}
	}

	if searchJSON {
		data, err := json.MarshalIndent(hits, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(hits) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	for i, h := range hits {
		cmd.Printf("  [%d] %s #%d (%.2f: dense %.2f, lexical %.2f)\n",
			i+1, h.Source, h.Ordinal, h.Score, h.Dense, h.Lexical)
		cmd.Printf("      %s\n\n", snippet(h.Content, 200))
	}
	return nil
}

// snippet collapses whitespace and cuts s to at most n runes.
func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
