package pipeline

import "github.com/docsearch/docsearch/internal/embed"

// EmbedStep calls the embedding provider with the enhanced query text and
// stores the resulting vector on the context.
type EmbedStep struct {
	Provider embed.Provider
}

func (EmbedStep) Name() string { return "embed" }

func (s EmbedStep) Run(sc *Context) error {
	vec, err := s.Provider.Embed(sc.Ctx, sc.Enhanced.Text)
	if err != nil {
		return err
	}
	sc.QueryVector = vec
	return nil
}
