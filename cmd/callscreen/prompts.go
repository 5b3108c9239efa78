package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chadiek/callscreen/internal/config"
	"github.com/chadiek/callscreen/internal/screening"
)

func newPromptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Manage the silent screening audio prompts",
	}

	cmd.AddCommand(newPromptsRenderCmd())
	return cmd
}

func newPromptsRenderCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render prompt audio files",
		Long:  "Synthesizes the greeting and goodbye prompts into PROMPT_DIR. Existing files are kept unless --force is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			r := newRenderer(cfg)
			if r == nil {
				return errors.New("no speech synthesis configured: set ELEVENLABS_API_KEY or DEEPGRAM_API_KEY")
			}
			p := screening.NewPromptCache(cfg.PromptDir, r)
			render := p.Ensure
			if force {
				render = p.Rerender
			}
			if err := render(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range p.Names() {
				fmt.Fprintf(out, "%s\t%s\n", name, p.File(name))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "re-render prompts that already exist")
	return cmd
}
