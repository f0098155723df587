package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SalahAli20/ADCAI/internal/app"
	"github.com/SalahAli20/ADCAI/internal/config"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the built-in llm, stt and tts backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := config.NewRegistry()
			app.RegisterBuiltinProviders(reg, app.NewPlayer(config.AudioConfig{}))
			def := config.Default()
			defaults := map[string]string{
				"llm": def.Providers.LLM.Name,
				"stt": def.Providers.STT.Name,
				"tts": def.Providers.TTS.Name,
			}
			out := cmd.OutOrStdout()
			for _, kind := range []string{"llm", "stt", "tts"} {
				names := reg.Names(kind)
				for i, n := range names {
					if n == defaults[kind] {
						names[i] = n + " (default)"
					}
				}
				fmt.Fprintf(out, "%-4s %s\n", kind+":", strings.Join(names, ", "))
			}
			return nil
		},
	}
}
