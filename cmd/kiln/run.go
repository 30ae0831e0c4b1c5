package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/kiln-llm/kiln/internal/inference"
	"github.com/kiln-llm/kiln/internal/tokenizer"
)

func runCmd() *cli.Command {
	var (
		prompt     string
		system     string
		steps      int64
		temp       float64
		topK       int64
		topP       float64
		seed       int64
		noTemplate bool
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Run a single generation from the command line",
		Flags: append(append(commonModelFlags(), loggingFlags()...),
			&cli.StringFlag{
				Name:        "prompt",
				Aliases:     []string{"p"},
				Usage:       "prompt text",
				Destination: &prompt,
			},
			&cli.StringFlag{
				Name:        "system",
				Aliases:     []string{"sys"},
				Usage:       "optional system prompt",
				Destination: &system,
			},
			&cli.Int64Flag{
				Name:        "steps",
				Aliases:     []string{"n"},
				Usage:       "maximum number of tokens to generate",
				Value:       256,
				Destination: &steps,
			},
			&cli.Float64Flag{
				Name:        "temp",
				Aliases:     []string{"temperature", "t"},
				Usage:       "sampling temperature (0 = greedy)",
				Value:       0.8,
				Destination: &temp,
			},
			&cli.Int64Flag{
				Name:        "top-k",
				Usage:       "top-k sampling parameter (0 = disabled)",
				Value:       0,
				Destination: &topK,
			},
			&cli.Float64Flag{
				Name:        "top-p",
				Usage:       "top-p sampling parameter (0 = disabled)",
				Value:       0,
				Destination: &topP,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "sampling RNG seed",
				Value:       0,
				Destination: &seed,
			},
			&cli.BoolFlag{
				Name:        "no-template",
				Usage:       "send the prompt raw instead of as a chat message",
				Destination: &noTemplate,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyRunConfig(cmd, LoadFileConfig(), &temp, &topK, &topP, &steps, &seed)
			log := newLogger()

			if prompt == "" {
				return fmt.Errorf("--prompt is required")
			}

			engine, err := loadEngine(log)
			if err != nil {
				return err
			}

			req := inference.Request{
				MaxTokens:   int(steps),
				Temperature: temp,
				TopK:        int(topK),
				TopP:        topP,
				Seed:        seed,
			}
			if noTemplate {
				req.Prompt = prompt
			} else {
				if system != "" {
					req.Messages = append(req.Messages, tokenizer.Message{Role: "system", Content: system})
				}
				req.Messages = append(req.Messages, tokenizer.Message{Role: "user", Content: prompt})
			}

			result, err := engine.Generate(ctx, &req, func(tok string) {
				_, _ = fmt.Fprint(os.Stdout, tok)
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout)

			log.Info("generation complete",
				"prompt_tokens", result.Stats.PromptTokens,
				"tokens", result.Stats.TokensGenerated,
				"duration", result.Stats.Duration,
				"tps", fmt.Sprintf("%.2f", result.Stats.TPS))
			return nil
		},
	}
}
