package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/kiln-llm/kiln/internal/inference"
	"github.com/kiln-llm/kiln/internal/logger"
	"github.com/kiln-llm/kiln/internal/model"
	"github.com/kiln-llm/kiln/internal/tokenizer"
)

var (
	modelDir  string
	bosToken  string
	eosToken  string
	logLevel  string
	logFormat string
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "path to model directory (config.json, model.safetensors, tokenizer.json)",
			Destination: &modelDir,
		},
		&cli.StringFlag{
			Name:        "bos-token",
			Usage:       "override beginning-of-sequence token",
			Value:       "<s>",
			Destination: &bosToken,
		},
		&cli.StringFlag{
			Name:        "eos-token",
			Usage:       "override end-of-sequence token",
			Value:       "</s>",
			Destination: &eosToken,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (text, json)",
			Value:       "text",
			Destination: &logFormat,
		},
	}
}

func newLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	if logFormat == "json" {
		return logger.JSON(os.Stderr, level)
	}
	return logger.Text(os.Stderr, level)
}

// loadEngine loads the decoder and tokenizer from the model directory and
// wraps them in an inference engine.
func loadEngine(log logger.Logger) (*inference.Engine, error) {
	if modelDir == "" {
		return nil, fmt.Errorf("--model is required")
	}

	log.Info("loading model", "dir", modelDir)
	dec, err := model.Load(modelDir)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	tok, err := tokenizer.LoadFile(filepath.Join(modelDir, "tokenizer.json"), bosToken, eosToken)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	log.Info("model ready",
		"layers", dec.Config.NumHiddenLayers,
		"hidden", dec.Config.HiddenSize,
		"heads", dec.Config.NumAttentionHeads,
		"kv_heads", dec.Config.NumKeyValueHeads,
		"vocab", dec.Config.VocabSize)

	return inference.NewEngine(dec, tok), nil
}
