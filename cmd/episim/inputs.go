package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-epinet/pkg/config"
	"github.com/dd0wney/cluso-epinet/pkg/logging"
)

type inputs struct {
	params *config.Parameters
	hoods  config.NeighbourhoodData
	ages   config.AgeDistribution
}

func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().String("params", "", "Parameters file (YAML or JSON)")
	cmd.Flags().String("neighbourhood", "", "Ward table (JSON)")
	cmd.Flags().String("ages", "", "Age distribution (';'-separated CSV)")
	_ = cmd.MarkFlagRequired("params")
	_ = cmd.MarkFlagRequired("neighbourhood")
	_ = cmd.MarkFlagRequired("ages")
}

func loadInputs(cmd *cobra.Command) (*inputs, error) {
	paramsPath, _ := cmd.Flags().GetString("params")
	hoodPath, _ := cmd.Flags().GetString("neighbourhood")
	agePath, _ := cmd.Flags().GetString("ages")

	params, err := config.LoadParameters(paramsPath)
	if err != nil {
		return nil, err
	}
	hoods, err := config.LoadNeighbourhoodData(hoodPath)
	if err != nil {
		return nil, err
	}
	ages, err := config.LoadAgeDistribution(agePath)
	if err != nil {
		return nil, err
	}
	if err := config.ValidateTables(hoods, ages); err != nil {
		return nil, err
	}
	return &inputs{params: params, hoods: hoods, ages: ages}, nil
}

// newLogger writes logs to path, or to stderr when path is empty.
func newLogger(cmd *cobra.Command, path string) (logging.Logger, io.Closer, error) {
	levelStr, _ := cmd.Flags().GetString("log-level")
	formatStr, _ := cmd.Flags().GetString("log-format")
	level := logging.ParseLevel(levelStr)
	format := logging.ParseFormat(formatStr)
	if path == "" {
		return logging.New(cmd.ErrOrStderr(), level, format), noClose{}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return logging.New(f, level, format), f, nil
}

type noClose struct{}

func (noClose) Close() error { return nil }
